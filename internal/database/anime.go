// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okanami/barrage/internal/models"
)

// NormalizeTitle applies the canonical title normalization: ASCII colon
// becomes the full-width colon so that (title, season) dedup is stable
// across providers.
func NormalizeTitle(title string) string {
	return strings.ReplaceAll(strings.TrimSpace(title), ":", "：")
}

// GetOrCreateAnime returns the ID of the work with the given title and
// season, creating it if absent. The title is normalized first.
func (db *DB) GetOrCreateAnime(ctx context.Context, title string, mediaType models.MediaType, season int, imageURL, localImagePath string, year *int) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	title = NormalizeTitle(title)
	if season < 1 {
		season = 1
	}

	var id int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM anime WHERE title = ? AND season = ?`, title, season).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up anime: %w", err)
	}

	err = db.conn.QueryRowContext(ctx,
		`INSERT INTO anime (title, type, season, year, image_url, local_image_path)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		title, string(mediaType), season, year, nullString(imageURL), nullString(localImagePath)).Scan(&id)
	if err != nil {
		// Lost a create race: another writer inserted the same (title, season).
		if isUniqueViolation(err) {
			if lookupErr := db.conn.QueryRowContext(ctx,
				`SELECT id FROM anime WHERE title = ? AND season = ?`, title, season).Scan(&id); lookupErr == nil {
				return id, nil
			}
		}
		return 0, fmt.Errorf("failed to create anime: %w", err)
	}

	return id, nil
}

// GetAnime retrieves a work by ID.
func (db *DB) GetAnime(ctx context.Context, id int64) (*models.Anime, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT id, title, type, season, year, image_url, local_image_path,
		        tmdb_id, imdb_id, tvdb_id, douban_id, bangumi_id, tmdb_episode_group_id,
		        created_at
		 FROM anime WHERE id = ?`, id)

	anime, err := scanAnime(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("anime %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan anime: %w", err)
	}
	return anime, nil
}

// ListAnime returns a page of works ordered by creation time descending,
// with an optional case-insensitive title filter.
func (db *DB) ListAnime(ctx context.Context, keyword string, offset, limit int) ([]models.Anime, int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	where := ""
	args := []interface{}{}
	if keyword != "" {
		where = `WHERE LOWER(title) LIKE ?`
		args = append(args, "%"+strings.ToLower(keyword)+"%")
	}

	var total int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM anime `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count anime: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, title, type, season, year, image_url, local_image_path,
		        tmdb_id, imdb_id, tvdb_id, douban_id, bangumi_id, tmdb_episode_group_id,
		        created_at
		 FROM anime `+where+`
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query anime: %w", err)
	}
	defer rows.Close()

	list := []models.Anime{}
	for rows.Next() {
		anime, err := scanAnimeRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan anime: %w", err)
		}
		list = append(list, *anime)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating anime: %w", err)
	}

	return list, total, nil
}

// UpdateMetadataIfEmpty fills external metadata IDs that are currently
// unset. Existing values are never overwritten.
func (db *DB) UpdateMetadataIfEmpty(ctx context.Context, animeID int64, tmdbID, imdbID, tvdbID, doubanID, bangumiID string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE anime SET
			tmdb_id    = COALESCE(tmdb_id, ?),
			imdb_id    = COALESCE(imdb_id, ?),
			tvdb_id    = COALESCE(tvdb_id, ?),
			douban_id  = COALESCE(douban_id, ?),
			bangumi_id = COALESCE(bangumi_id, ?)
		 WHERE id = ?`,
		nullString(tmdbID), nullString(imdbID), nullString(tvdbID),
		nullString(doubanID), nullString(bangumiID), animeID)
	if err != nil {
		return fmt.Errorf("failed to update anime metadata: %w", err)
	}
	return checkRowsAffected(result, "anime not found")
}

// UpdateAnime updates the mutable display fields of a work.
func (db *DB) UpdateAnime(ctx context.Context, anime *models.Anime) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE anime SET title = ?, type = ?, season = ?, year = ?, image_url = ?, local_image_path = ?
		 WHERE id = ?`,
		NormalizeTitle(anime.Title), string(anime.Type), anime.Season, anime.Year,
		nullString(anime.ImageURL), nullString(anime.LocalImagePath), anime.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("anime (%s, season %d) already exists: %w", anime.Title, anime.Season, ErrConflict)
		}
		return fmt.Errorf("failed to update anime: %w", err)
	}
	return checkRowsAffected(result, "anime not found")
}

// DeleteAnime removes a work and cascades through its sources, episodes
// and comments.
func (db *DB) DeleteAnime(ctx context.Context, id int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if err := deleteAnimeCascade(ctx, tx, id); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM anime WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete anime: %w", err)
	}
	if err := checkRowsAffected(result, "anime not found"); err != nil {
		return err
	}

	return tx.Commit()
}

// ReassociateAnimeSources moves all sources from one work to another and
// deletes the abandoned work. When both works own a favorited source the
// destination keeps its own and incoming favorites are demoted, so the
// at-most-one-favorite invariant holds.
func (db *DB) ReassociateAnimeSources(ctx context.Context, srcAnimeID, dstAnimeID int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if srcAnimeID == dstAnimeID {
		return fmt.Errorf("source and destination anime are the same: %w", ErrConflict)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	var dstExists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM anime WHERE id = ?`, dstAnimeID).Scan(&dstExists); err != nil {
		return fmt.Errorf("failed to check destination anime: %w", err)
	}
	if dstExists == 0 {
		return fmt.Errorf("destination anime %d: %w", dstAnimeID, ErrNotFound)
	}

	var dstHasFavorite bool
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) > 0 FROM sources WHERE anime_id = ? AND is_favorited`, dstAnimeID).Scan(&dstHasFavorite); err != nil {
		return fmt.Errorf("failed to check destination favorites: %w", err)
	}

	if dstHasFavorite {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sources SET is_favorited = FALSE WHERE anime_id = ?`, srcAnimeID); err != nil {
			return fmt.Errorf("failed to demote incoming favorites: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sources SET anime_id = ? WHERE anime_id = ?`, dstAnimeID, srcAnimeID); err != nil {
		return fmt.Errorf("failed to move sources: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM anime WHERE id = ?`, srcAnimeID)
	if err != nil {
		return fmt.Errorf("failed to delete source anime: %w", err)
	}
	if err := checkRowsAffected(result, "source anime not found"); err != nil {
		return err
	}

	return tx.Commit()
}

// deleteAnimeCascade removes the sources, episodes and comments owned by
// a work inside an open transaction.
func deleteAnimeCascade(ctx context.Context, tx *sql.Tx, animeID int64) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM comments WHERE episode_id IN (
			SELECT e.id FROM episodes e
			JOIN sources s ON s.id = e.source_id
			WHERE s.anime_id = ?)`, animeID); err != nil {
		return fmt.Errorf("failed to delete comments: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM episodes WHERE source_id IN (
			SELECT id FROM sources WHERE anime_id = ?)`, animeID); err != nil {
		return fmt.Errorf("failed to delete episodes: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sources WHERE anime_id = ?`, animeID); err != nil {
		return fmt.Errorf("failed to delete sources: %w", err)
	}
	return nil
}

// animeScanner abstracts sql.Row and sql.Rows for shared scan logic.
type animeScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnime(row *sql.Row) (*models.Anime, error)    { return scanAnimeFrom(row) }
func scanAnimeRows(rows *sql.Rows) (*models.Anime, error) { return scanAnimeFrom(rows) }

func scanAnimeFrom(s animeScanner) (*models.Anime, error) {
	var a models.Anime
	var typ string
	var year sql.NullInt32
	var imageURL, localImagePath sql.NullString
	var tmdbID, imdbID, tvdbID, doubanID, bangumiID, groupID sql.NullString

	err := s.Scan(&a.ID, &a.Title, &typ, &a.Season, &year, &imageURL, &localImagePath,
		&tmdbID, &imdbID, &tvdbID, &doubanID, &bangumiID, &groupID, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	a.Type = models.MediaType(typ)
	if year.Valid {
		y := int(year.Int32)
		a.Year = &y
	}
	a.ImageURL = imageURL.String
	a.LocalImagePath = localImagePath.String
	a.TMDBID = tmdbID.String
	a.IMDBID = imdbID.String
	a.TVDBID = tvdbID.String
	a.DoubanID = doubanID.String
	a.BangumiID = bangumiID.String
	a.TMDBEpisodeGroupID = groupID.String
	return &a, nil
}

// nullString converts an empty string to a SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime converts a nil time pointer to a SQL NULL.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// rollbackQuietly rolls a transaction back, ignoring the "already
// committed" error from the happy path.
func rollbackQuietly(tx *sql.Tx) {
	_ = tx.Rollback()
}
