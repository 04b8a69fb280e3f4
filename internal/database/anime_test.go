// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package database

import (
	"context"
	"errors"
	"testing"

	"github.com/okanami/barrage/internal/models"
)

func TestGetOrCreateAnime(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id1, err := db.GetOrCreateAnime(ctx, "Frieren", models.MediaTypeTVSeries, 1, "", "", nil)
	if err != nil {
		t.Fatalf("GetOrCreateAnime() error = %v", err)
	}
	if id1 == 0 {
		t.Fatal("GetOrCreateAnime() returned zero ID")
	}

	// Same title and season must return the existing row.
	id2, err := db.GetOrCreateAnime(ctx, "Frieren", models.MediaTypeTVSeries, 1, "", "", nil)
	if err != nil {
		t.Fatalf("GetOrCreateAnime() second call error = %v", err)
	}
	if id2 != id1 {
		t.Errorf("GetOrCreateAnime() second call = %d, want %d", id2, id1)
	}

	// A different season is a different work.
	id3, err := db.GetOrCreateAnime(ctx, "Frieren", models.MediaTypeTVSeries, 2, "", "", nil)
	if err != nil {
		t.Fatalf("GetOrCreateAnime() season 2 error = %v", err)
	}
	if id3 == id1 {
		t.Error("GetOrCreateAnime() season 2 reused season 1 ID")
	}
}

func TestGetOrCreateAnimeNormalizesTitle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id1, err := db.GetOrCreateAnime(ctx, "Fate:Zero", models.MediaTypeTVSeries, 1, "", "", nil)
	if err != nil {
		t.Fatalf("GetOrCreateAnime() error = %v", err)
	}
	id2, err := db.GetOrCreateAnime(ctx, "Fate：Zero", models.MediaTypeTVSeries, 1, "", "", nil)
	if err != nil {
		t.Fatalf("GetOrCreateAnime() fullwidth error = %v", err)
	}
	if id2 != id1 {
		t.Errorf("colon variants created distinct works: %d vs %d", id1, id2)
	}

	anime, err := db.GetAnime(ctx, id1)
	if err != nil {
		t.Fatalf("GetAnime() error = %v", err)
	}
	if anime.Title != "Fate：Zero" {
		t.Errorf("stored title = %q, want normalized %q", anime.Title, "Fate：Zero")
	}
}

func TestGetAnimeNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetAnime(context.Background(), 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAnime(9999) error = %v, want ErrNotFound", err)
	}
}

func TestListAnime(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	titles := []string{"Frieren", "Mushoku Tensei", "Oshi no Ko"}
	for _, title := range titles {
		if _, err := db.GetOrCreateAnime(ctx, title, models.MediaTypeTVSeries, 1, "", "", nil); err != nil {
			t.Fatalf("GetOrCreateAnime(%q) error = %v", title, err)
		}
	}

	list, total, err := db.ListAnime(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("ListAnime() error = %v", err)
	}
	if total != 3 {
		t.Errorf("ListAnime() total = %d, want 3", total)
	}
	if len(list) != 3 {
		t.Errorf("ListAnime() returned %d rows, want 3", len(list))
	}

	// Keyword filter is case-insensitive substring match.
	list, total, err = db.ListAnime(ctx, "frieren", 0, 10)
	if err != nil {
		t.Fatalf("ListAnime(keyword) error = %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("ListAnime(keyword) total = %d len = %d, want 1/1", total, len(list))
	}
	if list[0].Title != "Frieren" {
		t.Errorf("ListAnime(keyword)[0].Title = %q, want Frieren", list[0].Title)
	}
}

func TestUpdateMetadataIfEmpty(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.GetOrCreateAnime(ctx, "Frieren", models.MediaTypeTVSeries, 1, "", "", nil)
	if err != nil {
		t.Fatalf("GetOrCreateAnime() error = %v", err)
	}

	if err := db.UpdateMetadataIfEmpty(ctx, id, "tmdb-1", "", "", "", ""); err != nil {
		t.Fatalf("UpdateMetadataIfEmpty() error = %v", err)
	}

	// A second write must not overwrite the existing tmdb ID but may fill
	// the still-empty fields.
	if err := db.UpdateMetadataIfEmpty(ctx, id, "tmdb-2", "imdb-1", "", "", ""); err != nil {
		t.Fatalf("UpdateMetadataIfEmpty() second call error = %v", err)
	}

	anime, err := db.GetAnime(ctx, id)
	if err != nil {
		t.Fatalf("GetAnime() error = %v", err)
	}
	if anime.TMDBID != "tmdb-1" {
		t.Errorf("TMDBID = %q, want tmdb-1 (first write wins)", anime.TMDBID)
	}
	if anime.IMDBID != "imdb-1" {
		t.Errorf("IMDBID = %q, want imdb-1", anime.IMDBID)
	}
}

func TestDeleteAnimeCascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	animeID, sourceID := seedSource(t, db, "Frieren", "bilibili", "md1")
	episodeID, err := db.CreateEpisodeIfNotExists(ctx, sourceID, 1, "Ep 1", "", "ep1")
	if err != nil {
		t.Fatalf("CreateEpisodeIfNotExists() error = %v", err)
	}
	if _, err := db.BulkInsertComments(ctx, episodeID, []models.Comment{
		{CID: "c1", P: "1.00,1,25,16777215", M: "hello", T: 1},
	}); err != nil {
		t.Fatalf("BulkInsertComments() error = %v", err)
	}

	if err := db.DeleteAnime(ctx, animeID); err != nil {
		t.Fatalf("DeleteAnime() error = %v", err)
	}

	if _, err := db.GetSource(ctx, sourceID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSource() after cascade error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetEpisode(ctx, episodeID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEpisode() after cascade error = %v, want ErrNotFound", err)
	}
	count, err := db.CountComments(ctx, episodeID)
	if err != nil {
		t.Fatalf("CountComments() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountComments() after cascade = %d, want 0", count)
	}
}

func TestReassociateAnimeSources(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	srcAnime, srcSource := seedSource(t, db, "Frieren OAD", "bilibili", "md1")
	dstAnime, dstSource := seedSource(t, db, "Frieren", "tencent", "md2")

	// Favorite both sides; after the move the destination's own favorite
	// must survive and the incoming one must be demoted.
	if _, err := db.ToggleSourceFavorite(ctx, srcSource); err != nil {
		t.Fatalf("ToggleSourceFavorite(src) error = %v", err)
	}
	if _, err := db.ToggleSourceFavorite(ctx, dstSource); err != nil {
		t.Fatalf("ToggleSourceFavorite(dst) error = %v", err)
	}

	if err := db.ReassociateAnimeSources(ctx, srcAnime, dstAnime); err != nil {
		t.Fatalf("ReassociateAnimeSources() error = %v", err)
	}

	if _, err := db.GetAnime(ctx, srcAnime); !errors.Is(err, ErrNotFound) {
		t.Errorf("source anime still exists after reassociation: %v", err)
	}

	sources, err := db.ListSourcesByAnime(ctx, dstAnime)
	if err != nil {
		t.Fatalf("ListSourcesByAnime() error = %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("destination has %d sources, want 2", len(sources))
	}

	favorites := 0
	for _, s := range sources {
		if s.IsFavorited {
			favorites++
			if s.ID != dstSource {
				t.Errorf("favorite survived on source %d, want %d", s.ID, dstSource)
			}
		}
	}
	if favorites != 1 {
		t.Errorf("destination has %d favorites, want exactly 1", favorites)
	}
}

func TestReassociateAnimeSourcesSameID(t *testing.T) {
	db := setupTestDB(t)
	animeID, _ := seedSource(t, db, "Frieren", "bilibili", "md1")

	err := db.ReassociateAnimeSources(context.Background(), animeID, animeID)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("ReassociateAnimeSources(same, same) error = %v, want ErrConflict", err)
	}
}

func TestLinkSourceToAnime(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	animeID, sourceID := seedSource(t, db, "Frieren", "bilibili", "md1")

	// Re-linking the same binding to the same work is idempotent.
	again, err := db.LinkSourceToAnime(ctx, animeID, "bilibili", "md1")
	if err != nil {
		t.Fatalf("LinkSourceToAnime() repeat error = %v", err)
	}
	if again != sourceID {
		t.Errorf("repeat link = %d, want %d", again, sourceID)
	}

	// The same binding under a different work conflicts.
	otherAnime, err := db.GetOrCreateAnime(ctx, "Other", models.MediaTypeTVSeries, 1, "", "", nil)
	if err != nil {
		t.Fatalf("GetOrCreateAnime() error = %v", err)
	}
	if _, err := db.LinkSourceToAnime(ctx, otherAnime, "bilibili", "md1"); !errors.Is(err, ErrConflict) {
		t.Errorf("cross-work link error = %v, want ErrConflict", err)
	}
}

func TestFindSourceByMedia(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Absent bindings return nil without an error.
	src, err := db.FindSourceByMedia(ctx, "bilibili", "never-imported")
	if err != nil {
		t.Fatalf("FindSourceByMedia() absent error = %v", err)
	}
	if src != nil {
		t.Errorf("FindSourceByMedia() absent = %+v, want nil", src)
	}

	_, sourceID := seedSource(t, db, "Frieren", "bilibili", "md1")
	src, err = db.FindSourceByMedia(ctx, "bilibili", "md1")
	if err != nil {
		t.Fatalf("FindSourceByMedia() error = %v", err)
	}
	if src == nil || src.ID != sourceID {
		t.Errorf("FindSourceByMedia() = %+v, want source %d", src, sourceID)
	}
}

func TestToggleSourceFavoriteDemotesOthers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	animeID, source1 := seedSource(t, db, "Frieren", "bilibili", "md1")
	source2, err := db.LinkSourceToAnime(ctx, animeID, "tencent", "md2")
	if err != nil {
		t.Fatalf("LinkSourceToAnime() error = %v", err)
	}

	if status, err := db.ToggleSourceFavorite(ctx, source1); err != nil || !status {
		t.Fatalf("ToggleSourceFavorite(source1) = %v, %v, want true, nil", status, err)
	}
	if status, err := db.ToggleSourceFavorite(ctx, source2); err != nil || !status {
		t.Fatalf("ToggleSourceFavorite(source2) = %v, %v, want true, nil", status, err)
	}

	s1, err := db.GetSource(ctx, source1)
	if err != nil {
		t.Fatalf("GetSource() error = %v", err)
	}
	if s1.IsFavorited {
		t.Error("source1 still favorited after source2 was promoted")
	}

	// Toggling off leaves the work with no favorite.
	if status, err := db.ToggleSourceFavorite(ctx, source2); err != nil || status {
		t.Fatalf("ToggleSourceFavorite(source2) off = %v, %v, want false, nil", status, err)
	}
}

func TestClearSourceDataPreservesSource(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, sourceID := seedSource(t, db, "Frieren", "bilibili", "md1")
	episodeID, err := db.CreateEpisodeIfNotExists(ctx, sourceID, 1, "Ep 1", "", "ep1")
	if err != nil {
		t.Fatalf("CreateEpisodeIfNotExists() error = %v", err)
	}
	if _, err := db.BulkInsertComments(ctx, episodeID, []models.Comment{
		{CID: "c1", P: "1.00,1,25,16777215", M: "hello", T: 1},
	}); err != nil {
		t.Fatalf("BulkInsertComments() error = %v", err)
	}

	if err := db.ClearSourceData(ctx, sourceID); err != nil {
		t.Fatalf("ClearSourceData() error = %v", err)
	}

	if _, err := db.GetSource(ctx, sourceID); err != nil {
		t.Errorf("source row was deleted by ClearSourceData: %v", err)
	}
	episodes, err := db.ListEpisodesBySource(ctx, sourceID)
	if err != nil {
		t.Fatalf("ListEpisodesBySource() error = %v", err)
	}
	if len(episodes) != 0 {
		t.Errorf("episodes remain after ClearSourceData: %d", len(episodes))
	}
}
