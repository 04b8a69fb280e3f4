// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package task

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/okanami/barrage/internal/logging"
)

const paramKeyPrefix = "task_params:"

// recoveryRecord is the per-task payload cached for restart recovery.
type recoveryRecord struct {
	TaskType   string `json:"taskType"`
	Parameters string `json:"parameters"`
}

// ParamStore caches (taskType, taskParameters) per active task in
// BadgerDB so an interrupted task can be identified after a crash.
// Entries are removed when the task reaches a terminal state.
type ParamStore struct {
	db *badger.DB
}

// OpenParamStore opens the recovery cache at dir. An empty dir opens
// an in-memory store, used by tests.
func OpenParamStore(dir string) (*ParamStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open task recovery store: %w", err)
	}
	return &ParamStore{db: db}, nil
}

// Put caches the recovery record for a task.
func (s *ParamStore) Put(taskID, taskType, parameters string) error {
	data, err := json.Marshal(recoveryRecord{TaskType: taskType, Parameters: parameters})
	if err != nil {
		return fmt.Errorf("failed to encode recovery record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(paramKeyPrefix+taskID), data)
	})
}

// Get returns the cached record, or ok=false when none exists.
func (s *ParamStore) Get(taskID string) (taskType, parameters string, ok bool, err error) {
	var record recoveryRecord
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(paramKeyPrefix + taskID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("failed to read recovery record: %w", err)
	}
	return record.TaskType, record.Parameters, true, nil
}

// Delete drops the record for a finished task. Missing keys are fine.
func (s *ParamStore) Delete(taskID string) {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(paramKeyPrefix + taskID))
	})
	if err != nil {
		logging.Warn().Err(err).Str("task_id", taskID).Msg("failed to drop recovery record")
	}
}

// Close closes the underlying store.
func (s *ParamStore) Close() error {
	return s.db.Close()
}
