// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("SELECT", "comments"))

	RecordDBQuery("SELECT", "comments", 10*time.Millisecond, nil)
	RecordDBQuery("SELECT", "comments", 10*time.Millisecond, errors.New("io error"))

	after := testutil.ToFloat64(DBQueryErrors.WithLabelValues("SELECT", "comments"))
	if after-before != 1 {
		t.Errorf("error counter delta = %v, want 1", after-before)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/comments/{episodeId}", "200"))

	RecordAPIRequest("GET", "/api/comments/{episodeId}", "200", 25*time.Millisecond)
	RecordAPIRequest("GET", "/api/comments/{episodeId}", "200", 5*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/comments/{episodeId}", "200"))
	if after-before != 2 {
		t.Errorf("request counter delta = %v, want 2", after-before)
	}
}

func TestTrackActiveRequestBalances(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
	TrackActiveRequest(false)

	after := testutil.ToFloat64(APIActiveRequests)
	if after != before {
		t.Errorf("active gauge = %v, want %v", after, before)
	}
}

func TestRecordProviderFetch(t *testing.T) {
	okBefore := testutil.ToFloat64(ProviderRequests.WithLabelValues("bilibili", "success"))
	errBefore := testutil.ToFloat64(ProviderRequests.WithLabelValues("bilibili", "error"))
	fetchedBefore := testutil.ToFloat64(CommentsFetched.WithLabelValues("bilibili"))

	RecordProviderFetch("bilibili", 2*time.Second, 1500, nil)
	RecordProviderFetch("bilibili", time.Second, 0, errors.New("upstream 503"))

	if d := testutil.ToFloat64(ProviderRequests.WithLabelValues("bilibili", "success")) - okBefore; d != 1 {
		t.Errorf("success delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(ProviderRequests.WithLabelValues("bilibili", "error")) - errBefore; d != 1 {
		t.Errorf("error delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(CommentsFetched.WithLabelValues("bilibili")) - fetchedBefore; d != 1500 {
		t.Errorf("fetched delta = %v, want 1500", d)
	}
}

func TestRecordTaskFinished(t *testing.T) {
	before := testutil.ToFloat64(TasksFinished.WithLabelValues("download", "completed"))

	RecordTaskFinished("download", "completed", 30*time.Second)

	after := testutil.ToFloat64(TasksFinished.WithLabelValues("download", "completed"))
	if after-before != 1 {
		t.Errorf("finished counter delta = %v, want 1", after-before)
	}
}

func TestConcurrentRecording(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				RecordAPIRequest("GET", "/api/search/provider", "200", time.Millisecond)
				RecordDBQuery("INSERT", "comments", time.Millisecond, nil)
				TrackActiveRequest(true)
				TrackActiveRequest(false)
			}
		}()
	}
	wg.Wait()
}
