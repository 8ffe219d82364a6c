package state

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/five82/metricdeck/internal/api"
)

func TestStore_UpdateAndSnapshotClone(t *testing.T) {
	var s Store

	periods := []api.Period{"2024-06", "2024-05"}

	before := time.Now()
	s.Update(periods, nil)

	snap := s.Snapshot()
	if !snap.HasPeriods || len(snap.Periods) != 2 || snap.Periods[0] != "2024-06" {
		t.Fatalf("snapshot periods = %#v, want 2 periods", snap.Periods)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil", snap.LastError)
	}

	// Returned snapshot should be independent of the stored one.
	snap.Periods[0] = "1999-01"
	periods[1] = "1999-02"
	snap2 := s.Snapshot()
	if snap2.Periods[0] != "2024-06" || snap2.Periods[1] != "2024-05" {
		t.Fatalf("Snapshot should clone periods; got %v", snap2.Periods)
	}
}

func TestStore_UpdateErrorKeepsPreviousData(t *testing.T) {
	var s Store

	s.Update([]api.Period{"2024-05"}, nil)
	prev := s.Snapshot()

	before := time.Now()
	origErr := errors.New("boom")
	s.Update(nil, origErr)

	snap := s.Snapshot()
	if !reflect.DeepEqual(snap.Periods, prev.Periods) || !snap.HasPeriods {
		t.Fatalf("periods changed on error: got %#v want %#v", snap.Periods, prev.Periods)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError == nil || snap.LastError.Error() != "boom" {
		t.Fatalf("LastError = %v, want boom", snap.LastError)
	}
	if !errors.Is(snap.LastError, origErr) {
		t.Fatalf("LastError should wrap the original error")
	}
	if reflect.ValueOf(snap.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatalf("Snapshot should clone error instance")
	}
}

func TestStore_ConsecutiveFailures(t *testing.T) {
	var s Store

	snap := s.Snapshot()
	if snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("fresh store = %d failures, offline %v", snap.ConsecutiveFailures, snap.IsOffline())
	}

	s.Update(nil, errors.New("fail 1"))
	snap = s.Snapshot()
	if snap.ConsecutiveFailures != 1 {
		t.Fatalf("ConsecutiveFailures = %d, want 1", snap.ConsecutiveFailures)
	}
	if snap.IsOffline() {
		t.Fatal("IsOffline() = true, want false with 1 failure")
	}

	s.Update(nil, errors.New("fail 2"))
	snap = s.Snapshot()
	if !snap.IsOffline() {
		t.Fatal("IsOffline() = false, want true with 2 failures")
	}

	s.Update([]api.Period{"2024-05"}, nil)
	snap = s.Snapshot()
	if snap.ConsecutiveFailures != 0 {
		t.Fatalf("ConsecutiveFailures = %d, want 0 after success", snap.ConsecutiveFailures)
	}
	if snap.IsOffline() {
		t.Fatal("IsOffline() = true, want false after success")
	}
}

func TestStore_Reset(t *testing.T) {
	var s Store
	s.Update([]api.Period{"2024-05"}, nil)
	s.Reset()
	if snap := s.Snapshot(); snap.HasPeriods || snap.Periods != nil {
		t.Fatalf("Reset left %#v", snap)
	}
}
