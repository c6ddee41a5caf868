package qbsync

import (
	"testing"
	"time"
)

func TestClampToFloor(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	floor := now.Add(-checkpointFloor)

	// A fresh tenant with no candidates at all resolves to exactly the floor.
	if got := clampToFloor(time.Time{}, floor); !got.Equal(floor) {
		t.Fatalf("zero candidate must clamp to floor, got %v", got)
	}

	// A stale checkpoint older than 30 days is raised to the floor: the CDC
	// endpoint cannot serve history past it anyway.
	stale := now.Add(-45 * 24 * time.Hour)
	if got := clampToFloor(stale, floor); !got.Equal(floor) {
		t.Fatalf("stale candidate must clamp to floor, got %v", got)
	}

	// A recent checkpoint passes through untouched.
	recent := now.Add(-2 * 24 * time.Hour)
	if got := clampToFloor(recent, floor); !got.Equal(recent) {
		t.Fatalf("recent candidate must pass through, got %v", got)
	}

	// Exactly at the floor is not clamped.
	if got := clampToFloor(floor, floor); !got.Equal(floor) {
		t.Fatalf("floor candidate must pass through, got %v", got)
	}
}

func TestChooseStartPoint_PreferenceOrder(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	floor := now.Add(-checkpointFloor)
	checkpoint := now.Add(-3 * 24 * time.Hour)
	localMax := now.Add(-10 * 24 * time.Hour)
	stale := now.Add(-60 * 24 * time.Hour)

	cases := []struct {
		name       string
		checkpoint *time.Time
		localMax   *time.Time
		want       time.Time
		wantSource string
	}{
		{"checkpoint beats local max", &checkpoint, &localMax, checkpoint, "sync_log"},
		{"local max when no checkpoint", nil, &localMax, localMax, "max_updated_at"},
		{"floor when nothing local", nil, nil, floor, "floor"},
		{"stale checkpoint clamps but still wins", &stale, &localMax, floor, "sync_log"},
		{"stale local max clamps", nil, &stale, floor, "max_updated_at"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, source := chooseStartPoint(tc.checkpoint, tc.localMax, now)
			if !got.Equal(tc.want) {
				t.Fatalf("start point = %v, want %v", got, tc.want)
			}
			if source != tc.wantSource {
				t.Fatalf("source = %q, want %q", source, tc.wantSource)
			}
		})
	}
}

func TestCheckpointFloorIsThirtyDays(t *testing.T) {
	if checkpointFloor != 30*24*time.Hour {
		t.Fatalf("floor = %v", checkpointFloor)
	}
}
