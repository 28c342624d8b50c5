package status

import (
	"errors"
	"testing"
	"time"

	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
	"github.com/orpheus-edu/orpheus-core/internal/types"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(mustTestLogger(t), 24*time.Hour)
}

func TestGetCreatesFreshRecord(t *testing.T) {
	s := newTestStore(t)
	got := s.Get("p1")
	if got.StepUnderstanding != types.StepNotStarted {
		t.Fatalf("stepUnderstanding = %q, want %q", got.StepUnderstanding, types.StepNotStarted)
	}
	if got.StepSlideGeneration != 0 {
		t.Fatalf("stepSlideGeneration = %d, want 0", got.StepSlideGeneration)
	}
	if len(got.StepsAvatarGeneration) != 0 {
		t.Fatalf("stepsAvatarGeneration = %v, want empty", got.StepsAvatarGeneration)
	}
}

func TestUpdateFoldsScalars(t *testing.T) {
	s := newTestStore(t)
	s.Update("p1", types.StatusPatch{
		StepUnderstanding: types.StepPtr(types.StepDone),
		LectureSummary:    types.StrPtr("covers sorting"),
	})
	s.Update("p1", types.StatusPatch{StepLookup: types.StepPtr(types.StepInProgress)})

	got := s.Get("p1")
	if got.StepUnderstanding != types.StepDone {
		t.Fatalf("stepUnderstanding = %q", got.StepUnderstanding)
	}
	if got.StepLookup != types.StepInProgress {
		t.Fatalf("stepLookup = %q", got.StepLookup)
	}
	if got.LectureSummary == nil || *got.LectureSummary != "covers sorting" {
		t.Fatalf("lectureSummary = %v", got.LectureSummary)
	}
}

func TestSlideStructureExtendsAvatarSlots(t *testing.T) {
	s := newTestStore(t)
	s.Update("p1", types.StatusPatch{
		SlideStructure: &types.SlideStructure{Pages: []types.SlidePage{
			{Content: "# One"}, {Content: "# Two"}, {Content: "# Three"},
		}},
	})
	got := s.Get("p1")
	if len(got.StepsAvatarGeneration) != 3 {
		t.Fatalf("slots = %d, want 3", len(got.StepsAvatarGeneration))
	}
	for i, slot := range got.StepsAvatarGeneration {
		if slot.Audio != types.StepNotStarted || slot.Video != types.StepNotStarted {
			t.Fatalf("slot %d = %+v, want NOT_STARTED pair", i, slot)
		}
	}

	// A shorter structure must not shrink the slot list.
	s.Update("p1", types.StatusPatch{
		SlideStructure: &types.SlideStructure{Pages: []types.SlidePage{{Content: "# Only"}}},
	})
	if got := s.Get("p1"); len(got.StepsAvatarGeneration) != 3 {
		t.Fatalf("slots after shorter structure = %d, want 3", len(got.StepsAvatarGeneration))
	}
}

func TestAvatarSlotPatches(t *testing.T) {
	s := newTestStore(t)
	s.Update("p1", types.StatusPatch{
		SlideStructure: &types.SlideStructure{Pages: []types.SlidePage{{}, {}}},
	})
	s.Update("p1", types.StatusPatch{
		StepsAvatarGeneration: map[string]types.AvatarElementStatus{
			"1":     {Audio: types.StepDone, Video: types.StepInProgress},
			"7":     {Audio: types.StepDone, Video: types.StepDone}, // out of range, dropped
			"bogus": {Audio: types.StepDone, Video: types.StepDone}, // bad key, dropped
		},
	})
	got := s.Get("p1")
	if got.StepsAvatarGeneration[0].Audio != types.StepNotStarted {
		t.Fatalf("slot 0 touched: %+v", got.StepsAvatarGeneration[0])
	}
	if got.StepsAvatarGeneration[1].Audio != types.StepDone ||
		got.StepsAvatarGeneration[1].Video != types.StepInProgress {
		t.Fatalf("slot 1 = %+v", got.StepsAvatarGeneration[1])
	}
	if len(got.StepsAvatarGeneration) != 2 {
		t.Fatalf("slots = %d, want 2", len(got.StepsAvatarGeneration))
	}
}

func TestStructureAndSlotInOnePatch(t *testing.T) {
	s := newTestStore(t)
	s.Update("p1", types.StatusPatch{
		SlideStructure: &types.SlideStructure{Pages: []types.SlidePage{{}, {}}},
		StepsAvatarGeneration: map[string]types.AvatarElementStatus{
			"0": {Audio: types.StepInProgress, Video: types.StepNotStarted},
		},
	})
	got := s.Get("p1")
	if got.StepsAvatarGeneration[0].Audio != types.StepInProgress {
		t.Fatalf("slot 0 = %+v", got.StepsAvatarGeneration[0])
	}
}

func TestSubscribeInvokesImmediately(t *testing.T) {
	s := newTestStore(t)
	s.Update("p1", types.StatusPatch{StepUnderstanding: types.StepPtr(types.StepDone)})

	var seen []types.Status
	s.Subscribe("p1", "conn-1", func(st types.Status) error {
		seen = append(seen, st)
		return nil
	})
	if len(seen) != 1 {
		t.Fatalf("initial snapshot count = %d, want 1", len(seen))
	}
	if seen[0].StepUnderstanding != types.StepDone {
		t.Fatalf("snapshot stepUnderstanding = %q", seen[0].StepUnderstanding)
	}

	s.Update("p1", types.StatusPatch{StepLookup: types.StepPtr(types.StepDone)})
	if len(seen) != 2 {
		t.Fatalf("updates seen = %d, want 2", len(seen))
	}
	if seen[1].StepLookup != types.StepDone {
		t.Fatalf("second snapshot stepLookup = %q", seen[1].StepLookup)
	}
}

func TestSubscribersNotifiedInOrderAndFailingDropped(t *testing.T) {
	s := newTestStore(t)

	var order []string
	s.Subscribe("p1", "a", func(types.Status) error {
		order = append(order, "a")
		return nil
	})
	failing := 0
	s.Subscribe("p1", "b", func(types.Status) error {
		failing++
		if failing > 1 {
			return errors.New("connection gone")
		}
		order = append(order, "b")
		return nil
	})
	s.Subscribe("p1", "c", func(types.Status) error {
		order = append(order, "c")
		return nil
	})
	order = order[:0]

	s.Update("p1", types.StatusPatch{StepLookup: types.StepPtr(types.StepDone)})
	if want := []string{"a", "c"}; len(order) != 2 || order[0] != want[0] || order[1] != want[1] {
		t.Fatalf("notification order = %v, want %v", order, want)
	}

	// The failed subscriber stays dropped.
	order = order[:0]
	s.Update("p1", types.StatusPatch{StepLookup: types.StepPtr(types.StepDone)})
	if len(order) != 2 {
		t.Fatalf("notifications after drop = %v", order)
	}
}

func TestUnsubscribe(t *testing.T) {
	s := newTestStore(t)
	calls := 0
	s.Subscribe("p1", "conn-1", func(types.Status) error {
		calls++
		return nil
	})
	s.Unsubscribe("p1", "conn-1")
	s.Update("p1", types.StatusPatch{StepLookup: types.StepPtr(types.StepDone)})
	if calls != 1 {
		t.Fatalf("calls = %d, want only the initial snapshot", calls)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := newTestStore(t)
	s.Update("p1", types.StatusPatch{
		SlideStructure: &types.SlideStructure{Pages: []types.SlidePage{{Content: "# One"}}},
	})
	got := s.Get("p1")
	got.StepsAvatarGeneration[0].Audio = types.StepFailed
	got.SlideStructure.Pages[0].Content = "mutated"

	fresh := s.Get("p1")
	if fresh.StepsAvatarGeneration[0].Audio != types.StepNotStarted {
		t.Fatalf("store mutated through snapshot: %+v", fresh.StepsAvatarGeneration[0])
	}
	if fresh.SlideStructure.Pages[0].Content != "# One" {
		t.Fatalf("structure mutated through snapshot: %q", fresh.SlideStructure.Pages[0].Content)
	}
}

func TestPurgeStale(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.Update("old", types.StatusPatch{StepUnderstanding: types.StepPtr(types.StepDone)})

	s.now = func() time.Time { return base.Add(23 * time.Hour) }
	s.Update("fresh", types.StatusPatch{StepUnderstanding: types.StepPtr(types.StepDone)})

	if purged := s.PurgeStale(base.Add(25 * time.Hour)); purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	// The purged record starts over on the next access.
	if got := s.Get("old"); got.StepUnderstanding != types.StepNotStarted {
		t.Fatalf("old record survived purge: %+v", got)
	}
	if got := s.Get("fresh"); got.StepUnderstanding != types.StepDone {
		t.Fatalf("fresh record purged: %+v", got)
	}
}
