// Package status keeps the per-prompt progress aggregate and fans updates out
// to subscribers.
package status

import (
	"strconv"
	"sync"
	"time"

	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
	"github.com/orpheus-edu/orpheus-core/internal/types"
)

// Callback receives a deep copy of the status after each update. A non-nil
// return drops the subscription.
type Callback func(types.Status) error

type subscription struct {
	ref string
	fn  Callback
}

type entry struct {
	status    types.Status
	updatedAt time.Time
	subs      []subscription
}

// Store holds the status of every active prompt in memory. All access runs
// under a single mutex so a patch, its fold and its fan-out are one atomic
// step from the subscribers' point of view.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*entry
	log     *logger.Logger
	now     func() time.Time
}

func NewStore(log *logger.Logger, ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		entries: make(map[string]*entry),
		log:     log.With("component", "status_store"),
		now:     time.Now,
	}
}

// Get returns a copy of the current status, creating a fresh record the first
// time a promptID is seen.
func (s *Store) Get(promptID string) types.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensure(promptID).status.Clone()
}

// Update folds patch into the stored status and notifies subscribers in the
// order they subscribed. Subscribers whose callback fails are removed.
func (s *Store) Update(promptID string, patch types.StatusPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.ensure(promptID)
	s.fold(promptID, &e.status, patch)
	e.updatedAt = s.now()

	if len(e.subs) == 0 {
		return
	}
	snapshot := e.status.Clone()
	kept := e.subs[:0]
	for _, sub := range e.subs {
		if err := sub.fn(snapshot); err != nil {
			s.log.Warn("dropping status subscriber",
				"prompt_id", promptID, "reference", sub.ref, "error", err)
			continue
		}
		kept = append(kept, sub)
	}
	e.subs = kept
}

// Subscribe registers cb under (promptID, ref) and immediately invokes it with
// the current snapshot. A second Subscribe with the same ref replaces the
// earlier callback.
func (s *Store) Subscribe(promptID, ref string, cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.ensure(promptID)
	replaced := false
	for i := range e.subs {
		if e.subs[i].ref == ref {
			e.subs[i].fn = cb
			replaced = true
			break
		}
	}
	if !replaced {
		e.subs = append(e.subs, subscription{ref: ref, fn: cb})
	}
	if err := cb(e.status.Clone()); err != nil {
		s.removeLocked(e, ref)
		s.log.Warn("status subscriber failed on initial snapshot",
			"prompt_id", promptID, "reference", ref, "error", err)
	}
}

func (s *Store) Unsubscribe(promptID, ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[promptID]; ok {
		s.removeLocked(e, ref)
	}
}

// PurgeStale drops records whose last update is older than the TTL. Their
// subscribers are dropped with them.
func (s *Store) PurgeStale(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, e := range s.entries {
		if now.Sub(e.updatedAt) > s.ttl {
			delete(s.entries, id)
			purged++
		}
	}
	if purged > 0 {
		s.log.Info("purged stale status records", "count", purged)
	}
	return purged
}

func (s *Store) ensure(promptID string) *entry {
	e, ok := s.entries[promptID]
	if !ok {
		e = &entry{status: types.NewStatus(), updatedAt: s.now()}
		s.entries[promptID] = e
	}
	return e
}

func (s *Store) removeLocked(e *entry, ref string) {
	for i := range e.subs {
		if e.subs[i].ref == ref {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// fold applies the non-nil fields of patch. The slide structure is applied
// before the avatar slot patches so a single patch can both set the structure
// and fill slots it just created.
func (s *Store) fold(promptID string, st *types.Status, patch types.StatusPatch) {
	if patch.StepUnderstanding != nil {
		st.StepUnderstanding = *patch.StepUnderstanding
	}
	if patch.StepLookup != nil {
		st.StepLookup = *patch.StepLookup
	}
	if patch.StepLectureScriptGeneration != nil {
		st.StepLectureScriptGeneration = *patch.StepLectureScriptGeneration
	}
	if patch.StepSlideStructureGeneration != nil {
		st.StepSlideStructureGeneration = *patch.StepSlideStructureGeneration
	}
	if patch.StepSlideGeneration != nil {
		st.StepSlideGeneration = *patch.StepSlideGeneration
	}
	if patch.StepSlidePostprocessing != nil {
		st.StepSlidePostprocessing = *patch.StepSlidePostprocessing
	}
	if patch.LectureSummary != nil {
		v := *patch.LectureSummary
		st.LectureSummary = &v
	}
	if patch.SlideStructure != nil {
		pages := make([]types.SlidePage, len(patch.SlideStructure.Pages))
		copy(pages, patch.SlideStructure.Pages)
		st.SlideStructure = &types.SlideStructure{Pages: pages}
		for len(st.StepsAvatarGeneration) < len(pages) {
			st.StepsAvatarGeneration = append(st.StepsAvatarGeneration, types.AvatarElementStatus{
				Audio: types.StepNotStarted,
				Video: types.StepNotStarted,
			})
		}
	}
	for key, slot := range patch.StepsAvatarGeneration {
		idx, err := strconv.Atoi(key)
		if err != nil {
			s.log.Warn("dropping avatar slot patch with bad key",
				"prompt_id", promptID, "key", key, "error", err)
			continue
		}
		if idx < 0 || idx >= len(st.StepsAvatarGeneration) {
			s.log.Warn("dropping out-of-range avatar slot patch",
				"prompt_id", promptID, "slot", idx, "slots", len(st.StepsAvatarGeneration))
			continue
		}
		st.StepsAvatarGeneration[idx] = slot
	}
}
