// Package jobs tracks slide materialization runs for the slides API surface.
package jobs

import (
	"sync"
	"time"

	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
)

const (
	StateInProgress = "IN_PROGRESS"
	StateDone       = "DONE"
	StateFailed     = "FAILED"
)

// JobStatus is the externally visible view of one materialization run.
type JobStatus struct {
	Status        string    `json:"status"`
	TotalPages    int       `json:"totalPages"`
	AchievedPages int       `json:"achievedPages"`
	Error         *string   `json:"error,omitempty"`
	WebURL        *string   `json:"webUrl,omitempty"`
	PDFURL        *string   `json:"pdfUrl,omitempty"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

type jobRecord struct {
	total       int
	achieved    int
	err         *string
	uploaded    bool
	webURL      *string
	pdfURL      *string
	lastUpdated time.Time
}

// Manager is the in-memory job registry. Records expire TTL after their last
// mutation; eviction runs opportunistically on every mutating call.
type Manager struct {
	mu   sync.Mutex
	ttl  time.Duration
	jobs map[string]*jobRecord
	log  *logger.Logger
	now  func() time.Time
}

func NewManager(log *logger.Logger, ttl time.Duration) *Manager {
	return &Manager{
		ttl:  ttl,
		jobs: make(map[string]*jobRecord),
		log:  log.With("component", "job_manager"),
		now:  time.Now,
	}
}

// Init registers a run with the expected page count, replacing any earlier
// record under the same promptID.
func (m *Manager) Init(promptID string, totalPages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked()
	m.jobs[promptID] = &jobRecord{total: totalPages, lastUpdated: m.now()}
}

// FinishPage counts one materialized page.
func (m *Manager) FinishPage(promptID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked()
	if j, ok := m.jobs[promptID]; ok {
		j.achieved++
		j.lastUpdated = m.now()
	}
}

// Fail marks the run failed. The first failure wins.
func (m *Manager) Fail(promptID string, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked()
	if j, ok := m.jobs[promptID]; ok {
		if j.err == nil {
			j.err = &msg
		}
		j.lastUpdated = m.now()
	}
}

// FinishUpload records the published deck locations.
func (m *Manager) FinishUpload(promptID, webURL, pdfURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked()
	if j, ok := m.jobs[promptID]; ok {
		// URLs are frozen by the first upload.
		if !j.uploaded {
			j.uploaded = true
			j.webURL = &webURL
			j.pdfURL = &pdfURL
		}
		j.lastUpdated = m.now()
	}
}

// GetStatus returns the derived view of the run, or ok=false when the job is
// unknown or already evicted.
func (m *Manager) GetStatus(promptID string) (JobStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[promptID]
	if !ok {
		return JobStatus{}, false
	}
	out := JobStatus{
		Status:        StateInProgress,
		TotalPages:    j.total,
		AchievedPages: j.achieved,
		Error:         j.err,
		WebURL:        j.webURL,
		PDFURL:        j.pdfURL,
		LastUpdated:   j.lastUpdated,
	}
	switch {
	case j.err != nil:
		out.Status = StateFailed
	case j.uploaded && j.achieved == j.total:
		out.Status = StateDone
	}
	return out, true
}

func (m *Manager) evictLocked() {
	cutoff := m.now().Add(-m.ttl)
	for id, j := range m.jobs {
		if j.lastUpdated.Before(cutoff) {
			delete(m.jobs, id)
			m.log.Debug("evicted expired job", "prompt_id", id)
		}
	}
}
