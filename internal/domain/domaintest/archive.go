package domaintest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blackmichael/skystats/internal/domain"
)

// Archive is an in-memory domain.ReportRepository and domain.CursorRepository.
// ListReports ignores cursors and returns the newest summaries.
type Archive struct {
	SaveErr error

	mu        sync.Mutex
	summaries []domain.ReportSummary
	cursors   map[string]string
	cleanups  int
}

// NewArchive returns an empty Archive.
func NewArchive() *Archive {
	return &Archive{cursors: make(map[string]string)}
}

func (a *Archive) SaveReport(_ context.Context, s *domain.ReportSummary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SaveErr != nil {
		return a.SaveErr
	}
	if s.ID == "" {
		s.ID = fmt.Sprintf("report-%d", len(a.summaries)+1)
	}
	a.summaries = append(a.summaries, *s)
	return nil
}

func (a *Archive) ListReports(_ context.Context, did string, limit int, _ string) ([]domain.ReportSummary, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []domain.ReportSummary{}
	for i := len(a.summaries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if a.summaries[i].DID == did {
			out = append(out, a.summaries[i])
		}
	}
	return out, "", nil
}

func (a *Archive) DeleteOldReports(_ context.Context, maxAge time.Duration, maxRows int) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanups++

	cutoff := time.Now().Add(-maxAge)
	kept := a.summaries[:0]
	for _, s := range a.summaries {
		if maxAge <= 0 || !s.GeneratedAt.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	if maxRows > 0 && len(kept) > maxRows {
		kept = kept[len(kept)-maxRows:]
	}
	deleted := int64(len(a.summaries) - len(kept))
	a.summaries = kept
	return deleted, nil
}

func (a *Archive) GetCursor(_ context.Context, did string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursors[did], nil
}

func (a *Archive) UpdateCursor(_ context.Context, did, cursor string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cursors[did] = cursor
	return nil
}

// Summaries returns every saved summary, oldest first.
func (a *Archive) Summaries() []domain.ReportSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.ReportSummary(nil), a.summaries...)
}

// Cleanups returns how many times DeleteOldReports ran.
func (a *Archive) Cleanups() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cleanups
}
