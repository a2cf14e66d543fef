package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/sheetmerge/internal/core/domain"
	"github.com/vietddude/sheetmerge/internal/infra/storage"
)

type MemoryStorage struct {
	runs   map[string]*domain.RunReport
	order  []string
	failed map[string]*domain.FailedSheet
	mu     sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		runs:   make(map[string]*domain.RunReport),
		failed: make(map[string]*domain.FailedSheet),
	}
}

// -----------------------------------------------------------------------------
// Run Repository
// -----------------------------------------------------------------------------

type RunRepo struct {
	store *MemoryStorage
}

func NewRunRepo(store *MemoryStorage) *RunRepo {
	return &RunRepo{store: store}
}

func (r *RunRepo) Save(ctx context.Context, report *domain.RunReport) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.runs[report.ID]; !ok {
		r.store.order = append(r.store.order, report.ID)
	}
	cp := *report
	cp.Sheets = append([]domain.SheetResult(nil), report.Sheets...)
	r.store.runs[report.ID] = &cp
	return nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (*domain.RunReport, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	report, ok := r.store.runs[id]
	if !ok {
		return nil, storage.ErrRunNotFound
	}
	cp := *report
	return &cp, nil
}

func (r *RunRepo) List(ctx context.Context, limit int) ([]*domain.RunReport, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.RunReport
	for i := len(r.store.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *r.store.runs[r.store.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Failed Sheet Repository
// -----------------------------------------------------------------------------

type FailedRepo struct {
	store *MemoryStorage
}

func NewFailedRepo(store *MemoryStorage) *FailedRepo {
	return &FailedRepo{store: store}
}

func (r *FailedRepo) Add(ctx context.Context, fs *domain.FailedSheet) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *fs
	cp.FailureCount = 1
	if prev, ok := r.store.failed[fs.Title]; ok {
		cp.FailureCount = prev.FailureCount + 1
	}
	if cp.LastFailedAt == 0 {
		cp.LastFailedAt = time.Now().Unix()
	}
	r.store.failed[fs.Title] = &cp
	return nil
}

func (r *FailedRepo) MarkResolved(ctx context.Context, title string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.failed, title)
	return nil
}

func (r *FailedRepo) GetAll(ctx context.Context) ([]*domain.FailedSheet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.FailedSheet, 0, len(r.store.failed))
	for _, fs := range r.store.failed {
		cp := *fs
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FailureCount != out[j].FailureCount {
			return out[i].FailureCount < out[j].FailureCount
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func (r *FailedRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.failed), nil
}
