package memory

import (
	"context"
	"sync"

	pricing "qxlog/internal/pricing/domain"
)

// SettingRepository keeps the pricing setting in memory.
type SettingRepository struct {
	mu      sync.RWMutex
	setting *pricing.Setting
}

// NewSettingRepository constructs a repository, optionally pre-populated.
func NewSettingRepository(initial *pricing.Setting) *SettingRepository {
	repo := &SettingRepository{}
	if initial != nil {
		copy := *initial
		repo.setting = &copy
	}
	return repo
}

// Get returns a copy of the stored setting.
func (r *SettingRepository) Get(ctx context.Context) (*pricing.Setting, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.setting == nil {
		return nil, nil
	}
	copy := *r.setting
	return &copy, nil
}

// Save overwrites the stored setting.
func (r *SettingRepository) Save(ctx context.Context, setting pricing.Setting) error {
	_ = ctx
	r.mu.Lock()
	r.setting = &setting
	r.mu.Unlock()
	return nil
}
