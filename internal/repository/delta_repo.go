package repository

import (
	"context"

	"github.com/mkarlsen/depot/internal/domain"
	"gorm.io/gorm"
)

// DeltaRepository handles delta metadata operations.
type DeltaRepository struct {
	db *gorm.DB
}

// NewDeltaRepository creates a new DeltaRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *DeltaRepository: repository instance bound to db.
func NewDeltaRepository(db *gorm.DB) *DeltaRepository {
	return &DeltaRepository{db: db}
}

// Create inserts a new delta record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - delta: delta record to persist.
// Returns:
//   - error: non-nil if the insert fails (including unique violations).
func (r *DeltaRepository) Create(ctx context.Context, delta *domain.Delta) error {
	return r.db.WithContext(ctx).Create(delta).Error
}

// Get retrieves the delta spanning from→to for an artifact.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - artifactID: owning artifact ID.
//   - from: source version.
//   - to: target version.
// Returns:
//   - *domain.Delta: delta record if found.
//   - error: gorm.ErrRecordNotFound if missing.
func (r *DeltaRepository) Get(ctx context.Context, artifactID, from, to string) (*domain.Delta, error) {
	var delta domain.Delta
	err := r.db.WithContext(ctx).
		First(&delta, "artifact_id = ? AND from_version = ? AND to_version = ?", artifactID, from, to).Error
	if err != nil {
		return nil, err
	}
	return &delta, nil
}

// FindByChecksum retrieves any delta record whose payload has the given
// checksum.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - checksum: sha256 hex of the delta payload.
// Returns:
//   - *domain.Delta: a delta referencing the payload.
//   - error: gorm.ErrRecordNotFound if no delta references it.
func (r *DeltaRepository) FindByChecksum(ctx context.Context, checksum string) (*domain.Delta, error) {
	var delta domain.Delta
	if err := r.db.WithContext(ctx).First(&delta, "checksum = ?", checksum).Error; err != nil {
		return nil, err
	}
	return &delta, nil
}

// CountChecksumRefs counts delta records referencing a payload checksum.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - checksum: sha256 hex of the payload.
// Returns:
//   - int64: number of referencing deltas.
//   - error: non-nil if the query fails.
func (r *DeltaRepository) CountChecksumRefs(ctx context.Context, checksum string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Delta{}).
		Where("checksum = ?", checksum).
		Count(&count).Error
	return count, err
}
