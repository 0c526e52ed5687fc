package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mkarlsen/depot/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ArtifactRepository handles artifact and version metadata operations.
type ArtifactRepository struct {
	db *gorm.DB
}

// NewArtifactRepository creates a new ArtifactRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ArtifactRepository: repository instance bound to db.
func NewArtifactRepository(db *gorm.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// UpsertArtifact creates the artifact row for name if it does not
// exist yet and returns it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: artifact name.
//   - channel: release channel; empty keeps the existing/default value.
// Returns:
//   - *domain.Artifact: persisted artifact record.
//   - error: non-nil if the upsert fails.
func (r *ArtifactRepository) UpsertArtifact(ctx context.Context, name, channel string) (*domain.Artifact, error) {
	artifact := domain.Artifact{
		ID:      uuid.New().String(),
		Name:    name,
		Channel: channel,
	}
	if artifact.Channel == "" {
		artifact.Channel = "stable"
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"updated_at": time.Now()}),
	}).Create(&artifact).Error
	if err != nil {
		return nil, err
	}
	// Re-read so callers get the canonical row on conflict
	return r.GetArtifactByName(ctx, name)
}

// GetArtifactByName retrieves an artifact by name.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: artifact name.
// Returns:
//   - *domain.Artifact: artifact record if found.
//   - error: gorm.ErrRecordNotFound if missing.
func (r *ArtifactRepository) GetArtifactByName(ctx context.Context, name string) (*domain.Artifact, error) {
	var artifact domain.Artifact
	if err := r.db.WithContext(ctx).First(&artifact, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &artifact, nil
}

// ListArtifacts returns a page of artifacts, optionally filtered by channel.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - channel: channel filter; empty matches all.
//   - limit: max records to return.
//   - offset: records to skip.
// Returns:
//   - []domain.Artifact: matching artifacts.
//   - int64: total matching count ignoring paging.
//   - error: non-nil if the query fails.
func (r *ArtifactRepository) ListArtifacts(ctx context.Context, channel string, limit, offset int) ([]domain.Artifact, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.Artifact{})
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var artifacts []domain.Artifact
	if err := q.Order("name asc").Limit(limit).Offset(offset).Find(&artifacts).Error; err != nil {
		return nil, 0, err
	}
	return artifacts, total, nil
}

// CreateVersion inserts a new version record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - version: version record to persist.
// Returns:
//   - error: non-nil if the insert fails (including unique violations).
func (r *ArtifactRepository) CreateVersion(ctx context.Context, version *domain.ArtifactVersion) error {
	return r.db.WithContext(ctx).Create(version).Error
}

// GetVersion retrieves a specific version of an artifact.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - artifactID: owning artifact ID.
//   - version: version string.
// Returns:
//   - *domain.ArtifactVersion: version record if found.
//   - error: gorm.ErrRecordNotFound if missing.
func (r *ArtifactRepository) GetVersion(ctx context.Context, artifactID, version string) (*domain.ArtifactVersion, error) {
	var v domain.ArtifactVersion
	err := r.db.WithContext(ctx).
		First(&v, "artifact_id = ? AND version = ?", artifactID, version).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// LatestVersion retrieves the most recently published version.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - artifactID: owning artifact ID.
// Returns:
//   - *domain.ArtifactVersion: latest version record if any.
//   - error: gorm.ErrRecordNotFound if the artifact has no versions.
func (r *ArtifactRepository) LatestVersion(ctx context.Context, artifactID string) (*domain.ArtifactVersion, error) {
	var v domain.ArtifactVersion
	err := r.db.WithContext(ctx).
		Where("artifact_id = ?", artifactID).
		Order("published_at desc").
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVersions returns all versions of an artifact, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - artifactID: owning artifact ID.
// Returns:
//   - []domain.ArtifactVersion: version records.
//   - error: non-nil if the query fails.
func (r *ArtifactRepository) ListVersions(ctx context.Context, artifactID string) ([]domain.ArtifactVersion, error) {
	var versions []domain.ArtifactVersion
	err := r.db.WithContext(ctx).
		Where("artifact_id = ?", artifactID).
		Order("published_at desc").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// DeleteVersion removes a version record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - artifactID: owning artifact ID.
//   - version: version string.
// Returns:
//   - error: non-nil if the delete fails.
func (r *ArtifactRepository) DeleteVersion(ctx context.Context, artifactID, version string) error {
	return r.db.WithContext(ctx).
		Where("artifact_id = ? AND version = ?", artifactID, version).
		Delete(&domain.ArtifactVersion{}).Error
}

// FindVersionByChecksum retrieves any version record whose blob has the
// given checksum. Used to resolve blob metadata for downloads.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - checksum: sha256 hex of the blob.
// Returns:
//   - *domain.ArtifactVersion: a version referencing the blob.
//   - error: gorm.ErrRecordNotFound if no version references it.
func (r *ArtifactRepository) FindVersionByChecksum(ctx context.Context, checksum string) (*domain.ArtifactVersion, error) {
	var v domain.ArtifactVersion
	if err := r.db.WithContext(ctx).First(&v, "checksum = ?", checksum).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// CountChecksumRefs counts version records referencing a blob checksum.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - checksum: sha256 hex of the blob.
// Returns:
//   - int64: number of referencing versions.
//   - error: non-nil if the query fails.
func (r *ArtifactRepository) CountChecksumRefs(ctx context.Context, checksum string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.ArtifactVersion{}).
		Where("checksum = ?", checksum).
		Count(&count).Error
	return count, err
}
