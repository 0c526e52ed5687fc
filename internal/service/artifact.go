package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mkarlsen/depot/internal/domain"
	"github.com/mkarlsen/depot/internal/logger"
	"github.com/mkarlsen/depot/internal/repository"
	"github.com/mkarlsen/depot/internal/storage"
	"gorm.io/gorm"
)

// ArtifactService coordinates artifact metadata and blob content.
type ArtifactService struct {
	artifacts *repository.ArtifactRepository
	deltas    *repository.DeltaRepository
	store     storage.BlobStore
	log       *logger.Logger
}

// NewArtifactService creates a new ArtifactService.
func NewArtifactService(
	artifacts *repository.ArtifactRepository,
	deltas *repository.DeltaRepository,
	store storage.BlobStore,
	log *logger.Logger,
) *ArtifactService {
	if log == nil {
		log = logger.GetDefault()
	}
	return &ArtifactService{
		artifacts: artifacts,
		deltas:    deltas,
		store:     store,
		log:       log,
	}
}

// ArtifactList is one page of artifacts.
type ArtifactList struct {
	Results []domain.Artifact `json:"results"`
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

// ArtifactDetail is an artifact together with its latest version, when
// one has been published.
type ArtifactDetail struct {
	Artifact domain.Artifact         `json:"artifact"`
	Latest   *domain.ArtifactVersion `json:"latest,omitempty"`
}

// PublishInput describes a version publish request. Body is consumed
// exactly once.
type PublishInput struct {
	Name        string
	Version     string
	Channel     string
	ContentType string
	Body        io.Reader
}

// BlobMeta describes a stored blob resolvable by checksum.
type BlobMeta struct {
	Checksum    string `json:"checksum"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// List returns a page of artifacts, optionally filtered by channel.
func (s *ArtifactService) List(ctx context.Context, channel string, limit, offset int) (*ArtifactList, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	artifacts, total, err := s.artifacts.ListArtifacts(ctx, channel, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return &ArtifactList{
		Results: artifacts,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// Get returns an artifact and its latest published version.
func (s *ArtifactService) Get(ctx context.Context, name string) (*ArtifactDetail, error) {
	artifact, err := s.artifacts.GetArtifactByName(ctx, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}

	detail := &ArtifactDetail{Artifact: *artifact}
	latest, err := s.artifacts.LatestVersion(ctx, artifact.ID)
	if err == nil {
		detail.Latest = latest
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load latest version: %w", err)
	}
	return detail, nil
}

// ListVersions returns all versions of an artifact, newest first.
func (s *ArtifactService) ListVersions(ctx context.Context, name string) ([]domain.ArtifactVersion, error) {
	artifact, err := s.artifacts.GetArtifactByName(ctx, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}

	versions, err := s.artifacts.ListVersions(ctx, artifact.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

// GetVersion returns one version of an artifact.
func (s *ArtifactService) GetVersion(ctx context.Context, name, version string) (*domain.ArtifactVersion, error) {
	artifact, err := s.artifacts.GetArtifactByName(ctx, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}

	v, err := s.artifacts.GetVersion(ctx, artifact.ID, version)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load version: %w", err)
	}
	return v, nil
}

// Publish stores the uploaded blob content-addressed by its sha256 and
// records the version metadata. Publishing an existing version returns
// ErrVersionExists.
func (s *ArtifactService) Publish(ctx context.Context, in *PublishInput) (*domain.ArtifactVersion, error) {
	artifact, err := s.artifacts.UpsertArtifact(ctx, in.Name, in.Channel)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert artifact: %w", err)
	}

	if _, err := s.artifacts.GetVersion(ctx, artifact.ID, in.Version); err == nil {
		return nil, ErrVersionExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check version: %w", err)
	}

	checksum, size, spool, cleanup, err := spoolAndHash(in.Body)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// The checksum doubles as the blob key, so re-publishing identical
	// content under a new version is metadata-only.
	exists, err := s.store.Exists(ctx, checksum)
	if err != nil {
		return nil, fmt.Errorf("failed to check blob: %w", err)
	}
	if !exists {
		if err := s.store.Put(ctx, checksum, spool, size, contentType); err != nil {
			return nil, fmt.Errorf("failed to store blob: %w", err)
		}
	}

	v := &domain.ArtifactVersion{
		ID:          uuid.New().String(),
		ArtifactID:  artifact.ID,
		Version:     in.Version,
		Checksum:    checksum,
		Size:        size,
		ContentType: contentType,
		PublishedAt: time.Now(),
	}
	if err := s.artifacts.CreateVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to record version: %w", err)
	}

	s.log.WithFields(logger.Fields{
		logger.FieldArtifact: in.Name,
		logger.FieldVersion:  in.Version,
		logger.FieldSize:     size,
	}).Infof("version published")

	return v, nil
}

// DeleteVersion removes a version and garbage-collects its blob when no
// other version or delta references it.
func (s *ArtifactService) DeleteVersion(ctx context.Context, name, version string) error {
	v, err := s.GetVersion(ctx, name, version)
	if err != nil {
		return err
	}

	if err := s.artifacts.DeleteVersion(ctx, v.ArtifactID, version); err != nil {
		return fmt.Errorf("failed to delete version: %w", err)
	}

	refs, err := s.artifacts.CountChecksumRefs(ctx, v.Checksum)
	if err != nil {
		return fmt.Errorf("failed to count blob refs: %w", err)
	}
	deltaRefs, err := s.deltas.CountChecksumRefs(ctx, v.Checksum)
	if err != nil {
		return fmt.Errorf("failed to count delta refs: %w", err)
	}
	if refs+deltaRefs == 0 {
		if err := s.store.Delete(ctx, v.Checksum); err != nil {
			// Metadata is already gone; an orphaned blob is preferable
			// to a failed delete.
			s.log.WithError(err).Warnf("failed to delete unreferenced blob %s", v.Checksum)
		}
	}

	s.log.WithFields(logger.Fields{
		logger.FieldArtifact: name,
		logger.FieldVersion:  version,
	}).Infof("version deleted")

	return nil
}

// StatBlob resolves metadata for a blob by checksum, whether the blob
// backs a version or a delta payload.
func (s *ArtifactService) StatBlob(ctx context.Context, checksum string) (*BlobMeta, error) {
	if v, err := s.artifacts.FindVersionByChecksum(ctx, checksum); err == nil {
		return &BlobMeta{Checksum: checksum, Size: v.Size, ContentType: v.ContentType}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to resolve blob: %w", err)
	}

	if d, err := s.deltas.FindByChecksum(ctx, checksum); err == nil {
		return &BlobMeta{Checksum: checksum, Size: d.Size, ContentType: "application/octet-stream"}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to resolve blob: %w", err)
	}

	return nil, ErrNotFound
}

// OpenBlob opens a blob payload for streaming.
func (s *ArtifactService) OpenBlob(ctx context.Context, checksum string) (io.ReadCloser, error) {
	return s.store.Get(ctx, checksum)
}

// spoolAndHash copies body to a temp file while computing its sha256,
// then rewinds the spool for upload. cleanup closes and removes the
// spool and must always be called.
func spoolAndHash(body io.Reader) (checksum string, size int64, spool *os.File, cleanup func(), err error) {
	tmp, err := os.CreateTemp("", "depot-upload-*")
	if err != nil {
		return "", 0, nil, nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	cleanup = func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	h := sha256.New()
	size, err = io.Copy(tmp, io.TeeReader(body, h))
	if err != nil {
		cleanup()
		return "", 0, nil, nil, fmt.Errorf("failed to spool upload: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return "", 0, nil, nil, fmt.Errorf("failed to rewind spool: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), size, tmp, cleanup, nil
}
