package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/mkarlsen/depot/internal/domain"
	"github.com/mkarlsen/depot/internal/logger"
	"github.com/mkarlsen/depot/internal/repository"
	"github.com/mkarlsen/depot/internal/storage"
	"gorm.io/gorm"
)

// DeltaService serves precomputed deltas between artifact versions.
// The server never computes binary diffs itself; publishers register
// them, clients look them up, and a missing delta falls back to the
// full blob of the target version.
type DeltaService struct {
	deltas    *repository.DeltaRepository
	artifacts *repository.ArtifactRepository
	store     storage.BlobStore
	log       *logger.Logger
}

// NewDeltaService creates a new DeltaService.
func NewDeltaService(
	deltas *repository.DeltaRepository,
	artifacts *repository.ArtifactRepository,
	store storage.BlobStore,
	log *logger.Logger,
) *DeltaService {
	if log == nil {
		log = logger.GetDefault()
	}
	return &DeltaService{
		deltas:    deltas,
		artifacts: artifacts,
		store:     store,
		log:       log,
	}
}

// DeltaLookup is the result of a delta query. When Delta is nil no
// delta spans the requested versions and FallbackChecksum names the
// full blob of the target version instead.
type DeltaLookup struct {
	Delta            *domain.Delta `json:"delta,omitempty"`
	FallbackChecksum string        `json:"fallback_checksum,omitempty"`
}

// RegisterDeltaInput describes a delta registration. Body is consumed
// exactly once.
type RegisterDeltaInput struct {
	Name        string
	FromVersion string
	ToVersion   string
	Body        io.Reader
}

// Lookup finds the delta spanning from→to for the named artifact. Both
// versions must exist; otherwise ErrNotFound is returned.
func (s *DeltaService) Lookup(ctx context.Context, name, from, to string) (*DeltaLookup, error) {
	artifact, err := s.artifacts.GetArtifactByName(ctx, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}

	toVersion, err := s.artifacts.GetVersion(ctx, artifact.ID, to)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load target version: %w", err)
	}

	delta, err := s.deltas.Get(ctx, artifact.ID, from, to)
	if err == nil {
		return &DeltaLookup{Delta: delta}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load delta: %w", err)
	}

	return &DeltaLookup{FallbackChecksum: toVersion.Checksum}, nil
}

// Register stores a precomputed delta payload and records its span.
// Registering an existing span returns ErrDeltaExists.
func (s *DeltaService) Register(ctx context.Context, in *RegisterDeltaInput) (*domain.Delta, error) {
	artifact, err := s.artifacts.GetArtifactByName(ctx, in.Name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}

	// Both endpoints of the span must be published versions.
	for _, version := range []string{in.FromVersion, in.ToVersion} {
		if _, err := s.artifacts.GetVersion(ctx, artifact.ID, version); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("failed to load version %s: %w", version, err)
		}
	}

	if _, err := s.deltas.Get(ctx, artifact.ID, in.FromVersion, in.ToVersion); err == nil {
		return nil, ErrDeltaExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check delta: %w", err)
	}

	checksum, size, spool, cleanup, err := spoolAndHash(in.Body)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	exists, err := s.store.Exists(ctx, checksum)
	if err != nil {
		return nil, fmt.Errorf("failed to check blob: %w", err)
	}
	if !exists {
		if err := s.store.Put(ctx, checksum, spool, size, "application/octet-stream"); err != nil {
			return nil, fmt.Errorf("failed to store delta payload: %w", err)
		}
	}

	delta := &domain.Delta{
		ID:          uuid.New().String(),
		ArtifactID:  artifact.ID,
		FromVersion: in.FromVersion,
		ToVersion:   in.ToVersion,
		Checksum:    checksum,
		Size:        size,
		CreatedAt:   time.Now(),
	}
	if err := s.deltas.Create(ctx, delta); err != nil {
		return nil, fmt.Errorf("failed to record delta: %w", err)
	}

	s.log.WithFields(logger.Fields{
		logger.FieldArtifact: in.Name,
		logger.FieldSize:     size,
	}).Infof("delta registered: %s -> %s", in.FromVersion, in.ToVersion)

	return delta, nil
}
