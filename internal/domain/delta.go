package domain

import "time"

// Delta is a precomputed binary diff between two versions of an
// artifact. Deltas are registered by publishers; the server only
// stores and serves them.
type Delta struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ArtifactID  string    `gorm:"index:idx_delta_span,unique;not null" json:"artifact_id"`
	FromVersion string    `gorm:"index:idx_delta_span,unique;not null" json:"from_version"`
	ToVersion   string    `gorm:"index:idx_delta_span,unique;not null" json:"to_version"`
	Checksum    string    `gorm:"index;not null" json:"checksum"` // sha256 hex, blob key of the delta payload
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}
