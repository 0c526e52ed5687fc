package domain

import "time"

// Artifact is a named, versioned unit of distributable content.
type Artifact struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	Channel   string    `gorm:"index;default:stable" json:"channel"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArtifactVersion is one published version of an artifact. The blob
// content is addressed by Checksum in the object store; metadata lives
// here.
type ArtifactVersion struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ArtifactID  string    `gorm:"index:idx_artifact_version,unique;not null" json:"artifact_id"`
	Version     string    `gorm:"index:idx_artifact_version,unique;not null" json:"version"`
	Checksum    string    `gorm:"index;not null" json:"checksum"` // sha256 hex, doubles as the blob key
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	PublishedAt time.Time `json:"published_at"`
}

// TableName overrides the default pluralization for clarity in SQL.
func (ArtifactVersion) TableName() string {
	return "artifact_versions"
}
