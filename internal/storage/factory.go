package storage

import "strings"

// NewBlobStore creates a BlobStore instance based on the configuration.
// Parameters:
//   - cfg: storage configuration including endpoint, credentials, and bucket.
// Returns:
//   - BlobStore: initialized blob store implementation.
//   - error: non-nil if the store cannot be created.
func NewBlobStore(cfg *S3Config) (BlobStore, error) {
	if cfg.Type == "" {
		cfg.Type = detectStoreType(cfg.Endpoint)
	}

	if cfg.Type == StoreTypeMemory {
		return NewMemoryStore(), nil
	}

	return NewS3Store(cfg)
}

// detectStoreType attempts to detect the storage type from the endpoint
func detectStoreType(endpoint string) StoreType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case endpoint == "memory":
		return StoreTypeMemory
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StoreTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StoreTypeS3
	default:
		return StoreTypeS3Compatible
	}
}
