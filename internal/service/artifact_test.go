package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/mkarlsen/depot/internal/config"
	"github.com/mkarlsen/depot/internal/repository"
	"github.com/mkarlsen/depot/internal/storage"
)

func newTestServices(t *testing.T) (*ArtifactService, *DeltaService, storage.BlobStore) {
	t.Helper()

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         ":memory:",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}

	artifactRepo := repository.NewArtifactRepository(db)
	deltaRepo := repository.NewDeltaRepository(db)
	store := storage.NewMemoryStore()

	return NewArtifactService(artifactRepo, deltaRepo, store, nil),
		NewDeltaService(deltaRepo, artifactRepo, store, nil),
		store
}

func publish(t *testing.T, svc *ArtifactService, name, version string, content []byte) {
	t.Helper()
	_, err := svc.Publish(context.Background(), &PublishInput{
		Name:        name,
		Version:     version,
		ContentType: "application/gzip",
		Body:        bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("publish %s@%s: %v", name, version, err)
	}
}

func sha256hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestPublishAndGetVersion(t *testing.T) {
	svc, _, store := newTestServices(t)
	ctx := context.Background()
	content := []byte("artifact v1 payload")

	publish(t, svc, "toolchain", "1.0.0", content)

	v, err := svc.GetVersion(ctx, "toolchain", "1.0.0")
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if v.Checksum != sha256hex(content) {
		t.Errorf("checksum = %q, want %q", v.Checksum, sha256hex(content))
	}
	if v.Size != int64(len(content)) {
		t.Errorf("size = %d, want %d", v.Size, len(content))
	}
	if v.ContentType != "application/gzip" {
		t.Errorf("content type = %q", v.ContentType)
	}

	exists, err := store.Exists(ctx, v.Checksum)
	if err != nil || !exists {
		t.Errorf("blob not stored: exists=%v err=%v", exists, err)
	}
}

func TestPublishDuplicateVersion(t *testing.T) {
	svc, _, _ := newTestServices(t)
	publish(t, svc, "toolchain", "1.0.0", []byte("a"))

	_, err := svc.Publish(context.Background(), &PublishInput{
		Name:    "toolchain",
		Version: "1.0.0",
		Body:    bytes.NewReader([]byte("b")),
	})
	if !errors.Is(err, ErrVersionExists) {
		t.Errorf("expected ErrVersionExists, got %v", err)
	}
}

func TestPublishIdenticalContentSharesBlob(t *testing.T) {
	svc, _, _ := newTestServices(t)
	ctx := context.Background()
	content := []byte("shared payload")

	publish(t, svc, "toolchain", "1.0.0", content)
	publish(t, svc, "toolchain", "1.0.1", content)

	v1, _ := svc.GetVersion(ctx, "toolchain", "1.0.0")
	v2, _ := svc.GetVersion(ctx, "toolchain", "1.0.1")
	if v1.Checksum != v2.Checksum {
		t.Errorf("identical content produced different blob keys: %q vs %q", v1.Checksum, v2.Checksum)
	}
}

func TestGetReturnsLatestVersion(t *testing.T) {
	svc, _, _ := newTestServices(t)
	ctx := context.Background()

	publish(t, svc, "toolchain", "1.0.0", []byte("old"))
	publish(t, svc, "toolchain", "1.1.0", []byte("new"))

	detail, err := svc.Get(ctx, "toolchain")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if detail.Latest == nil {
		t.Fatal("expected latest version")
	}
	if detail.Latest.Version != "1.1.0" {
		t.Errorf("latest = %q, want 1.1.0", detail.Latest.Version)
	}

	versions, err := svc.ListVersions(ctx, "toolchain")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Errorf("expected 2 versions, got %d", len(versions))
	}
}

func TestGetUnknownArtifact(t *testing.T) {
	svc, _, _ := newTestServices(t)

	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetVersion(context.Background(), "nope", "1.0.0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListFiltersByChannel(t *testing.T) {
	svc, _, _ := newTestServices(t)
	ctx := context.Background()

	_, err := svc.Publish(ctx, &PublishInput{
		Name: "stable-tool", Version: "1.0.0", Channel: "stable",
		Body: bytes.NewReader([]byte("s")),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.Publish(ctx, &PublishInput{
		Name: "nightly-tool", Version: "0.1.0", Channel: "nightly",
		Body: bytes.NewReader([]byte("n")),
	})
	if err != nil {
		t.Fatal(err)
	}

	list, err := svc.List(ctx, "nightly", 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list.Total != 1 || len(list.Results) != 1 {
		t.Fatalf("expected 1 nightly artifact, got total=%d len=%d", list.Total, len(list.Results))
	}
	if list.Results[0].Name != "nightly-tool" {
		t.Errorf("unexpected artifact %q", list.Results[0].Name)
	}

	all, err := svc.List(ctx, "", 20, 0)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if all.Total != 2 {
		t.Errorf("expected 2 artifacts, got %d", all.Total)
	}
}

func TestDeleteVersionCollectsUnreferencedBlob(t *testing.T) {
	svc, _, store := newTestServices(t)
	ctx := context.Background()
	content := []byte("doomed payload")

	publish(t, svc, "toolchain", "1.0.0", content)
	checksum := sha256hex(content)

	if err := svc.DeleteVersion(ctx, "toolchain", "1.0.0"); err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}

	if _, err := svc.GetVersion(ctx, "toolchain", "1.0.0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected version gone, got %v", err)
	}
	if exists, _ := store.Exists(ctx, checksum); exists {
		t.Error("expected unreferenced blob to be deleted")
	}
}

func TestDeleteVersionKeepsSharedBlob(t *testing.T) {
	svc, _, store := newTestServices(t)
	ctx := context.Background()
	content := []byte("shared payload")

	publish(t, svc, "toolchain", "1.0.0", content)
	publish(t, svc, "toolchain", "1.0.1", content)

	if err := svc.DeleteVersion(ctx, "toolchain", "1.0.0"); err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}

	if exists, _ := store.Exists(ctx, sha256hex(content)); !exists {
		t.Error("blob still referenced by 1.0.1 must survive")
	}
}

func TestStatBlob(t *testing.T) {
	svc, _, _ := newTestServices(t)
	ctx := context.Background()
	content := []byte("blob content")

	publish(t, svc, "toolchain", "1.0.0", content)

	meta, err := svc.StatBlob(ctx, sha256hex(content))
	if err != nil {
		t.Fatalf("StatBlob: %v", err)
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("size = %d, want %d", meta.Size, len(content))
	}

	if _, err := svc.StatBlob(ctx, "deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown checksum, got %v", err)
	}
}
