package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mkarlsen/depot/internal/service"
)

// BlobHandler streams blob content by checksum.
type BlobHandler struct {
	artifacts *service.ArtifactService
}

// NewBlobHandler creates a new blob handler.
func NewBlobHandler(artifacts *service.ArtifactService) *BlobHandler {
	return &BlobHandler{artifacts: artifacts}
}

// Get handles GET /api/v1/blobs/:checksum and streams the payload.
func (h *BlobHandler) Get(c *gin.Context) {
	checksum := c.Param("checksum")

	meta, err := h.artifacts.StatBlob(c.Request.Context(), checksum)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve blob"})
		_ = c.Error(err)
		return
	}

	body, err := h.artifacts.OpenBlob(c.Request.Context(), checksum)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open blob"})
		_ = c.Error(err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, meta.Size, meta.ContentType, body, map[string]string{
		"ETag": `"` + checksum + `"`,
	})
}

// Head handles HEAD /api/v1/blobs/:checksum.
func (h *BlobHandler) Head(c *gin.Context) {
	checksum := c.Param("checksum")

	meta, err := h.artifacts.StatBlob(c.Request.Context(), checksum)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusInternalServerError)
		_ = c.Error(err)
		return
	}

	c.Header("Content-Type", meta.ContentType)
	c.Header("Content-Length", strconv.FormatInt(meta.Size, 10))
	c.Header("ETag", `"`+checksum+`"`)
	c.Status(http.StatusOK)
}
