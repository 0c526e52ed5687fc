package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mkarlsen/depot/internal/service"
)

// ArtifactHandler handles artifact metadata endpoints.
type ArtifactHandler struct {
	artifacts *service.ArtifactService
}

// NewArtifactHandler creates a new artifact handler.
func NewArtifactHandler(artifacts *service.ArtifactService) *ArtifactHandler {
	return &ArtifactHandler{artifacts: artifacts}
}

// List handles GET /api/v1/artifacts.
func (h *ArtifactHandler) List(c *gin.Context) {
	channel := c.Query("channel")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	result, err := h.artifacts.List(c.Request.Context(), channel, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list artifacts",
		})
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get handles GET /api/v1/artifacts/:name.
func (h *ArtifactHandler) Get(c *gin.Context) {
	name := c.Param("name")

	detail, err := h.artifacts.Get(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load artifact"})
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListVersions handles GET /api/v1/artifacts/:name/versions.
func (h *ArtifactHandler) ListVersions(c *gin.Context) {
	name := c.Param("name")

	versions, err := h.artifacts.ListVersions(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list versions"})
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": versions, "total": len(versions)})
}

// GetVersion handles GET /api/v1/artifacts/:name/versions/:version.
func (h *ArtifactHandler) GetVersion(c *gin.Context) {
	name := c.Param("name")
	version := c.Param("version")

	v, err := h.artifacts.GetVersion(c.Request.Context(), name, version)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "version not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load version"})
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Publish handles POST /api/v1/admin/artifacts/:name/versions.
// Multipart form: file=<blob>, version=<string>, channel=<optional>.
func (h *ArtifactHandler) Publish(c *gin.Context) {
	name := c.Param("name")
	version := c.PostForm("version")
	if version == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version is required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open upload"})
		return
	}
	defer file.Close()

	v, err := h.artifacts.Publish(c.Request.Context(), &service.PublishInput{
		Name:        name,
		Version:     version,
		Channel:     c.PostForm("channel"),
		ContentType: fileHeader.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		if errors.Is(err, service.ErrVersionExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "version already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish version"})
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// DeleteVersion handles DELETE /api/v1/admin/artifacts/:name/versions/:version.
func (h *ArtifactHandler) DeleteVersion(c *gin.Context) {
	name := c.Param("name")
	version := c.Param("version")

	if err := h.artifacts.DeleteVersion(c.Request.Context(), name, version); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "version not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete version"})
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
