package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mkarlsen/depot/internal/service"
)

// DeltaHandler handles delta lookup and registration endpoints.
type DeltaHandler struct {
	deltas *service.DeltaService
}

// NewDeltaHandler creates a new delta handler.
func NewDeltaHandler(deltas *service.DeltaService) *DeltaHandler {
	return &DeltaHandler{deltas: deltas}
}

// Get handles GET /api/v1/deltas/:name/:from/:to. When no delta spans
// the requested versions the response is a 404 carrying the checksum of
// the full target blob so clients can fall back without a second
// metadata round trip.
func (h *DeltaHandler) Get(c *gin.Context) {
	name := c.Param("name")
	from := c.Param("from")
	to := c.Param("to")

	lookup, err := h.deltas.Lookup(c.Request.Context(), name, from, to)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "artifact or version not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up delta"})
		_ = c.Error(err)
		return
	}

	if lookup.Delta == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":    "no delta for requested versions",
			"fallback": "/api/v1/blobs/" + lookup.FallbackChecksum,
		})
		return
	}
	c.JSON(http.StatusOK, lookup.Delta)
}

// Register handles POST /api/v1/admin/deltas/:name/:from/:to.
// Multipart form: file=<delta payload>.
func (h *DeltaHandler) Register(c *gin.Context) {
	name := c.Param("name")
	from := c.Param("from")
	to := c.Param("to")

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

	delta, err := h.deltas.Register(c.Request.Context(), &service.RegisterDeltaInput{
		Name:        name,
		FromVersion: from,
		ToVersion:   to,
		Body:        file,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "artifact or version not found"})
		case errors.Is(err, service.ErrDeltaExists):
			c.JSON(http.StatusConflict, gin.H{"error": "delta already exists"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register delta"})
			_ = c.Error(err)
		}
		return
	}
	c.JSON(http.StatusCreated, delta)
}
