package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DocsHandler serves the API description document.
type DocsHandler struct{}

// NewDocsHandler creates a new docs handler.
func NewDocsHandler() *DocsHandler {
	return &DocsHandler{}
}

// OpenAPI handles GET /docs/openapi.json.
func (h *DocsHandler) OpenAPI(c *gin.Context) {
	c.JSON(http.StatusOK, openAPIDocument())
}

// openAPIDocument describes the mounted routes. Kept by hand; update it
// together with router.go.
func openAPIDocument() gin.H {
	return gin.H{
		"openapi": "3.0.3",
		"info": gin.H{
			"title":       "depot",
			"description": "Artifact metadata, blob, and delta API",
			"version":     "1.0.0",
		},
		"paths": gin.H{
			"/health": gin.H{
				"get": gin.H{"summary": "Liveness check", "responses": okResponse()},
			},
			"/api/v1/artifacts": gin.H{
				"get": gin.H{
					"summary": "List artifacts",
					"parameters": []gin.H{
						queryParam("channel", "Filter by release channel"),
						queryParam("limit", "Page size (max 100)"),
						queryParam("offset", "Page offset"),
					},
					"responses": okResponse(),
				},
			},
			"/api/v1/artifacts/{name}": gin.H{
				"get": gin.H{"summary": "Artifact with latest version", "responses": okResponse()},
			},
			"/api/v1/artifacts/{name}/versions": gin.H{
				"get": gin.H{"summary": "List versions, newest first", "responses": okResponse()},
			},
			"/api/v1/artifacts/{name}/versions/{version}": gin.H{
				"get": gin.H{"summary": "Version metadata", "responses": okResponse()},
			},
			"/api/v1/blobs/{checksum}": gin.H{
				"get":  gin.H{"summary": "Download blob by sha256", "responses": okResponse()},
				"head": gin.H{"summary": "Blob existence and size", "responses": okResponse()},
			},
			"/api/v1/deltas/{name}/{from}/{to}": gin.H{
				"get": gin.H{
					"summary":   "Precomputed delta between two versions",
					"responses": okResponse(),
				},
			},
			"/api/v1/admin/artifacts/{name}/versions": gin.H{
				"post": gin.H{
					"summary":  "Publish a version (multipart: file, version, channel)",
					"security": []gin.H{{"basicAuth": []string{}}},
				},
			},
			"/api/v1/admin/artifacts/{name}/versions/{version}": gin.H{
				"delete": gin.H{
					"summary":  "Delete a version",
					"security": []gin.H{{"basicAuth": []string{}}},
				},
			},
			"/api/v1/admin/deltas/{name}/{from}/{to}": gin.H{
				"post": gin.H{
					"summary":  "Register a precomputed delta (multipart: file)",
					"security": []gin.H{{"basicAuth": []string{}}},
				},
			},
		},
		"components": gin.H{
			"securitySchemes": gin.H{
				"basicAuth": gin.H{"type": "http", "scheme": "basic"},
			},
		},
	}
}

func okResponse() gin.H {
	return gin.H{"200": gin.H{"description": "OK"}}
}

func queryParam(name, description string) gin.H {
	return gin.H{
		"name":        name,
		"in":          "query",
		"description": description,
		"schema":      gin.H{"type": "string"},
	}
}
