package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetGallery reports the current gallery snapshot without embeddings.
func (h *Handler) GetGallery(c *gin.Context) {
	g, err := h.gallery.Gallery(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to load gallery"})
		return
	}

	identities := make([]string, len(g))
	for i, e := range g {
		identities[i] = e.Identity
	}
	c.JSON(http.StatusOK, gin.H{
		"version":    h.gallery.Version(),
		"cached":     h.gallery.Enabled(),
		"entries":    len(g),
		"identities": identities,
	})
}

// RefreshGallery drops the cached snapshot so the next request rebuilds it.
func (h *Handler) RefreshGallery(c *gin.Context) {
	v := h.gallery.Refresh()
	c.JSON(http.StatusAccepted, gin.H{"version": v})
}
