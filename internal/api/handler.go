package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"

	"face-attendance-backend/internal/checkin"
	"face-attendance-backend/internal/mw"
	"face-attendance-backend/internal/recognition"
	"face-attendance-backend/internal/store"
)

// Marker runs the recognition-to-record pipeline for one image.
type Marker interface {
	Mark(ctx context.Context, img []byte) (*checkin.Result, error)
}

// GalleryAdmin exposes the gallery snapshot and its refresh.
type GalleryAdmin interface {
	Gallery(ctx context.Context) (recognition.Gallery, error)
	Refresh() int64
	Version() int64
	Enabled() bool
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store          store.Store
	marker         Marker
	gallery        GalleryAdmin
	cache          *mw.ResponseCache
	webpush        *webpush.Options
	maxUploadBytes int64
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, marker Marker, gallery GalleryAdmin, cache *mw.ResponseCache, webpushOptions *webpush.Options, maxUploadBytes int64) *Handler {
	return &Handler{
		store:          s,
		marker:         marker,
		gallery:        gallery,
		cache:          cache,
		webpush:        webpushOptions,
		maxUploadBytes: maxUploadBytes,
	}
}
