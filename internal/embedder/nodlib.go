//go:build !dlib

package embedder

import (
	"context"
	"errors"

	"face-attendance-backend/internal/recognition"
)

// Available reports whether the in-process extractor was compiled in.
const Available = false

// ErrNoLocalModel is returned when the binary was built without dlib.
var ErrNoLocalModel = errors.New("binary built without the dlib tag")

// Local is a placeholder for builds without dlib.
type Local struct{}

// NewLocal always fails in builds without dlib.
func NewLocal(string) (*Local, error) {
	return nil, ErrNoLocalModel
}

// Extract implements recognition.Extractor.
func (*Local) Extract(context.Context, []byte) ([]recognition.Face, error) {
	return nil, ErrNoLocalModel
}

// CountFaces always fails in builds without dlib.
func (*Local) CountFaces(context.Context, []byte) (int, error) {
	return 0, ErrNoLocalModel
}

// Close is a no-op.
func (*Local) Close() error { return nil }
