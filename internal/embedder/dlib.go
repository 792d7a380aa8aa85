//go:build dlib

package embedder

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"

	"face-attendance-backend/internal/recognition"
)

// Available reports whether the in-process extractor was compiled in.
const Available = true

// Local runs the dlib face model in-process. The recognizer is not safe for
// concurrent use, so calls are serialized.
type Local struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// NewLocal loads the dlib models from modelDir.
func NewLocal(modelDir string) (*Local, error) {
	rec, err := face.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load face models from %s: %w", modelDir, err)
	}
	return &Local{rec: rec}, nil
}

// Extract implements recognition.Extractor.
func (l *Local) Extract(ctx context.Context, img []byte) ([]recognition.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	found, err := l.rec.Recognize(img)
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	faces := make([]recognition.Face, 0, len(found))
	for _, f := range found {
		faces = append(faces, recognition.Face{
			Region:    f.Rectangle,
			Embedding: recognition.FromFloat32(f.Descriptor[:]),
		})
	}
	return faces, nil
}

// CountFaces reports how many faces the model finds in img.
func (l *Local) CountFaces(ctx context.Context, img []byte) (int, error) {
	faces, err := l.Extract(ctx, img)
	if err != nil {
		return 0, err
	}
	return len(faces), nil
}

// Close releases the model.
func (l *Local) Close() error {
	l.rec.Close()
	return nil
}
