// Package gallery builds the known-identity gallery from the identity
// directory and the stored reference images.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"face-attendance-backend/internal/parse"
	"face-attendance-backend/internal/recognition"
)

var (
	// ErrNoImage means the identity has no usable reference image.
	ErrNoImage = errors.New("no reference image")
	// ErrUnreadableImage means the reference image exists but cannot be read.
	ErrUnreadableImage = errors.New("reference image unreadable")
)

// Reference is one identity directory entry.
type Reference struct {
	Identity string
	Picture  string
}

// Directory lists identities and their stored picture references.
type Directory interface {
	References(ctx context.Context) ([]Reference, error)
}

// ImageStore resolves a picture reference to image bytes. It returns ErrNoImage
// or ErrUnreadableImage (possibly wrapped) for the two failure modes.
type ImageStore interface {
	Read(picture string) ([]byte, error)
}

// Provider hands out gallery snapshots.
type Provider interface {
	Gallery(ctx context.Context) (recognition.Gallery, error)
}

// FSImageStore reads reference images below Root.
type FSImageStore struct {
	Root   string
	Prefix string
}

// Read implements ImageStore.
func (s FSImageStore) Read(picture string) ([]byte, error) {
	rel, err := parse.PicturePath(picture, s.Prefix)
	switch {
	case errors.Is(err, parse.ErrInvalidPicture):
		// A reference exists but cannot be resolved safely.
		return nil, fmt.Errorf("%w: %w", ErrUnreadableImage, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrNoImage, err)
	}

	full := filepath.Join(s.Root, filepath.FromSlash(rel))
	data, err := os.ReadFile(full)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %s not found", ErrNoImage, full)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	case len(data) == 0:
		return nil, fmt.Errorf("%w: %s is empty", ErrUnreadableImage, full)
	}
	return data, nil
}

// Loader rebuilds the gallery from scratch on every call.
type Loader struct {
	dir       Directory
	images    ImageStore
	extractor recognition.Extractor
	workers   int
}

// NewLoader creates a loader. workers bounds concurrent extractions.
func NewLoader(dir Directory, images ImageStore, extractor recognition.Extractor, workers int) *Loader {
	if workers <= 0 {
		workers = 1
	}
	return &Loader{dir: dir, images: images, extractor: extractor, workers: workers}
}

// Gallery implements Provider.
func (l *Loader) Gallery(ctx context.Context) (recognition.Gallery, error) {
	return l.Load(ctx)
}

// Load extracts one embedding per identity, from the first face found in its
// reference image. Identities without a usable image or face are logged and
// skipped. Entries keep directory order.
func (l *Loader) Load(ctx context.Context) (recognition.Gallery, error) {
	refs, err := l.dir.References(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list identity directory: %w", err)
	}
	log.Printf("Found %d profiles in the identity directory", len(refs))

	entries := make([]*recognition.Entry, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries[i] = l.loadOne(gctx, ref)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Extractions cut short by cancellation were skipped, not loaded.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("gallery load interrupted: %w", err)
	}

	gallery := make(recognition.Gallery, 0, len(refs))
	for _, e := range entries {
		if e != nil {
			gallery = append(gallery, *e)
		}
	}
	log.Printf("Loaded %d known faces", len(gallery))
	return gallery, nil
}

func (l *Loader) loadOne(ctx context.Context, ref Reference) *recognition.Entry {
	if ref.Picture == "" {
		log.Printf("Skipping user %s: no profile picture", ref.Identity)
		return nil
	}

	data, err := l.images.Read(ref.Picture)
	if err != nil {
		log.Printf("Skipping user %s: %v", ref.Identity, err)
		return nil
	}

	faces, err := l.extractor.Extract(ctx, data)
	if err != nil {
		log.Printf("Skipping user %s: could not process %s: %v", ref.Identity, ref.Picture, err)
		return nil
	}
	if len(faces) == 0 {
		log.Printf("Skipping user %s: no face detected in %s", ref.Identity, ref.Picture)
		return nil
	}

	return &recognition.Entry{Identity: ref.Identity, Embedding: faces[0].Embedding}
}
