// Package recognition holds the face embedding types shared by the extractors,
// the gallery and the identity matcher.
package recognition

import (
	"context"
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Embedding is a fixed-length face descriptor. Embeddings are only comparable
// when produced by the same extractor configuration.
type Embedding []float64

// Distance returns the Euclidean distance to o, or +Inf when the dimensions differ.
func (e Embedding) Distance(o Embedding) float64 {
	if len(e) == 0 || len(e) != len(o) {
		return math.Inf(1)
	}
	return floats.Distance(e, o, 2)
}

// FromFloat32 widens a float32 descriptor.
func FromFloat32(v []float32) Embedding {
	e := make(Embedding, len(v))
	for i, x := range v {
		e[i] = float64(x)
	}
	return e
}

// Face is one detected region and its embedding.
type Face struct {
	Region    image.Rectangle
	Embedding Embedding
}

// Extractor detects faces in an encoded image and embeds each one. An image
// with no faces yields an empty slice, not an error. Order is stable within a call.
type Extractor interface {
	Extract(ctx context.Context, img []byte) ([]Face, error)
}

// Entry pairs an identity with its reference embedding.
type Entry struct {
	Identity  string
	Embedding Embedding
}

// Gallery is a read-only snapshot of known identities for one matching pass.
type Gallery []Entry
