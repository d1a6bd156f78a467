// Package vectorstore persists embedded chunks across a durable cloud
// backend and a fast local backend, and routes reads to whichever tier can
// serve them.
package vectorstore

import (
	"context"
	"errors"

	"github.com/devkraft/ragline/internal/schema"
)

// ErrDimensionMismatch is returned when a vector's length does not match
// the collection it is written to or searched against.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Backend is one vector engine. Implementations must be safe for
// concurrent use.
type Backend interface {
	// EnsureCollection creates the named collection with the store schema
	// when it does not exist, and loads it for serving.
	EnsureCollection(ctx context.Context, name string, dim int) error

	// HasFingerprint reports whether any stored point carries the given
	// content fingerprint.
	HasFingerprint(ctx context.Context, collection, fingerprint string) (bool, error)

	// Insert writes points into the collection.
	Insert(ctx context.Context, collection string, points []schema.StoredPoint) error

	// Search returns up to topK nearest points by cosine similarity.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]schema.RetrievalHit, error)
}

// Unavailable returns a Backend whose every operation fails with err. It
// stands in for a fast-tier engine that could not be reached at startup, so
// the dual store can mark the tier down through its normal path.
func Unavailable(err error) Backend {
	return unavailableBackend{err: err}
}

type unavailableBackend struct{ err error }

func (b unavailableBackend) EnsureCollection(context.Context, string, int) error { return b.err }
func (b unavailableBackend) HasFingerprint(context.Context, string, string) (bool, error) {
	return false, b.err
}
func (b unavailableBackend) Insert(context.Context, string, []schema.StoredPoint) error {
	return b.err
}
func (b unavailableBackend) Search(context.Context, string, []float32, int) ([]schema.RetrievalHit, error) {
	return nil, b.err
}
