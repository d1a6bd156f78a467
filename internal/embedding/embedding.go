// Package embedding provides the two embedding capability variants: a
// high-capacity remote provider with batching, rate limiting, and credential
// rotation, and a low-capacity local provider with a permanent remote
// fallback. The interfaces are trivial; the policy around them is the point.
package embedding

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrEmptyInput is returned when a caller submits an empty batch or a blank
// query. It is a precondition violation: no network call is made and the
// call is never retried.
var ErrEmptyInput = errors.New("embedding input is empty")

// Provider converts text into fixed-dimension vectors within one embedding
// space. Vectors from different providers are never comparable.
type Provider interface {
	// EmbedDocuments embeds a batch of document chunks for storage.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single query text for retrieval.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dim reports the dimensionality of the provider's embedding space.
	Dim() int
}

// sleepFunc waits for d or until ctx is cancelled. Injectable so tests can
// observe cooldowns without wall-clock waits.
type sleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// normalize scales v to unit Euclidean length. A zero vector is returned
// unchanged rather than divided by zero.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
