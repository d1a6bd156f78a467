package chathistory

import (
	"context"

	"github.com/devkraft/ragline/pkg/logger"
)

// FallbackStore tries the primary store on every call and drops to the
// secondary when it fails. Unlike the vector tiers the primary is retried
// on the next call: MongoDB outages are usually transient and chats written
// to the file store in the meantime are still readable there.
type FallbackStore struct {
	primary   Store
	secondary Store
	log       *logger.Logger
}

// NewFallbackStore wraps primary with secondary as the fallback.
func NewFallbackStore(primary, secondary Store, log *logger.Logger) *FallbackStore {
	return &FallbackStore{primary: primary, secondary: secondary, log: log}
}

func (s *FallbackStore) Append(ctx context.Context, chatID string, turns ...Turn) error {
	if err := s.primary.Append(ctx, chatID, turns...); err != nil {
		s.log.WithError(err).Warn("primary chat store append failed, using fallback")
		return s.secondary.Append(ctx, chatID, turns...)
	}
	return nil
}

func (s *FallbackStore) Load(ctx context.Context, chatID string) ([]Turn, error) {
	turns, err := s.primary.Load(ctx, chatID)
	if err != nil {
		s.log.WithError(err).Warn("primary chat store load failed, using fallback")
		return s.secondary.Load(ctx, chatID)
	}
	if len(turns) == 0 {
		// The chat may have been written during an earlier outage.
		if fallbackTurns, ferr := s.secondary.Load(ctx, chatID); ferr == nil && len(fallbackTurns) > 0 {
			return fallbackTurns, nil
		}
	}
	return turns, nil
}

func (s *FallbackStore) Recent(ctx context.Context, limit int) ([]Summary, error) {
	summaries, err := s.primary.Recent(ctx, limit)
	if err != nil {
		s.log.WithError(err).Warn("primary chat store list failed, using fallback")
		return s.secondary.Recent(ctx, limit)
	}
	return summaries, nil
}

var _ Store = (*FallbackStore)(nil)
