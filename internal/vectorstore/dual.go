package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/devkraft/ragline/internal/schema"
	"github.com/devkraft/ragline/pkg/logger"
)

// DualStore spans two tiers. The durable backend holds the high-dimension
// collection plus a low-dimension replica of everything written to the fast
// tier, so every vector survives the fast backend disappearing. The fast
// backend exists purely to serve low-latency local reads.
//
// The durable tier is required: a failure to prepare it aborts
// construction. The fast tier degrades: when it cannot be prepared or a
// call to it fails, the store marks it down, logs once, and serves from the
// replica for the rest of the process lifetime.
type DualStore struct {
	durable Backend
	fast    Backend
	log     *logger.Logger

	durableCollection string
	fastCollection    string
	replicaCollection string
	durableDim        int
	fastDim           int

	mu       sync.Mutex
	fastDown bool
}

// DualStoreConfig names the collections and their dimensionalities.
type DualStoreConfig struct {
	DurableCollection string
	FastCollection    string
	ReplicaCollection string
	DurableDim        int
	FastDim           int
}

// NewDualStore prepares all collections. The durable backend's collections
// must come up; the fast backend's collection is best-effort.
func NewDualStore(ctx context.Context, durable, fast Backend, cfg DualStoreConfig, log *logger.Logger) (*DualStore, error) {
	s := &DualStore{
		durable:           durable,
		fast:              fast,
		log:               log,
		durableCollection: cfg.DurableCollection,
		fastCollection:    cfg.FastCollection,
		replicaCollection: cfg.ReplicaCollection,
		durableDim:        cfg.DurableDim,
		fastDim:           cfg.FastDim,
	}

	if err := durable.EnsureCollection(ctx, cfg.DurableCollection, cfg.DurableDim); err != nil {
		return nil, fmt.Errorf("durable collection unavailable: %w", err)
	}
	if err := durable.EnsureCollection(ctx, cfg.ReplicaCollection, cfg.FastDim); err != nil {
		return nil, fmt.Errorf("replica collection unavailable: %w", err)
	}
	if err := fast.EnsureCollection(ctx, cfg.FastCollection, cfg.FastDim); err != nil {
		s.markFastDown(err)
	}
	return s, nil
}

// markFastDown takes the fast tier out of rotation. Logged once; the tier
// is never retried within this process.
func (s *DualStore) markFastDown(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fastDown {
		s.log.WithError(err).Warn("fast vector tier is down, serving from durable replica")
		s.fastDown = true
	}
}

func (s *DualStore) fastIsDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fastDown
}

func (s *DualStore) checkDims(points []schema.StoredPoint, dim int) error {
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("%w: got %d, collection expects %d", ErrDimensionMismatch, len(p.Vector), dim)
		}
	}
	return nil
}

// assignIDs fills empty point IDs with time-sortable UUIDs.
func assignIDs(points []schema.StoredPoint) []schema.StoredPoint {
	for i := range points {
		if points[i].ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				id = uuid.New()
			}
			points[i].ID = id.String()
		}
	}
	return points
}

// WriteDurable inserts high-dimension points into the durable collection.
func (s *DualStore) WriteDurable(ctx context.Context, points []schema.StoredPoint) error {
	if err := s.checkDims(points, s.durableDim); err != nil {
		return err
	}
	points = assignIDs(points)
	if err := s.durable.Insert(ctx, s.durableCollection, points); err != nil {
		return fmt.Errorf("durable write failed: %w", err)
	}
	return nil
}

// WriteFast inserts low-dimension points into the fast tier and mirrors
// them into the durable replica. The write succeeds when either landing
// spot took the points; it fails only when both did.
func (s *DualStore) WriteFast(ctx context.Context, points []schema.StoredPoint) error {
	if err := s.checkDims(points, s.fastDim); err != nil {
		return err
	}
	points = assignIDs(points)

	fastErr := fmt.Errorf("fast tier marked down")
	if !s.fastIsDown() {
		fastErr = s.fast.Insert(ctx, s.fastCollection, points)
		if fastErr != nil {
			s.markFastDown(fastErr)
		}
	}

	replicaErr := s.durable.Insert(ctx, s.replicaCollection, points)
	if replicaErr != nil && fastErr != nil {
		return fmt.Errorf("fast write failed on both tiers: fast: %v; replica: %w", fastErr, replicaErr)
	}
	if replicaErr != nil {
		s.log.WithError(replicaErr).Warn("replica write failed, points live only on the fast tier")
	}
	return nil
}

// Exists reports per tier whether the fingerprint is already stored, so
// callers can tell a fully-stored duplicate from one only a single tier
// holds. The fast collection answers for its tier when it is reachable;
// otherwise the replica does.
func (s *DualStore) Exists(ctx context.Context, fingerprint string) (inDurable, inFast bool, err error) {
	inDurable, err = s.durable.HasFingerprint(ctx, s.durableCollection, fingerprint)
	if err != nil {
		return false, false, err
	}

	if !s.fastIsDown() {
		inFast, err = s.fast.HasFingerprint(ctx, s.fastCollection, fingerprint)
		if err == nil {
			return inDurable, inFast, nil
		}
		s.markFastDown(err)
	}
	inFast, err = s.durable.HasFingerprint(ctx, s.replicaCollection, fingerprint)
	if err != nil {
		return inDurable, false, err
	}
	return inDurable, inFast, nil
}

// SearchDurable queries the high-dimension collection.
func (s *DualStore) SearchDurable(ctx context.Context, vector []float32, topK int) ([]schema.RetrievalHit, error) {
	if len(vector) != s.durableDim {
		return nil, fmt.Errorf("%w: got %d, collection expects %d", ErrDimensionMismatch, len(vector), s.durableDim)
	}
	return s.durable.Search(ctx, s.durableCollection, vector, topK)
}

// SearchFast queries the fast tier, falling back to the durable replica
// when the tier is down or the query fails.
func (s *DualStore) SearchFast(ctx context.Context, vector []float32, topK int) ([]schema.RetrievalHit, error) {
	if len(vector) != s.fastDim {
		return nil, fmt.Errorf("%w: got %d, collection expects %d", ErrDimensionMismatch, len(vector), s.fastDim)
	}

	if !s.fastIsDown() {
		hits, err := s.fast.Search(ctx, s.fastCollection, vector, topK)
		if err == nil {
			return hits, nil
		}
		s.markFastDown(err)
	}
	return s.durable.Search(ctx, s.replicaCollection, vector, topK)
}
