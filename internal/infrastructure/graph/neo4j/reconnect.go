package neo4j

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/resilience"
)

const defaultRedialBackoff = 30 * time.Second

var errRedialBackoff = errors.New("neo4j unreachable, waiting before redial")

// ReconnectingStore is the process-wide graph handle. When the server cannot
// be reached it answers ErrBackendUnavailable and redials on the first call
// after the backoff has passed.
type ReconnectingStore struct {
	open    func(ctx context.Context) (*Store, error)
	backoff time.Duration
	now     func() time.Time

	mu       sync.Mutex
	store    *Store
	nextDial time.Time
}

// Dial tries to connect right away. A failed first attempt is logged and the
// handle is still returned.
func Dial(ctx context.Context, cfg Config, exec *resilience.Executor, backoff time.Duration) *ReconnectingStore {
	r := newReconnectingStore(func(ctx context.Context) (*Store, error) {
		return Open(ctx, cfg, exec)
	}, backoff)
	if _, err := r.current(ctx); err != nil {
		slog.Warn("knowledge_graph_unavailable", "uri", cfg.URI, "redial_after", r.backoff.String(), "error", err)
	}
	return r
}

func newReconnectingStore(open func(ctx context.Context) (*Store, error), backoff time.Duration) *ReconnectingStore {
	if backoff <= 0 {
		backoff = defaultRedialBackoff
	}
	return &ReconnectingStore{open: open, backoff: backoff, now: time.Now}
}

func (r *ReconnectingStore) current(ctx context.Context) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store != nil {
		return r.store, nil
	}
	now := r.now()
	if now.Before(r.nextDial) {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "neo4j dial", errRedialBackoff)
	}

	store, err := r.open(ctx)
	if err != nil {
		r.nextDial = now.Add(r.backoff)
		if !domain.IsKind(err, domain.ErrBackendUnavailable) {
			err = domain.WrapError(domain.ErrBackendUnavailable, "neo4j dial", err)
		}
		return nil, err
	}
	if !r.nextDial.IsZero() {
		slog.Info("knowledge_graph_reconnected")
	}
	r.store = store
	return store, nil
}

func (r *ReconnectingStore) FindRelations(ctx context.Context, keyword string, limit int) ([]domain.GraphFact, error) {
	store, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	return store.FindRelations(ctx, keyword, limit)
}

func (r *ReconnectingStore) FindEntities(ctx context.Context, label, keyword string, limit int) ([]domain.EntityDescription, error) {
	store, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	return store.FindEntities(ctx, label, keyword, limit)
}

func (r *ReconnectingStore) Stats(ctx context.Context) (domain.GraphStats, error) {
	store, err := r.current(ctx)
	if err != nil {
		return domain.GraphStats{}, err
	}
	return store.Stats(ctx)
}

func (r *ReconnectingStore) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	store := r.store
	r.store = nil
	return store.Close(ctx)
}
