package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/store"
	"github.com/yllada/vpn-registry/vpn"
)

// backupQueue writes saved profiles to the backup store off the save path.
// Pending writes are keyed by id so only the newest value of a profile is
// written, and a slow backup never holds callers up.
type backupQueue struct {
	store  store.ProfileStore
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]vpn.Profile
	order   []string
	signal  chan struct{}
}

func newBackupQueue(s store.ProfileStore, logger *slog.Logger) *backupQueue {
	return &backupQueue{
		store:   s,
		logger:  logger,
		pending: make(map[string]vpn.Profile),
		signal:  make(chan struct{}, 1),
	}
}

func (q *backupQueue) enqueue(p vpn.Profile) {
	q.mu.Lock()
	if _, ok := q.pending[p.ID]; !ok {
		q.order = append(q.order, p.ID)
	}
	q.pending[p.ID] = p
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *backupQueue) take() []vpn.Profile {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]vpn.Profile, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.pending[id])
	}
	q.order = nil
	clear(q.pending)
	return out
}

// run drains the queue until ctx is done, then flushes what is left.
func (q *backupQueue) run(ctx context.Context) {
	for {
		select {
		case <-q.signal:
			q.flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), common.StoreTimeout)
			q.flush(flushCtx)
			cancel()
			return
		}
	}
}

func (q *backupQueue) flush(ctx context.Context) {
	for _, p := range q.take() {
		err := q.store.SaveProfile(ctx, p)
		storeWrites.WithLabelValues("backup", "save", writeStatus(err)).Inc()
		if err != nil {
			q.logger.Warn("failed to back up profile", "id", p.ID, "error", err)
		}
	}
}
