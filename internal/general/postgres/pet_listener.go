package postgres

import (
	"context"
	"sync"
	"time"

	"pet-tracker/internal/general/logger"
	"pet-tracker/internal/ports"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PetChangesChannel is the NOTIFY channel the pets trigger publishes owner ids on.
const PetChangesChannel = "pet_changes"

// PetChangeListener holds one pooled connection in LISTEN mode and wakes the subscribers of
// the owner named in each notification.
type PetChangeListener struct {
	pool   *pgxpool.Pool
	logger *logger.Logger

	mu     sync.Mutex
	subs   map[string]map[uint64]chan struct{}
	nextID uint64
}

// NewPetChangeListener constructs a listener; call Run to start receiving notifications.
func NewPetChangeListener(pool *pgxpool.Pool, log *logger.Logger) *PetChangeListener {
	return &PetChangeListener{
		pool:   pool,
		logger: log,
		subs:   make(map[string]map[uint64]chan struct{}),
	}
}

var _ ports.PetChangeFeed = (*PetChangeListener)(nil)

// Subscribe returns a channel that receives a signal whenever one of the owner's pets changes.
// Signals coalesce; a receiver should re-read the pet list on each one.
func (l *PetChangeListener) Subscribe(ownerID string) (<-chan struct{}, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan struct{}, 1)
	id := l.nextID
	l.nextID++
	if l.subs[ownerID] == nil {
		l.subs[ownerID] = make(map[uint64]chan struct{})
	}
	l.subs[ownerID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if owner := l.subs[ownerID]; owner != nil {
				delete(owner, id)
				if len(owner) == 0 {
					delete(l.subs, ownerID)
				}
			}
			close(ch)
		})
	}
}

// Notify wakes every subscriber of ownerID. It is also used directly when a change
// is known locally.
func (l *PetChangeListener) Notify(ownerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs[ownerID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Run listens until ctx is cancelled, reconnecting with backoff when the connection drops.
func (l *PetChangeListener) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.Error(ctx, "pet_listener_disconnected", "LISTEN connection lost; reconnecting", err, map[string]any{
			"backoff_ms": backoff.Milliseconds(),
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (l *PetChangeListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+PetChangesChannel); err != nil {
		return err
	}
	l.logger.Info(ctx, "pet_listener_started", "Listening for pet changes", map[string]any{
		"channel": PetChangesChannel,
	})

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			// a LISTEN connection must not go back to the pool in LISTEN mode
			_ = conn.Conn().Close(context.Background())
			return err
		}
		l.Notify(n.Payload)
	}
}
