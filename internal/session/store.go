// Package session owns the lifecycle of conversation sessions.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tekkistudio/sales-orchestrator/internal/core"
	"github.com/tekkistudio/sales-orchestrator/internal/model"
	"github.com/tekkistudio/sales-orchestrator/internal/retry"
	"github.com/tekkistudio/sales-orchestrator/internal/store"
	"github.com/tekkistudio/sales-orchestrator/pkg/logger"
	"github.com/tekkistudio/sales-orchestrator/pkg/metrics"
)

// Options configures the session store cache.
type Options struct {
	// CacheCapacity bounds the number of in-memory sessions.
	CacheCapacity int
	// InactivityTTL evicts idle sessions from the cache. The persisted
	// copy is untouched.
	InactivityTTL time.Duration
	// SweepInterval is how often the janitor scans for idle sessions.
	SweepInterval time.Duration
	// OnEvict, when set, is called with the session ID after a session
	// leaves the cache, so sibling per-session state can be released.
	OnEvict func(sessionID string)
}

// Store manages sessions: in-memory cache first, persistent store on
// miss, fresh session when neither has one.
type Store struct {
	persistent store.Store
	logger     *logger.Logger
	cache      *cache
	onEvict    func(sessionID string)
	stop       chan struct{}
}

// NewStore creates a session store and starts its eviction janitor.
func NewStore(persistent store.Store, opts Options, log *logger.Logger) *Store {
	s := &Store{
		persistent: persistent,
		logger:     log,
		onEvict:    opts.OnEvict,
		stop:       make(chan struct{}),
	}
	s.cache = newCache(opts.CacheCapacity, opts.InactivityTTL, s.flushEvicted)

	interval := opts.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go s.janitor(interval)

	return s
}

// GetOrCreate returns the session for sessionID, hydrating from the
// persistent store on a cache miss and constructing a fresh session
// when the store has never seen it either.
func (s *Store) GetOrCreate(ctx context.Context, sessionID, productID string) (*model.Session, error) {
	if sessionID == "" {
		sessionID = uuid.Must(uuid.NewV7()).String()
	}

	if sess, ok := s.cache.get(sessionID); ok {
		return sess, nil
	}

	sess, err := s.persistent.GetSession(ctx, sessionID)
	switch {
	case err == nil:
		// A row written by the cart path alone has no metadata yet.
		if sess.Metadata == nil {
			sess.Metadata = make(map[string]string)
		}
	case errors.Is(err, core.ErrNotFound):
		sess = s.fresh(sessionID, productID)
	default:
		// Store unreachable: serve a fresh in-memory session rather
		// than failing the turn. The persisted history reappears once
		// the store recovers and the cache entry expires.
		s.logger.Warn("session hydration failed",
			zap.String("session_id", sessionID), zap.Error(err))
		sess = s.fresh(sessionID, productID)
	}

	if sess.ProductID == "" && productID != "" {
		sess.ProductID = productID
	}

	s.cache.put(sess)
	return sess, nil
}

// Get returns an existing session without creating one. The cache is
// consulted first so in-flight state wins over the persisted copy.
func (s *Store) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	if sess, ok := s.cache.get(sessionID); ok {
		return sess, nil
	}
	return s.persistent.GetSession(ctx, sessionID)
}

// Append records messages on the session and persists the result. The
// in-memory copy is updated even when the write fails; a background
// retry reattempts the write.
func (s *Store) Append(ctx context.Context, sess *model.Session, messages ...model.Message) {
	now := time.Now()
	for i := range messages {
		if messages[i].ID == "" {
			messages[i].ID = uuid.Must(uuid.NewV7()).String()
		}
		if messages[i].CreatedAt.IsZero() {
			messages[i].CreatedAt = now
		}
		messages[i].SessionID = sess.ID
		sess.Messages = append(sess.Messages, messages[i])
		metrics.MessagesTotal.WithLabelValues(string(messages[i].Role)).Inc()
	}
	sess.LastActivity = now

	s.Persist(ctx, sess, messages)
}

// Persist writes the session row and any new messages. Failures are
// logged and retried in the background; they never block the reply.
func (s *Store) Persist(ctx context.Context, sess *model.Session, newMessages []model.Message) {
	if err := s.persistent.UpsertSession(ctx, sess); err != nil {
		s.scheduleRetry(sess, append([]model.Message(nil), newMessages...))
		return
	}
	if len(newMessages) == 0 {
		return
	}
	if err := s.persistent.AppendMessages(ctx, sess.ID, newMessages); err != nil {
		s.scheduleRetry(nil, append([]model.Message(nil), newMessages...))
	}
}

// Evict drops a session from the cache after flushing it, e.g. when a
// navigation event resets the conversation while the cart survives.
func (s *Store) Evict(ctx context.Context, sessionID string) {
	if sess, ok := s.cache.get(sessionID); ok {
		s.flushEvicted(sess)
	}
	s.cache.remove(sessionID)
}

// CachedCount reports the number of sessions held in memory.
func (s *Store) CachedCount() int {
	return s.cache.len()
}

// Close stops the eviction janitor.
func (s *Store) Close() {
	close(s.stop)
}

func (s *Store) fresh(sessionID, productID string) *model.Session {
	now := time.Now()
	return &model.Session{
		ID:           sessionID,
		ProductID:    productID,
		CurrentPhase: model.PhaseRapportBuilding,
		Metadata:     make(map[string]string),
		CreatedAt:    now,
		LastActivity: now,
	}
}

func (s *Store) flushEvicted(sess *model.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.persistent.UpsertSession(ctx, sess); err != nil {
		s.logger.Warn("eviction flush failed",
			zap.String("session_id", sess.ID), zap.Error(err))
	}
	if s.onEvict != nil {
		s.onEvict(sess.ID)
	}
}

func (s *Store) scheduleRetry(sess *model.Session, messages []model.Message) {
	s.logger.Warn("session persist failed, retrying in background",
		zap.Error(core.ErrPersistence))

	if sess != nil {
		snapshot := *sess
		snapshot.Messages = nil
		retry.InBackground(s.logger, "session_upsert", 0, func(ctx context.Context) error {
			return s.persistent.UpsertSession(ctx, &snapshot)
		})
	}
	if len(messages) > 0 {
		sessionID := messages[0].SessionID
		retry.InBackground(s.logger, "message_append", 0, func(ctx context.Context) error {
			return s.persistent.AppendMessages(ctx, sessionID, messages)
		})
	}
}

func (s *Store) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cache.sweep(time.Now())
		case <-s.stop:
			return
		}
	}
}
