package studio

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"art-studio-server/modules/history"
)

// Session is one user's isolated workspace: its own history, its last
// successful batch and at most one running batch.
type Session struct {
	ID        string
	CreatedAt time.Time

	store history.Store

	// commitMu orders a batch's history append against end.
	commitMu sync.Mutex

	mu           sync.Mutex
	lastActivity time.Time
	latest       *history.Record
	running      bool
	cancel       context.CancelFunc
	ended        bool
}

func newSession(id string, store history.Store, now time.Time) *Session {
	return &Session{
		ID:           id,
		CreatedAt:    now,
		store:        store,
		lastActivity: now,
	}
}

// Store returns the session's history.
func (s *Session) Store() history.Store {
	return s.store
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Latest returns the last successful batch, or nil before the first one.
func (s *Session) Latest() *history.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Cancel stops the running batch, if any. Nothing from it is committed.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// begin marks a batch as running. The returned finish must be called
// exactly once; a non-nil record becomes the session's latest batch.
func (s *Session) begin(ctx context.Context) (context.Context, func(*history.Record), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return nil, nil, ErrSessionNotFound
	}
	if s.running {
		return nil, nil, ErrBatchInProgress
	}

	batchCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.lastActivity = time.Now()

	finish := func(rec *history.Record) {
		cancel()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.running = false
		s.cancel = nil
		s.lastActivity = time.Now()
		if rec != nil && !s.ended {
			s.latest = rec
		}
	}
	return batchCtx, finish, nil
}

// commit appends rec unless the batch behind batchCtx was stopped.
func (s *Session) commit(ctx, batchCtx context.Context, rec history.Record) (int, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if err := batchCtx.Err(); err != nil {
		return 0, err
	}
	return s.store.Append(ctx, rec)
}

// end cancels the running batch and waits out an in-flight commit, so the
// store can be cleared without the batch writing to it afterwards.
func (s *Session) end() {
	s.mu.Lock()
	s.ended = true
	s.latest = nil
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.commitMu.Lock()
	s.commitMu.Unlock()
}

// SessionManager owns every live session.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newStore    history.Factory
	idleTimeout time.Duration
	maxAge      time.Duration
	metrics     *Metrics
	onEnd       []func(sessionID string)

	now func() time.Time
}

// NewSessionManager - idleTimeout and maxAge <= 0 disable the respective
// expiry rule.
func NewSessionManager(newStore history.Factory, idleTimeout, maxAge time.Duration, metrics *Metrics) *SessionManager {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &SessionManager{
		sessions:    make(map[string]*Session),
		newStore:    newStore,
		idleTimeout: idleTimeout,
		maxAge:      maxAge,
		metrics:     metrics,
		now:         time.Now,
	}
}

// OnEnd registers fn to run after a session is ended or expired.
func (sm *SessionManager) OnEnd(fn func(sessionID string)) {
	sm.mu.Lock()
	sm.onEnd = append(sm.onEnd, fn)
	sm.mu.Unlock()
}

func (sm *SessionManager) Metrics() *Metrics {
	return sm.metrics
}

func (sm *SessionManager) Create() *Session {
	id := uuid.NewString()
	session := newSession(id, sm.newStore(id), sm.now())

	sm.mu.Lock()
	sm.sessions[id] = session
	sm.mu.Unlock()

	sm.metrics.sessionCreated()
	log.Info().Str("session", id).Int("active", sm.Count()).Msg("✅ [Studio] Created new session")
	return session
}

// Get looks up a session and records activity on it.
func (sm *SessionManager) Get(id string) (*Session, bool) {
	sm.mu.RLock()
	session, ok := sm.sessions[id]
	sm.mu.RUnlock()
	if !ok {
		return nil, false
	}
	session.Touch()
	return session, true
}

// End discards the session's history and cancels its running batch.
func (sm *SessionManager) End(ctx context.Context, id string) bool {
	sm.mu.Lock()
	session, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if !ok {
		return false
	}

	sm.discard(ctx, session)
	sm.metrics.sessionsEnded(1)
	log.Info().Str("session", id).Msg("👋 [Studio] Session ended")
	return true
}

func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// List returns a snapshot of the live sessions.
func (sm *SessionManager) List() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	return out
}

// CleanupExpired removes sessions past the maximum age and idle sessions
// with no running batch. It returns how many were removed.
func (sm *SessionManager) CleanupExpired(ctx context.Context) int {
	now := sm.now()

	var expired []*Session
	sm.mu.Lock()
	for id, session := range sm.sessions {
		tooOld := sm.maxAge > 0 && now.Sub(session.CreatedAt) > sm.maxAge
		idle := sm.idleTimeout > 0 && now.Sub(session.LastActivity()) > sm.idleTimeout && !session.Running()
		if tooOld || idle {
			delete(sm.sessions, id)
			expired = append(expired, session)

			reason := "expired"
			if !tooOld {
				reason = "inactive"
			}
			log.Info().
				Str("session", id).
				Str("reason", reason).
				Dur("age", now.Sub(session.CreatedAt)).
				Msg("⏰ [Studio] Cleaning up session")
		}
	}
	sm.mu.Unlock()

	for _, session := range expired {
		sm.discard(ctx, session)
	}
	if len(expired) > 0 {
		sm.metrics.sessionsEnded(len(expired))
		log.Info().Int("cleaned", len(expired)).Int("active", sm.Count()).Msg("🧼 [Studio] Cleaned up expired sessions")
	}
	return len(expired)
}

// StartCleanupRoutine runs CleanupExpired every interval until ctx is done.
func (sm *SessionManager) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sm.CleanupExpired(ctx)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("🔄 [Studio] Started session cleanup routine")
}

func (sm *SessionManager) discard(ctx context.Context, session *Session) {
	session.end()
	if err := session.store.Clear(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Str("session", session.ID).Msg("⚠️ [Studio] Failed to clear history")
	}

	sm.mu.RLock()
	hooks := sm.onEnd
	sm.mu.RUnlock()
	for _, fn := range hooks {
		fn(session.ID)
	}
}
