package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Default TTLs, overridable through Options.
const (
	DefaultLeaseTTL = 60 * time.Second
	DefaultTaskTTL  = 30 * time.Minute
)

const (
	leaseKeyPrefix = "relay:lease:"
	taskKeyPrefix  = "relay:task:"
)

// releaseScript deletes the lease only if the caller still owns it, so a
// slow turn cannot release a lease that expired and was re-acquired.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// LeaseHeldError means another turn currently owns the session.
type LeaseHeldError struct {
	SessionID string
}

func (e *LeaseHeldError) Error() string {
	return fmt.Sprintf("session %q is locked by another request", e.SessionID)
}

// LeaseLostError means the lease expired before Release, so another turn
// may have run concurrently.
type LeaseLostError struct {
	SessionID string
}

func (e *LeaseLostError) Error() string {
	return fmt.Sprintf("session %q lease expired before release", e.SessionID)
}

// TaskState is the persisted progress of a multi-turn agent run.
type TaskState struct {
	// Draft is the accumulated answer draft.
	Draft string

	// Phase is the highest reasoning phase reached.
	Phase int

	// Cancelled is set when a client asked the run to stop.
	Cancelled bool
}

// Options configures a Store.
type Options struct {
	// LeaseTTL is the exclusivity window for one turn. Zero means
	// DefaultLeaseTTL.
	LeaseTTL time.Duration

	// TaskTTL is how long task state survives between turns. Zero means
	// DefaultTaskTTL.
	TaskTTL time.Duration

	Logger *slog.Logger
}

// Store manages leases and task state. A nil Redis client runs the store
// in memory-only mode.
type Store struct {
	rdb      *redis.Client
	leaseTTL time.Duration
	taskTTL  time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	memLeases map[string]memLease
	memTasks  map[string]memTask

	// now is swappable for tests.
	now func() time.Time
}

type memLease struct {
	token     string
	expiresAt time.Time
}

type memTask struct {
	state     TaskState
	expiresAt time.Time
}

// NewStore builds a Store. rdb may be nil.
func NewStore(rdb *redis.Client, opts Options) *Store {
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = DefaultLeaseTTL
	}
	if opts.TaskTTL <= 0 {
		opts.TaskTTL = DefaultTaskTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		rdb:       rdb,
		leaseTTL:  opts.LeaseTTL,
		taskTTL:   opts.TaskTTL,
		logger:    opts.Logger,
		memLeases: make(map[string]memLease),
		memTasks:  make(map[string]memTask),
		now:       time.Now,
	}
}

// Lease is an acquired session lock. Release it when the turn ends.
type Lease struct {
	store     *Store
	sessionID string
	token     string
	inMemory  bool
}

// AcquireLease locks the session for one turn. A held lock returns
// LeaseHeldError; a Redis outage degrades to the in-memory lock.
func (s *Store) AcquireLease(ctx context.Context, sessionID string) (*Lease, error) {
	token := uuid.NewString()

	if s.rdb != nil {
		ok, err := s.rdb.SetNX(ctx, leaseKeyPrefix+sessionID, token, s.leaseTTL).Result()
		if err == nil {
			if !ok {
				return nil, &LeaseHeldError{SessionID: sessionID}
			}
			return &Lease{store: s, sessionID: sessionID, token: token}, nil
		}
		s.logger.Warn("lease backend unreachable, degrading to local lock",
			"session", sessionID, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.memLeases[sessionID]; ok && s.now().Before(held.expiresAt) {
		return nil, &LeaseHeldError{SessionID: sessionID}
	}
	s.memLeases[sessionID] = memLease{token: token, expiresAt: s.now().Add(s.leaseTTL)}
	return &Lease{store: s, sessionID: sessionID, token: token, inMemory: true}, nil
}

// Release unlocks the session. Returns LeaseLostError when the lease had
// already expired or been taken over.
func (l *Lease) Release(ctx context.Context) error {
	s := l.store
	if !l.inMemory && s.rdb != nil {
		deleted, err := releaseScript.Run(ctx, s.rdb, []string{leaseKeyPrefix + l.sessionID}, l.token).Int()
		if err != nil {
			s.logger.Warn("lease release failed", "session", l.sessionID, "error", err)
			return nil
		}
		if deleted == 0 {
			return &LeaseLostError{SessionID: l.sessionID}
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.memLeases[l.sessionID]
	if !ok || held.token != l.token {
		return &LeaseLostError{SessionID: l.sessionID}
	}
	delete(s.memLeases, l.sessionID)
	if s.now().After(held.expiresAt) {
		return &LeaseLostError{SessionID: l.sessionID}
	}
	return nil
}

// SaveTask persists draft and phase for the session, refreshing the task
// TTL. The cancel flag is left untouched.
func (s *Store) SaveTask(ctx context.Context, sessionID, draft string, phase int) error {
	if s.rdb != nil {
		key := taskKeyPrefix + sessionID
		pipe := s.rdb.TxPipeline()
		pipe.HSet(ctx, key, "draft", draft, "phase", phase)
		pipe.Expire(ctx, key, s.taskTTL)
		if _, err := pipe.Exec(ctx); err == nil {
			return nil
		} else {
			s.logger.Warn("task save degraded to memory", "session", sessionID, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.loadMemTaskLocked(sessionID)
	existing.Draft = draft
	existing.Phase = phase
	s.memTasks[sessionID] = memTask{state: existing, expiresAt: s.now().Add(s.taskTTL)}
	return nil
}

// LoadTask returns the task state for the session. Missing or expired
// state is the zero value.
func (s *Store) LoadTask(ctx context.Context, sessionID string) (TaskState, error) {
	if s.rdb != nil {
		fields, err := s.rdb.HGetAll(ctx, taskKeyPrefix+sessionID).Result()
		if err == nil {
			state := TaskState{Draft: fields["draft"]}
			state.Phase, _ = strconv.Atoi(fields["phase"])
			state.Cancelled = fields["cancelled"] == "1"
			return state, nil
		}
		s.logger.Warn("task load degraded to memory", "session", sessionID, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadMemTaskLocked(sessionID), nil
}

// Cancel flags the session's run for cooperative shutdown. The driver
// checks the flag between iterations.
func (s *Store) Cancel(ctx context.Context, sessionID string) error {
	if s.rdb != nil {
		key := taskKeyPrefix + sessionID
		pipe := s.rdb.TxPipeline()
		pipe.HSet(ctx, key, "cancelled", "1")
		pipe.Expire(ctx, key, s.taskTTL)
		if _, err := pipe.Exec(ctx); err == nil {
			return nil
		} else {
			s.logger.Warn("cancel degraded to memory", "session", sessionID, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.loadMemTaskLocked(sessionID)
	existing.Cancelled = true
	s.memTasks[sessionID] = memTask{state: existing, expiresAt: s.now().Add(s.taskTTL)}
	return nil
}

// ClearTask drops the session's task state, usually after a final answer.
func (s *Store) ClearTask(ctx context.Context, sessionID string) error {
	if s.rdb != nil {
		if err := s.rdb.Del(ctx, taskKeyPrefix+sessionID).Err(); err != nil {
			s.logger.Warn("task clear failed", "session", sessionID, "error", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memTasks, sessionID)
	return nil
}

// loadMemTaskLocked returns the live in-memory state. Caller holds s.mu.
func (s *Store) loadMemTaskLocked(sessionID string) TaskState {
	task, ok := s.memTasks[sessionID]
	if !ok || s.now().After(task.expiresAt) {
		delete(s.memTasks, sessionID)
		return TaskState{}
	}
	return task.state
}
