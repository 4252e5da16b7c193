package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrEmptySessionID is returned by SetSession when given an empty id.
var ErrEmptySessionID = errors.New("session: empty session id")

// Metadata describes the active simulation session. It is owned by the Store
// and mutated only through store operations.
type Metadata struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// MetadataPatch is a partial metadata update. Nil fields are left unchanged.
type MetadataPatch struct {
	Name      *string
	Status    *Status
	CreatedAt *time.Time
}

// State is a point-in-time copy of the store contents.
// CurrentSessionID and Metadata are set and cleared together.
// SocketConnected and Hydrated are runtime-only and never persisted.
type State struct {
	CurrentSessionID string
	Metadata         *Metadata
	SocketConnected  bool
	Hydrated         bool
}

// Config carries the store's injected dependencies. Snapshots and Mirror may
// be nil, in which case persistence and cookie mirroring are disabled (useful
// in tests).
type Config struct {
	Snapshots SnapshotStore
	Mirror    Mirror
	Logger    zerolog.Logger
}

// Store is the single source of truth for which simulation session is active
// and in what state. It keeps a durable snapshot of the session across
// restarts and mirrors the session id into a side channel readable by the
// request-routing layer.
//
// The store is a cache of externally authoritative state: it records status
// transitions pushed in by callers, it does not run timers or enforce the
// transition graph itself.
type Store struct {
	mu        sync.RWMutex
	log       zerolog.Logger
	snapshots SnapshotStore
	mirror    Mirror

	state   State
	subs    map[int]func(State)
	nextSub int
}

// NewStore creates a store with an empty session. Call Hydrate before
// trusting reads.
func NewStore(cfg Config) *Store {
	snapshots := cfg.Snapshots
	if snapshots == nil {
		snapshots = nopSnapshots{}
	}
	mirror := cfg.Mirror
	if mirror == nil {
		mirror = nopMirror{}
	}
	return &Store{
		log:       cfg.Logger,
		snapshots: snapshots,
		mirror:    mirror,
		subs:      make(map[int]func(State)),
	}
}

// Hydrate loads the persisted snapshot and reconciles the cookie mirror.
// It runs at most once; later calls are no-ops. A snapshot that cannot be
// read or parsed is treated as corrupted: it is discarded, the mirror is
// cleared and the store continues with an empty session.
func (s *Store) Hydrate(ctx context.Context) {
	s.mu.Lock()
	if s.state.Hydrated {
		s.mu.Unlock()
		return
	}

	snap, err := s.snapshots.Load(ctx)
	switch {
	case err != nil:
		s.log.Warn().Err(err).Msg("discarding corrupted session snapshot")
		if err := s.snapshots.Clear(ctx); err != nil {
			s.log.Warn().Err(err).Msg("failed to clear session snapshot")
		}
		s.mirror.Clear()
	case snap != nil && snap.CurrentSessionID != "" && snap.Metadata != nil:
		s.state.CurrentSessionID = snap.CurrentSessionID
		s.state.Metadata = snap.Metadata
		// The mirror does not survive a cleared cookie jar, only the
		// snapshot does. Re-establish it on every fresh load.
		s.mirror.Set(snap.CurrentSessionID)
	case snap != nil && (snap.CurrentSessionID != "") != (snap.Metadata != nil):
		// Half a session is corruption too.
		s.log.Warn().Msg("discarding partial session snapshot")
		if err := s.snapshots.Clear(ctx); err != nil {
			s.log.Warn().Err(err).Msg("failed to clear session snapshot")
		}
		s.mirror.Clear()
	default:
		s.mirror.Clear()
	}

	s.state.Hydrated = true
	state := s.state
	s.mu.Unlock()

	s.notify(state)
}

// SetSession atomically replaces the current session id and metadata, writes
// the cookie mirror and persists the snapshot. The id must be non-empty;
// metadata consistency is the caller's responsibility.
func (s *Store) SetSession(ctx context.Context, id string, md Metadata) error {
	if id == "" {
		return ErrEmptySessionID
	}

	s.mu.Lock()
	s.state.CurrentSessionID = id
	clone := md
	s.state.Metadata = &clone
	s.mirror.Set(id)
	s.persistLocked(ctx)
	state := s.state
	s.mu.Unlock()

	s.notify(state)
	return nil
}

// ClearSession drops the active session, resets the socket flag, deletes the
// cookie mirror and the persisted snapshot. Idempotent.
func (s *Store) ClearSession(ctx context.Context) {
	s.mu.Lock()
	s.state.CurrentSessionID = ""
	s.state.Metadata = nil
	s.state.SocketConnected = false
	s.mirror.Clear()
	if err := s.snapshots.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear session snapshot")
	}
	state := s.state
	s.mu.Unlock()

	s.notify(state)
}

// UpdateStatus records an externally observed status transition. It replaces
// only the status, preserving name and creation time, and is a no-op when no
// session is active.
func (s *Store) UpdateStatus(ctx context.Context, status Status) {
	s.mu.Lock()
	if s.state.Metadata == nil {
		s.mu.Unlock()
		return
	}
	md := *s.state.Metadata
	md.Status = status
	s.state.Metadata = &md
	s.persistLocked(ctx)
	state := s.state
	s.mu.Unlock()

	s.notify(state)
}

// UpdateMetadata shallow-merges the given fields into the current metadata.
// No-op when no session is active.
func (s *Store) UpdateMetadata(ctx context.Context, patch MetadataPatch) {
	s.mu.Lock()
	if s.state.Metadata == nil {
		s.mu.Unlock()
		return
	}
	md := *s.state.Metadata
	if patch.Name != nil {
		md.Name = *patch.Name
	}
	if patch.Status != nil {
		md.Status = *patch.Status
	}
	if patch.CreatedAt != nil {
		md.CreatedAt = *patch.CreatedAt
	}
	s.state.Metadata = &md
	s.persistLocked(ctx)
	state := s.state
	s.mu.Unlock()

	s.notify(state)
}

// SetSocketConnected records the simulator stream connectivity. Independent
// of session presence and never persisted.
func (s *Store) SetSocketConnected(connected bool) {
	s.mu.Lock()
	s.state.SocketConnected = connected
	state := s.state
	s.mu.Unlock()

	s.notify(state)
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state
	if state.Metadata != nil {
		clone := *state.Metadata
		state.Metadata = &clone
	}
	return state
}

// SessionID returns the active session id, if any.
func (s *Store) SessionID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CurrentSessionID, s.state.CurrentSessionID != ""
}

// Metadata returns a copy of the active session metadata, if any.
func (s *Store) Metadata() (Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Metadata == nil {
		return Metadata{}, false
	}
	return *s.state.Metadata, true
}

// Status returns the active session status, if any.
func (s *Store) Status() (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Metadata == nil {
		return "", false
	}
	return s.state.Metadata.Status, true
}

// Name returns the active session name, if any.
func (s *Store) Name() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Metadata == nil {
		return "", false
	}
	return s.state.Metadata.Name, true
}

// Hydrated reports whether startup reconciliation has completed. Readers
// must treat store contents as provisional until it has.
func (s *Store) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Hydrated
}

// SocketConnected reports the simulator stream connectivity flag.
func (s *Store) SocketConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SocketConnected
}

// Valid reports whether the active session can back the dashboard: a session
// is present and its status is neither expired nor stopped.
func (s *Store) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.CurrentSessionID == "" || s.state.Metadata == nil {
		return false
	}
	st := s.state.Metadata.Status
	return st != StatusExpired && st != StatusStopped
}

// NeedsRecovery reports whether the active session was interrupted by a
// simulator restart and is waiting for the operator to resume it. The
// recovery window itself is enforced by the simulator backend.
func (s *Store) NeedsRecovery() bool {
	st, ok := s.Status()
	return ok && st == StatusInterrupted
}

// Subscribe registers fn to be called with a state copy after every
// transition. The returned function cancels the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// persistLocked writes the durable projection of the current state. Failures
// are logged, never surfaced: the in-memory state stays authoritative for the
// rest of the process lifetime.
func (s *Store) persistLocked(ctx context.Context) {
	snap := &Snapshot{
		CurrentSessionID: s.state.CurrentSessionID,
		Metadata:         s.state.Metadata,
	}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist session snapshot")
	}
}

func (s *Store) notify(state State) {
	s.mu.RLock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(state)
	}
}

type nopSnapshots struct{}

func (nopSnapshots) Load(context.Context) (*Snapshot, error) { return nil, nil }
func (nopSnapshots) Save(context.Context, *Snapshot) error   { return nil }
func (nopSnapshots) Clear(context.Context) error             { return nil }

type nopMirror struct{}

func (nopMirror) Set(string) {}
func (nopMirror) Clear()     {}
