package session

import (
	"context"
	"sync"
)

// SnapshotKey is the fixed name the durable projection is stored under,
// whatever the backend.
const SnapshotKey = "simulator-session"

// Snapshot is the durable projection of the store: the session id and its
// metadata, excluding the runtime-only flags.
type Snapshot struct {
	CurrentSessionID string    `json:"currentSessionId"`
	Metadata         *Metadata `json:"sessionMetadata"`
}

// SnapshotStore persists the session snapshot. Load returns (nil, nil) when
// no snapshot exists; a non-nil error means the stored payload could not be
// read or parsed and should be treated as corrupted.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Clear(ctx context.Context) error
}

// MemorySnapshotStore keeps the serialized snapshot in memory. Data is lost
// on restart; intended for tests and development.
type MemorySnapshotStore struct {
	mu   sync.Mutex
	data []byte
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (m *MemorySnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return decodeSnapshot(m.data)
}

func (m *MemorySnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

func (m *MemorySnapshotStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}
