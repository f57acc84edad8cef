package wsserver

import (
	"sync"

	"github.com/OpenRedButtonProject/orb-core/internal/rpc"
)

// session is one admitted WebSocket connection: its JSON-RPC state plus a
// bounded outbound queue drained by a dedicated writer goroutine.
type session struct {
	conn *rpc.ConnectionState
	send chan []byte
}

// registry is the process-wide table of admitted connections, owned
// exclusively by this package — other packages reach it only through
// Fanout.
type registry struct {
	mu       sync.Mutex
	nextID   int
	sessions map[int]*session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[int]*session)}
}

// add allocates a connection id and registers a session for it.
func (r *registry) add(uri string, opAppEnabled bool, queueSize int) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	s := &session{
		conn: rpc.NewConnectionState(r.nextID, uri, opAppEnabled),
		send: make(chan []byte, queueSize),
	}
	r.sessions[r.nextID] = s
	return s
}

// remove closes a session's outbound queue and drops it from the registry.
func (r *registry) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		close(s.send)
		delete(r.sessions, id)
	}
}

// each calls fn for a snapshot of the currently registered sessions. fn
// runs outside the registry lock so it may block on per-session sends
// without stalling admission/removal of other connections.
func (r *registry) each(fn func(*session)) {
	r.mu.Lock()
	snapshot := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.Unlock()

	for _, s := range snapshot {
		fn(s)
	}
}

// trySend enqueues a frame without blocking; a full queue means the
// connection's writer is stuck or gone, so the frame is dropped rather
// than stalling the sender.
func (s *session) trySend(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}
