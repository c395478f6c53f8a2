package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Conn is the part of a websocket connection the registry closes.
// *websocket.Conn satisfies it.
type Conn interface {
	Close(code websocket.StatusCode, reason string) error
}

// forceCloser is implemented by *websocket.Conn. CloseAll falls back to it
// for peers that do not answer the close handshake.
type forceCloser interface {
	CloseNow() error
}

// defaultCloseGrace bounds how long CloseAll waits for close handshakes.
const defaultCloseGrace = 2 * time.Second

// Gauge tracks the number of live connections (metrics).
type Gauge interface {
	Set(float64)
}

// Registry maps live session ids to their connections.
type Registry struct {
	mu    sync.Mutex
	conns map[string]Conn
	log   *slog.Logger
	gauge Gauge

	closeGrace time.Duration
}

// NewRegistry returns an empty Registry. gauge may be nil.
func NewRegistry(log *slog.Logger, gauge Gauge) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{conns: make(map[string]Conn), log: log, gauge: gauge, closeGrace: defaultCloseGrace}
}

// Add registers conn under sessionID. A connection already registered under
// the same id is removed and closed first.
func (r *Registry) Add(sessionID string, conn Conn) {
	r.mu.Lock()
	prev, had := r.conns[sessionID]
	r.conns[sessionID] = conn
	n := len(r.conns)
	r.mu.Unlock()

	r.setGauge(n)
	if had && prev != conn {
		r.closeConn(sessionID, prev, "replaced")
	}
}

// Remove deletes sessionID and closes its connection. Exactly one of any
// concurrent callers gets true; the rest see false.
func (r *Registry) Remove(_ context.Context, sessionID string) bool {
	return r.remove(sessionID, nil)
}

// RemoveConn is Remove restricted to the case where sessionID still maps to
// conn. A handler whose connection was replaced by a newer one uses it so it
// does not tear down its successor.
func (r *Registry) RemoveConn(_ context.Context, sessionID string, conn Conn) bool {
	if conn == nil {
		return false
	}
	return r.remove(sessionID, conn)
}

func (r *Registry) remove(sessionID string, want Conn) bool {
	r.mu.Lock()
	conn, ok := r.conns[sessionID]
	if ok && want != nil && conn != want {
		ok = false
	}
	if ok {
		delete(r.conns, sessionID)
	}
	n := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.setGauge(n)
	r.closeConn(sessionID, conn, "session closed")
	return true
}

// Get returns the connection for sessionID.
func (r *Registry) Get(sessionID string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[sessionID]
	return c, ok
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll removes every connection and closes them concurrently. Handles
// still closing when ctx ends or the close grace period passes are closed
// without a handshake. Used on shutdown.
func (r *Registry) CloseAll(ctx context.Context) int {
	r.mu.Lock()
	all := r.conns
	r.conns = make(map[string]Conn)
	r.mu.Unlock()

	r.setGauge(0)
	if len(all) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	for id, c := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.closeConn(id, c, "server shutdown")
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(r.closeGrace)
	defer grace.Stop()

	select {
	case <-done:
		return len(all)
	case <-ctx.Done():
	case <-grace.C:
	}

	r.log.Warn("realtime.registry.close_all.forced", "count", len(all))
	for id, c := range all {
		fc, ok := c.(forceCloser)
		if !ok {
			continue
		}
		if err := fc.CloseNow(); err != nil {
			r.log.Debug("realtime.registry.close_now.fail", "session_id", id, "err", err)
		}
	}
	return len(all)
}

func (r *Registry) closeConn(sessionID string, c Conn, reason string) {
	if c == nil {
		return
	}
	if err := c.Close(websocket.StatusNormalClosure, reason); err != nil {
		// Peers that hung up first make this the common case.
		r.log.Debug("realtime.registry.close.fail", "session_id", sessionID, "err", err)
	}
}

func (r *Registry) setGauge(n int) {
	if r.gauge != nil {
		r.gauge.Set(float64(n))
	}
}
