package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	v1 "github.com/dwbrown115/GameServer/shared/contracts/realtime/v1"
)

const (
	// Offered but not required; older clients negotiate none.
	wsSubprotocolV1 = "gameserver.v1"

	wsCloseGrace      = 1 * time.Second
	wsMaxPingFailures = 3
	wsEndTimeout      = 5 * time.Second
)

// WSGateway upgrades requests carrying a bound session id and runs the
// position echo loop until the peer leaves.
type WSGateway struct {
	log      *slog.Logger
	logs     SessionLogStore
	registry *Registry
	cfg      GatewayConfig

	// Derived for websocket.Accept origin checks.
	originPatterns []string

	// Tracks upgraded connections, which http.Server.Shutdown does not wait for.
	inflight sync.WaitGroup

	now func() time.Time
}

// NewWSGateway constructs a gateway. A nil logger falls back to slog.Default.
func NewWSGateway(log *slog.Logger, logs SessionLogStore, registry *Registry, cfg GatewayConfig) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry(log, nil)
	}
	return &WSGateway{
		log:            log,
		logs:           logs,
		registry:       registry,
		cfg:            cfg,
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS authorises ?session_id= against an open session log, upgrades,
// and serves the connection. Teardown removes the registry entry and then
// stamps the log row closed.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		g.log.Info("ws.reject.session", "reason", "missing", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	row, err := g.logs.FindOpen(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionLogNotFound) {
			g.log.Info("ws.reject.session", "reason", "unknown_or_closed", "session_id", sessionID, "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		g.log.Error("ws.session_lookup.fail", "session_id", sessionID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "session_id", sessionID, "err", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	g.inflight.Add(1)
	defer g.inflight.Done()

	g.registry.Add(sessionID, conn)

	// The row may have ended between the lookup and Add (a previous
	// connection for the same session finishing teardown).
	if _, err := g.logs.FindOpen(r.Context(), sessionID); err != nil {
		g.log.Info("ws.reject.session", "reason", "ended_during_upgrade", "session_id", sessionID, "err", err)
		if !g.registry.RemoveConn(context.Background(), sessionID, conn) {
			_ = conn.CloseNow()
		}
		return
	}
	g.log.Info("ws.open", "session_id", sessionID, "player_id", row.PlayerID)

	code, reason := g.serve(r.Context(), conn, NewClient(row.PlayerID, sessionID, g.cfg.SendQueueSize))

	if code != websocket.StatusNormalClosure {
		_ = conn.Close(code, reason)
	}
	if !g.registry.RemoveConn(context.Background(), sessionID, conn) {
		if _, replaced := g.registry.Get(sessionID); replaced {
			// A newer connection for the same session owns the row now.
			g.log.Info("ws.close.replaced", "session_id", sessionID)
			return
		}
		// Already released by CloseAll.
	}

	endCtx, cancel := context.WithTimeout(context.Background(), wsEndTimeout)
	defer cancel()
	if err := g.logs.EndSession(endCtx, sessionID, g.now()); err != nil {
		g.log.Error("realtime.session_log.end.fail", "session_id", sessionID, "err", err)
	}
	g.log.Info("ws.close", "session_id", sessionID, "code", code.String(), "reason", reason)
}

// Wait blocks until every upgraded connection has finished its teardown or
// ctx is done.
func (g *WSGateway) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serve runs the writer, heartbeat and read loops and returns the close
// status the connection should end with.
func (g *WSGateway) serve(parent context.Context, conn *websocket.Conn, client *Client) (websocket.StatusCode, string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		closeOnce   sync.Once
		closeCode   = websocket.StatusNormalClosure
		closeReason = "bye"
	)
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			closeCode, closeReason = code, reason
			client.Close()
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case frame := <-client.Send:
				if err := writeFrame(ctx, conn, frame, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", client.SessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", client.SessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		mt, data, err := conn.Read(readCtx)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				g.log.Info("ws.read.fail", "session_id", client.SessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		now := g.now()
		if !rl.Allow(now) {
			g.trySendError(ctx, client, "rate_limited", "too many frames")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if mt != websocket.MessageText {
			g.trySendError(ctx, client, "unsupported_frame", "text frames only")
			continue readLoop
		}

		pos, err := decodePosition(data)
		if err != nil {
			code := "bad_json"
			if errors.Is(err, errBadPosition) {
				code = "bad_position"
			}
			g.trySendError(ctx, client, code, err.Error())
			continue readLoop
		}

		echo, _ := json.Marshal(v1.PositionEcho{
			X:      pos.X,
			Y:      pos.Y,
			Status: v1.StatusPrefix + now.Format(time.RFC3339Nano),
		})
		if !g.enqueue(ctx, client, echo) {
			g.log.Info("ws.backpressure", "session_id", client.SessionID)
			shutdown(websocket.StatusPolicyViolation, "backpressure")
			break readLoop
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
	return closeCode, closeReason
}

var errBadPosition = errors.New("position requires finite x and y")

// decodePosition parses {"x":..,"y":..}. Both coordinates are required.
func decodePosition(data []byte) (v1.Position, error) {
	var raw struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return v1.Position{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if raw.X == nil || raw.Y == nil {
		return v1.Position{}, errBadPosition
	}
	p := v1.Position{X: *raw.X, Y: *raw.Y}
	if err := p.Validate(); err != nil {
		return v1.Position{}, errBadPosition
	}
	return p, nil
}

// ---- send helpers ----

func (g *WSGateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	b, _ := json.Marshal(v1.Error{Error: code, Message: msg})
	_ = g.enqueue(ctx, client, b)
}

func (g *WSGateway) enqueue(ctx context.Context, client *Client, frame []byte) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- frame:
		return true
	default:
		return false
	}
}

func writeFrame(parent context.Context, conn *websocket.Conn, frame []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		if a == "*" || origin == a {
			return nil
		}
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins turns the allowlist into the host
// patterns websocket.Accept checks cross-origin requests against.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
