// Package main provides a CI-friendly smoke test for the game server's realtime path.
//
// It validates:
//   - register (or login) over HTTP
//   - realtime session binding via /ws/auth
//   - handshake + subprotocol selection
//   - position echo
//   - bad_json error frame
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "github.com/dwbrown115/GameServer/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "gameserver.v1"
	maxReadBytes       = 1 << 16
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

type sessionTokens struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func main() {
	var (
		baseURL  = flag.String("base", "http://127.0.0.1:8080", "HTTP base URL")
		origin   = flag.String("origin", "", "Origin header to send (empty for native clients)")
		username = flag.String("user", "", "Username (random when empty)")
		pass     = flag.String("password", "smoke-pass-123", "Password")
		device   = flag.String("device", "smoke-device", "Device id")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	wsURL, err := deriveWSURL(*baseURL)
	if err != nil {
		fatalf("invalid -base: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	if *username == "" {
		*username = fmt.Sprintf("smoke%d", time.Now().UnixNano()%1_000_000_000)
	}

	root := context.Background()
	creds := credentials{Username: *username, Password: *pass, DeviceID: *device}

	var tokens sessionTokens
	status := mustPost(root, *baseURL+"/authentication/register", creds, &tokens, *timeout)
	if status == http.StatusBadRequest {
		status = mustPost(root, *baseURL+"/authentication/login", creds, &tokens, *timeout)
	}
	if status != http.StatusOK || tokens.AccessToken == "" {
		fatalf("sign-in failed: status=%d", status)
	}

	var bound v1.AuthResponse
	status = mustPost(root, *baseURL+"/ws/auth", v1.AuthRequest{
		UserID:       tokens.UserID,
		DeviceID:     *device,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, &bound, *timeout)
	if status != http.StatusOK || !bound.Authenticated || bound.SessionID == "" {
		fatalf("ws/auth: status=%d reason=%q", status, bound.Reason)
	}
	if *verbose {
		fmt.Printf("bound: user=%s session=%s\n", tokens.UserID, bound.SessionID)
	}

	conn := mustConnect(root, wsURL+"?session_id="+url.QueryEscape(bound.SessionID), *origin, *timeout)
	defer closeWS(conn)

	mustWrite(root, conn, []byte(`{"x":1.5,"y":-2}`), *timeout)
	var echo v1.PositionEcho
	mustRead(root, conn, &echo, *timeout)
	if echo.X != 1.5 || echo.Y != -2 || !strings.HasPrefix(echo.Status, v1.StatusPrefix) {
		fatalf("unexpected echo: %+v", echo)
	}

	mustWrite(root, conn, []byte(`not json`), *timeout)
	var frameErr v1.Error
	mustRead(root, conn, &frameErr, *timeout)
	if frameErr.Error != "bad_json" {
		fatalf("expected bad_json, got %+v", frameErr)
	}

	fmt.Printf("OK: user=%s session=%s status=%q\n", tokens.UserID, bound.SessionID, echo.Status)
}

func deriveWSURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("missing host")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustPost(parent context.Context, target string, body, out any, stepTimeout time.Duration) int {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(body)
	if err != nil {
		fatalf("marshal %s: %v", target, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(b))
	if err != nil {
		fatalf("request %s: %v", target, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("POST %s: %v", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fatalf("decode %s: %v", target, err)
		}
	}
	return resp.StatusCode
}

func mustConnect(parent context.Context, wsURL, origin string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}

	assertSubprotocol(resp, defaultSubprotocol)
	conn.SetReadLimit(maxReadBytes)
	return conn
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got %q want %q", got, want)
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, data []byte, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		fatalf("write: %v", err)
	}
}

func mustRead(parent context.Context, conn *websocket.Conn, out any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		fatalf("read: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		fatalf("unmarshal %q: %v", data, err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
