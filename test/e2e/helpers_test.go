package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexjbarnes/scout-sync/internal/mcpserver"
	"github.com/alexjbarnes/scout-sync/internal/scout"
	"github.com/alexjbarnes/scout-sync/internal/server"
	"github.com/alexjbarnes/scout-sync/internal/session"
	"github.com/alexjbarnes/scout-sync/internal/settings"
	"github.com/alexjbarnes/scout-sync/pantry"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

const (
	testDebounce = 50 * time.Millisecond
	testTick     = 100 * time.Millisecond
	testCooldown = 300 * time.Millisecond
	waitFor      = 3 * time.Second
	pollEvery    = 20 * time.Millisecond
)

// pushed is one request received by the fake basket service.
type pushed struct {
	Path   string
	Basket pantry.Basket
	At     time.Time
}

// basketService is a fake basket endpoint that records every push and
// answers with a configurable status code.
type basketService struct {
	srv    *httptest.Server
	status atomic.Int32

	mu     sync.Mutex
	pushes []pushed
}

func newBasketService(t *testing.T) *basketService {
	t.Helper()

	b := &basketService{}
	b.status.Store(http.StatusOK)

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var basket pantry.Basket
		if err := json.NewDecoder(r.Body).Decode(&basket); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}

		b.mu.Lock()
		b.pushes = append(b.pushes, pushed{Path: r.URL.EscapedPath(), Basket: basket, At: time.Now()})
		b.mu.Unlock()

		w.WriteHeader(int(b.status.Load()))
		io.WriteString(w, "Your Pantry was updated")
	}))
	t.Cleanup(b.srv.Close)

	return b
}

func (b *basketService) all() []pushed {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]pushed(nil), b.pushes...)
}

func (b *basketService) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pushes)
}

// statusLog records every status value the engine emits.
type statusLog struct {
	mu     sync.Mutex
	values []string
}

func (l *statusLog) add(s scout.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values = append(l.values, s.String())
}

func (l *statusLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.values...)
}

func (l *statusLog) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.values) == 0 {
		return ""
	}

	return l.values[len(l.values)-1]
}

// harness holds the full e2e stack: a running engine, the session and
// control API over a real HTTP server, and a fake basket service.
type harness struct {
	URL      string
	Client   *http.Client
	Dir      string
	Basket   *basketService
	Statuses *statusLog
	Hub      *server.Hub
	Session  *session.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)
	basket := newBasketService(t)

	store, err := settings.OpenAt(filepath.Join(dir, "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := server.NewHub(logger)
	statuses := &statusLog{}

	engine := scout.NewEngine(scout.Config{
		Resolver:     pantry.NewResolver(basket.srv.URL + "/{id}/{name}"),
		Debounce:     testDebounce,
		TickInterval: testTick,
		Cooldown:     testCooldown,
		PushTimeout:  2 * time.Second,
	}, pantry.NewClient(basket.srv.Client()), scout.EmitterFunc(func(s scout.Status) {
		statuses.add(s)
		hub.Emit(s)
	}), logger)

	sess := session.New(session.Config{
		LiveAppURL: "https://apps.example/live/?url=",
		AllowFile:  func(p string) bool { return filepath.Ext(p) == ".dvw" },
	}, engine, store, hub, logger)
	require.NoError(t, sess.Restore(session.Overrides{}))

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "scout-sync-e2e", Version: "test"},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, sess, logger)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	ts := httptest.NewServer(server.NewMux(server.MuxConfig{
		Session:    sess,
		Hub:        hub,
		MCPHandler: mcpHandler,
		Logger:     logger,
	}))
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		engine.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{
		URL:      ts.URL,
		Client:   ts.Client(),
		Dir:      dir,
		Basket:   basket,
		Statuses: statuses,
		Hub:      hub,
		Session:  sess,
	}
}

// put sends a JSON PUT to the control API and returns the decoded state.
func (h *harness) put(t *testing.T, path string, body any) (int, session.State) {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPut, h.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var st session.State
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	}

	return resp.StatusCode, st
}

// state fetches GET /api/status.
func (h *harness) state(t *testing.T) session.State {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, h.URL+"/api/status", nil)
	require.NoError(t, err)

	resp, err := h.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st session.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))

	return st
}

func (h *harness) writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(h.Dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func (h *harness) eventsURL() string {
	return "ws" + strings.TrimPrefix(h.URL, "http") + "/api/events"
}

// indexAfter returns the index of the first occurrence of want at or
// after start, or -1.
func indexAfter(values []string, start int, want string) int {
	for i := start; i < len(values); i++ {
		if values[i] == want {
			return i
		}
	}

	return -1
}

// mcpSession connects an MCP client to the /mcp endpoint.
func (h *harness) mcpSession(t *testing.T) *mcp.ClientSession {
	t.Helper()

	transport := &mcp.StreamableClientTransport{
		Endpoint:   h.URL + "/mcp",
		HTTPClient: h.Client,
	}

	client := mcp.NewClient(
		&mcp.Implementation{Name: "e2e-test-client", Version: "test"},
		nil,
	)

	cs, err := client.Connect(t.Context(), transport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	return cs
}

// callTool calls an MCP tool and decodes the session state it returns.
func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (*mcp.CallToolResult, session.State) {
	t.Helper()

	result, err := cs.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)

	var st session.State
	if !result.IsError {
		require.NotEmpty(t, result.Content)
		tc, ok := result.Content[0].(*mcp.TextContent)
		require.True(t, ok, "first content is not TextContent")
		require.NoError(t, json.Unmarshal([]byte(tc.Text), &st))
	}

	return result, st
}
