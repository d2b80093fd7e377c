package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/projectchat-server/internal/auth"
	"github.com/vovakirdan/projectchat-server/internal/config"
	"github.com/vovakirdan/projectchat-server/internal/core"
	"github.com/vovakirdan/projectchat-server/internal/proto"
	"github.com/vovakirdan/projectchat-server/internal/store"
	"github.com/vovakirdan/projectchat-server/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	store *sqlite.SQLiteStore
	auth  *auth.Service
	cfg   *config.Config
}

// testOutbound decodes server frames keeping data raw.
type testOutbound struct {
	Type      string          `json:"type"`
	Event     string          `json:"event"`
	ProjectID string          `json:"projectId"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
	Error     *proto.Error    `json:"error"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWT.Secret = "test-secret"
	cfg.HandshakeTimeout = 2 * time.Second

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      time.Hour,
	})

	disabledLogger := zerolog.Nop()
	hub := core.NewHub(st, core.WithMaxContentBytes(cfg.Chat.MaxMessageBytes))

	server := NewServer(hub, authService, st, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	return &testEnv{ts: ts, hub: hub, store: st, auth: authService, cfg: &cfg}
}

// newUser creates a user and returns it with a valid token.
func (e *testEnv) newUser(t *testing.T, name string) (*store.User, string) {
	t.Helper()

	ctx := context.Background()
	user, err := e.store.CreateUser(ctx, strings.ToLower(name)+"@example.com", name)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := e.auth.IssueToken(ctx, user.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return user, token
}

// newProject creates a project owned by owner with the given extra members.
func (e *testEnv) newProject(t *testing.T, owner *store.User, members ...*store.User) *store.Project {
	t.Helper()

	ctx := context.Background()
	project, err := e.store.CreateProject(ctx, "Project", "", owner.ID)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	for _, m := range members {
		if err := e.store.AddMember(ctx, project.ID, m.ID, store.MemberRoleMember); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return project
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	url := e.wsURL()
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(testOutbound) bool) testOutbound {
	t.Helper()

	for {
		var out testOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("read outbound: %v", err)
		}
		if match(out) {
			return out
		}
	}
}

func isEvent(name string) func(testOutbound) bool {
	return func(out testOutbound) bool {
		return out.Type == proto.OutboundTypeEvent && out.Event == name
	}
}

func isError(out testOutbound) bool {
	return out.Type == proto.OutboundTypeError
}

// presenceEquals matches an update-online-users frame with exactly want.
func presenceEquals(want ...string) func(testOutbound) bool {
	return func(out testOutbound) bool {
		if out.Type != proto.OutboundTypeEvent || out.Event != proto.EventUpdateOnlineUsers {
			return false
		}
		var online []string
		if err := json.Unmarshal(out.Data, &online); err != nil {
			return false
		}
		if len(online) != len(want) {
			return false
		}
		for i := range want {
			if online[i] != want[i] {
				return false
			}
		}
		return true
	}
}
