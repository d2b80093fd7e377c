package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/projectchat-server/internal/core"
	"github.com/vovakirdan/projectchat-server/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketJoinSendAndPresence(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.newUser(t, "Alice")
	bob, bobToken := env.newUser(t, "Bob")
	project := env.newProject(t, alice, bob)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dial(t, ctx, aliceToken)
	connB := env.dial(t, ctx, bobToken)

	send(t, ctx, connA, proto.InboundTypeJoinProject, proto.JoinProjectData{ProjectID: project.ID})
	readUntil(t, ctx, connA, presenceEquals(alice.ID))

	send(t, ctx, connB, proto.InboundTypeJoinProject, proto.JoinProjectData{ProjectID: project.ID, UserID: bob.ID})
	both := []string{alice.ID, bob.ID}
	sort.Strings(both)
	readUntil(t, ctx, connA, presenceEquals(both...))
	readUntil(t, ctx, connB, presenceEquals(both...))

	send(t, ctx, connA, proto.InboundTypeSendMessage, proto.SendMessageData{
		ProjectID: project.ID,
		Content:   "hello",
		RequestID: "req-1",
	})

	for _, conn := range []*websocket.Conn{connA, connB} {
		out := readUntil(t, ctx, conn, isEvent(proto.EventReceiveMessage))
		require.Equal(t, project.ID, out.ProjectID)

		var msg proto.ChatMessage
		require.NoError(t, json.Unmarshal(out.Data, &msg))
		require.Equal(t, "hello", msg.Content)
		require.Equal(t, alice.ID, msg.UserID)
		require.Equal(t, proto.Author{ID: alice.ID, Name: "Alice"}, msg.Author)
		require.NotEmpty(t, msg.ID)
		require.False(t, msg.CreatedAt.IsZero())
	}

	ack := readUntil(t, ctx, connA, isEvent(proto.EventMessageAck))
	require.Equal(t, "req-1", ack.RequestID)

	history, err := env.store.ListMessages(ctx, project.ID, 10, "")
	require.NoError(t, err)
	require.Len(t, history, 1)

	require.NoError(t, connB.Close(websocket.StatusNormalClosure, "bye"))
	readUntil(t, ctx, connA, presenceEquals(alice.ID))
}

func TestWebSocketHelloHandshake(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.newUser(t, "Alice")
	project := env.newProject(t, alice)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, "")
	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{Token: aliceToken, Protocol: proto.ProtocolVersion})
	send(t, ctx, conn, proto.InboundTypeJoinProject, proto.JoinProjectData{ProjectID: project.ID})

	readUntil(t, ctx, conn, presenceEquals(alice.ID))
}

func TestWebSocketHandshakeFailures(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.newUser(t, "Alice")

	tests := []struct {
		name  string
		typ   string
		hello proto.HelloData
		code  string
	}{
		{name: "protocol mismatch", typ: proto.InboundTypeHello, hello: proto.HelloData{Token: aliceToken, Protocol: proto.ProtocolVersion + 1}, code: proto.ErrCodeProtocolMismatch},
		{name: "bad token", typ: proto.InboundTypeHello, hello: proto.HelloData{Token: "nope"}, code: proto.ErrCodeUnauthorized},
		{name: "not hello", typ: proto.InboundTypeJoinProject, hello: proto.HelloData{Token: aliceToken}, code: proto.ErrCodeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			conn := env.dial(t, ctx, "")
			send(t, ctx, conn, tt.typ, tt.hello)

			out := readUntil(t, ctx, conn, isError)
			require.Equal(t, tt.code, out.Error.Code)

			// The server closes the socket after the error.
			var next testOutbound
			err := wsjson.Read(ctx, conn, &next)
			require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
		})
	}
}

func TestWebSocketRejectsBadTokenAtUpgrade(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, env.wsURL()+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketNonMemberCannotJoin(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.newUser(t, "Alice")
	_, malloryToken := env.newUser(t, "Mallory")
	project := env.newProject(t, alice)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, malloryToken)
	send(t, ctx, conn, proto.InboundTypeJoinProject, proto.JoinProjectData{ProjectID: project.ID, RequestID: "j1"})

	out := readUntil(t, ctx, conn, isError)
	require.Equal(t, core.ErrCodeUnauthorized, out.Error.Code)
	require.Equal(t, "j1", out.RequestID)

	online, err := env.hub.Presence(ctx, project.ID)
	require.NoError(t, err)
	require.Empty(t, online)
}

func TestWebSocketInvalidFramesKeepConnection(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.newUser(t, "Alice")
	project := env.newProject(t, alice)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, aliceToken)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	out := readUntil(t, ctx, conn, isError)
	require.Equal(t, proto.ErrCodeInvalidMessage, out.Error.Code)

	send(t, ctx, conn, "dance", struct{}{})
	out = readUntil(t, ctx, conn, isError)
	require.Equal(t, proto.ErrCodeInvalidMessage, out.Error.Code)

	send(t, ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{Content: "early"})
	out = readUntil(t, ctx, conn, isError)
	require.Equal(t, core.ErrCodeNotInRoom, out.Error.Code)

	send(t, ctx, conn, proto.InboundTypeJoinProject, proto.JoinProjectData{ProjectID: project.ID})
	readUntil(t, ctx, conn, presenceEquals(alice.ID))
}
