package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/projectchat-server/internal/auth"
	"github.com/vovakirdan/projectchat-server/internal/config"
	"github.com/vovakirdan/projectchat-server/internal/core"
	"github.com/vovakirdan/projectchat-server/internal/observability"
	"github.com/vovakirdan/projectchat-server/internal/proto"
	"github.com/vovakirdan/projectchat-server/internal/store"
)

const defaultHandshakeTimeout = 10 * time.Second

// errHandshake marks a connection closed during the hello exchange.
var errHandshake = errors.New("handshake failed")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	cfg  *config.Config
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, auth: authService, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	// A token presented at upgrade is checked before accepting the socket.
	var user *store.User
	if token := bearerToken(r); token != "" {
		u, err := h.auth.Authenticate(ctx, token)
		if err != nil {
			h.log.Debug().Err(err).Msg("ws upgrade rejected")
			stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
			return
		}
		user = u
	}

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	// Room for the JSON envelope and escaping around the content.
	conn.SetReadLimit(int64(2*h.cfg.Chat.MaxMessageBytes + 1024))

	observability.IncWSActive()
	defer observability.DecWSActive()

	if user == nil {
		user, err = h.handshake(ctx, conn)
		if err != nil {
			return
		}
	}

	client := core.NewClient(uuid.NewString(), user.ID, h.cfg.Chat.ClientBuffer)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	h.log.Info().Str("client_id", client.ID).Str("user_id", user.ID).Msg("ws client connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	h.log.Info().Str("client_id", client.ID).Str("user_id", user.ID).Msg("ws client disconnected")
	conn.Close(status, reason)
}

func (h *WSHandler) acceptOptions() *websocket.AcceptOptions {
	origins := h.cfg.Chat.AllowedOrigins
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: origins}
}

// handshake waits for a hello frame carrying a token and a supported protocol.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (*store.User, error) {
	timeout := h.cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var inbound proto.Inbound
	if err := wsjson.Read(hctx, conn, &inbound); err != nil {
		h.log.Debug().Err(err).Msg("ws handshake read failed")
		conn.Close(websocket.StatusPolicyViolation, "hello expected")
		return nil, errHandshake
	}
	observability.IncWSEvent("in", frameType(inbound.Type))

	if inbound.Type != proto.InboundTypeHello {
		return nil, h.failHandshake(hctx, conn, proto.ErrCodeUnauthorized, "hello with token expected")
	}

	var hello proto.HelloData
	if err := json.Unmarshal(inbound.Data, &hello); err != nil {
		return nil, h.failHandshake(hctx, conn, proto.ErrCodeInvalidMessage, "malformed hello data")
	}
	if perr := checkProtocol(hello.Protocol); perr != nil {
		return nil, h.failHandshake(hctx, conn, perr.Code, perr.Msg)
	}

	user, err := h.auth.Authenticate(hctx, hello.Token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws hello rejected")
		return nil, h.failHandshake(hctx, conn, proto.ErrCodeUnauthorized, "invalid token")
	}
	return user, nil
}

func (h *WSHandler) failHandshake(ctx context.Context, conn *websocket.Conn, code, msg string) error {
	_ = h.write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	})
	conn.Close(websocket.StatusPolicyViolation, msg)
	return errHandshake
}

func checkProtocol(version int) *proto.Error {
	if version != 0 && version != proto.ProtocolVersion {
		return &proto.Error{Code: proto.ErrCodeProtocolMismatch, Msg: "unsupported protocol version"}
	}
	return nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("read ws inbound")
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			if writeErr := h.write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: invalidMessage("frame is not valid JSON"),
			}); writeErr != nil {
				return writeErr
			}
			continue
		}
		observability.IncWSEvent("in", frameType(inbound.Type))

		var protoErr *proto.Error
		var cmd *core.Command
		if inbound.Type == proto.InboundTypeHello {
			// Already authenticated; a repeated hello only renegotiates the protocol.
			var hello proto.HelloData
			if err := json.Unmarshal(inbound.Data, &hello); err != nil {
				protoErr = invalidMessage("malformed hello data")
			} else {
				protoErr = checkProtocol(hello.Protocol)
			}
		} else {
			cmd, protoErr = inboundToCommand(inbound)
		}

		if protoErr != nil {
			if writeErr := h.write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}
		if cmd == nil {
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := h.write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, out proto.Outbound) error {
	typ := out.Type
	if out.Event != "" {
		typ = out.Event
	}
	observability.IncWSEvent("out", typ)
	return wsjson.Write(ctx, conn, out)
}

// frameType bounds the metric label to the known inbound types.
func frameType(t string) string {
	switch t {
	case proto.InboundTypeHello, proto.InboundTypeJoinProject, proto.InboundTypeLeaveProject, proto.InboundTypeSendMessage:
		return t
	default:
		return "unknown"
	}
}
