package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/vovakirdan/projectchat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT printed by the seed command")
	project := flag.String("project", "", "project id to join")
	text := flag.String("text", "hello from smoke test", "message content to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" || *project == "" {
		return fmt.Errorf("-token and -project are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	requestID := uuid.NewString()
	if err := send(proto.InboundTypeHello, proto.HelloData{Token: *token, Protocol: proto.ProtocolVersion}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeJoinProject, proto.JoinProjectData{ProjectID: *project}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeSendMessage, proto.SendMessageData{ProjectID: *project, Content: *text, RequestID: requestID}); err != nil {
		return err
	}

	var gotMessage, gotAck bool
	for !gotMessage || !gotAck {
		var outbound struct {
			Type      string          `json:"type"`
			Event     string          `json:"event"`
			RequestID string          `json:"requestId"`
			Data      json.RawMessage `json:"data"`
			Error     *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		if outbound.Error != nil {
			return fmt.Errorf("server error %s: %s", outbound.Error.Code, outbound.Error.Msg)
		}

		switch outbound.Event {
		case proto.EventUpdateOnlineUsers:
			var online []string
			if err := json.Unmarshal(outbound.Data, &online); err == nil {
				fmt.Printf("Online: %v\n", online)
			}
		case proto.EventReceiveMessage:
			var msg proto.ChatMessage
			if err := json.Unmarshal(outbound.Data, &msg); err != nil {
				fmt.Printf("Raw data: %s\n", string(outbound.Data))
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("Message: id=%s author=%s content=%q at=%s\n", msg.ID, msg.Author.Name, msg.Content, msg.CreatedAt.Format(time.RFC3339))
			gotMessage = true
		case proto.EventMessageAck:
			if outbound.RequestID == requestID {
				fmt.Println("Ack received")
				gotAck = true
			}
		}
	}
	return nil
}
