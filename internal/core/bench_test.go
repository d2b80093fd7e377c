package core

import (
	"context"
	"fmt"
	"testing"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(newMemoryStore())
	go hub.Run(ctx)

	sender := NewClient("sender", "sender", 0)
	hub.RegisterClient(sender)
	sender.Commands <- &Command{Kind: CommandJoinProject, ProjectID: "bench"}
	go func() {
		for range sender.Events {
		}
	}()

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		c := NewClient(fmt.Sprintf("c%d", i), fmt.Sprintf("user-%d", i), 0)
		hub.RegisterClient(c)
		c.Commands <- &Command{Kind: CommandJoinProject, ProjectID: "bench"}
		clients = append(clients, c)
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}

	for {
		online, err := hub.Presence(ctx, "bench")
		if err != nil {
			b.Fatal(err)
		}
		if len(online) == recipients+1 {
			break
		}
	}
	drain(target.Events)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Commands <- &Command{
			Kind:      CommandSendMessage,
			ProjectID: "bench",
			Content:   "payload",
		}
		for ev := range target.Events {
			if ev.Kind == EventReceiveMessage {
				break
			}
		}
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
