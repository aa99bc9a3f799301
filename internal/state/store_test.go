package state_test

import (
	"testing"
	"time"

	"github.com/danhigham/vkplay/internal/bus"
	"github.com/danhigham/vkplay/internal/events"
	"github.com/danhigham/vkplay/internal/state"
)

func TestStore_OnNewMessage(t *testing.T) {
	s := state.New(nil) // nil drawFunc for testing

	s.OnNewMessage(events.MessageEvent{
		MessageID: 1,
		PeerID:    100,
		Text:      "Hello",
		Timestamp: time.Now().Unix(),
	})

	msgs := s.Messages(100)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Text != "Hello" {
		t.Errorf("Text = %q, want %q", msgs[0].Text, "Hello")
	}
	convs := s.Conversations()
	if len(convs) != 1 || convs[0].UnreadCount != 1 {
		t.Errorf("conversations = %+v, want one with unread=1", convs)
	}
}

func TestStore_OrderByMajorMinorThenTime(t *testing.T) {
	s := state.New(nil)
	now := time.Now().Unix()

	s.OnNewMessage(events.MessageEvent{MessageID: 1, PeerID: 1, Text: "old", Timestamp: now - 3600})
	s.OnNewMessage(events.MessageEvent{MessageID: 2, PeerID: 2, Text: "new", Timestamp: now})
	s.OnNewMessage(events.MessageEvent{MessageID: 3, PeerID: 3, Text: "mid", Timestamp: now - 60})

	got := s.Conversations()
	if got[0].PeerID != 2 || got[1].PeerID != 3 || got[2].PeerID != 1 {
		t.Errorf("order = %d,%d,%d, want 2,3,1", got[0].PeerID, got[1].PeerID, got[2].PeerID)
	}

	major := int64(10)
	s.OnOrder(1, &major, nil)
	minor := int64(5)
	s.OnOrder(3, nil, &minor)

	got = s.Conversations()
	if got[0].PeerID != 1 || got[1].PeerID != 3 || got[2].PeerID != 2 {
		t.Errorf("order = %d,%d,%d, want 1,3,2", got[0].PeerID, got[1].PeerID, got[2].PeerID)
	}
}

func TestStore_ActivePeer(t *testing.T) {
	s := state.New(nil)

	s.SetActivePeer(42)
	if s.ActivePeer() != 42 {
		t.Errorf("ActivePeer = %d, want 42", s.ActivePeer())
	}

	s.OnNewMessage(events.MessageEvent{MessageID: 1, PeerID: 42, Text: "seen"})
	if c := s.Conversations()[0]; c.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d for active peer, want 0", c.UnreadCount)
	}
}

func TestStore_EditAndRead(t *testing.T) {
	s := state.New(nil)

	for i := int64(1); i <= 3; i++ {
		s.OnNewMessage(events.MessageEvent{MessageID: i, PeerID: 7, Text: "msg"})
	}
	s.OnMessageEdit(events.MessageEvent{Kind: events.MessageEdit, MessageID: 3, PeerID: 7, Text: "fixed"})

	msgs := s.Messages(7)
	if msgs[2].Text != "fixed" || !msgs[2].Edited {
		t.Errorf("edited message = %+v", msgs[2])
	}
	if s.Conversations()[0].LastMessage != "fixed" {
		t.Errorf("LastMessage = %q, want fixed", s.Conversations()[0].LastMessage)
	}

	s.OnMessageRead(events.ReadStatusEvent{EventType: events.CodeReadIncoming, PeerID: 7, MessageID: 2})
	if n := s.Conversations()[0].UnreadCount; n != 1 {
		t.Errorf("UnreadCount = %d, want 1", n)
	}
}

func TestStore_TypingExpires(t *testing.T) {
	s := state.New(nil)
	now := time.Unix(1000, 0)
	s.SetClock(func() time.Time { return now })

	s.OnTyping(events.TypingEvent{PeerID: 5, IsTyping: true})
	if !s.Conversations()[0].Typing {
		t.Error("Typing = false right after event")
	}

	now = now.Add(7 * time.Second)
	if s.Conversations()[0].Typing {
		t.Error("Typing = true after expiry")
	}
}

func TestStore_AttachDetach(t *testing.T) {
	b := bus.New(nil)
	draws := 0
	s := state.New(func() { draws++ })
	s.Attach(b)

	b.Publish(events.OnlineStatusEvent{IsOnline: true, PeerID: 9, Platform: "web"})
	b.Publish(events.NotificationSettingsEvent{PeerID: 9, DisabledUntil: -1, Muted: true})

	c := s.Conversations()[0]
	if !c.Online || c.Platform != "web" || c.MutedUntil != -1 {
		t.Errorf("conversation = %+v", c)
	}

	s.Detach()
	s.Detach()
	b.Publish(events.OnlineStatusEvent{IsOnline: false, PeerID: 9})
	if !s.Conversations()[0].Online {
		t.Error("store still receives events after Detach")
	}
	if draws != 2 {
		t.Errorf("draws = %d, want 2", draws)
	}
	for _, ch := range events.Channels {
		if n := b.Subscribers(ch); n != 0 {
			t.Errorf("%s still has %d subscribers", ch, n)
		}
	}
}

func TestStore_MessageLimit(t *testing.T) {
	s := state.New(nil)

	for i := 0; i < 600; i++ {
		s.OnNewMessage(events.MessageEvent{MessageID: int64(i), PeerID: 1, Text: "msg"})
	}

	msgs := s.Messages(1)
	if len(msgs) > 500 {
		t.Errorf("messages = %d, want <= 500", len(msgs))
	}
}
