package bus_test

import (
	"testing"

	"github.com/danhigham/vkplay/internal/bus"
	"github.com/danhigham/vkplay/internal/events"
)

type mirrorFunc func(ev events.Event)

func (f mirrorFunc) Mirror(ev events.Event) { f(ev) }

func TestBus_ChannelsAreIsolated(t *testing.T) {
	b := bus.New(nil)

	var typing, messages int
	b.Subscribe(events.ChannelTyping, func(events.Event) { typing++ })
	b.Subscribe(events.ChannelMessagesReceived, func(events.Event) { messages++ })

	b.Publish(events.MessageEvent{PeerID: 1, Text: "hi"})

	if messages != 1 {
		t.Errorf("messages = %d, want 1", messages)
	}
	if typing != 0 {
		t.Errorf("typing = %d, want 0", typing)
	}
}

func TestBus_SubscriptionOrder(t *testing.T) {
	b := bus.New(nil)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		b.Subscribe(events.ChannelTyping, func(events.Event) { order = append(order, i) })
	}
	b.Publish(events.TypingEvent{PeerID: 1, IsTyping: true})

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("order = %v, want [0 1 2]", order)
	}
}

func TestBus_UnsubscribeIdempotent(t *testing.T) {
	b := bus.New(nil)

	calls := 0
	tok := b.Subscribe(events.ChannelReadMessage, func(events.Event) { calls++ })
	keep := b.Subscribe(events.ChannelReadMessage, func(events.Event) {})

	b.Unsubscribe(tok)
	b.Unsubscribe(tok)
	b.Unsubscribe("unknown")

	b.Publish(events.ReadStatusEvent{EventType: events.CodeReadIncoming, PeerID: 1})
	if calls != 0 {
		t.Errorf("calls = %d after unsubscribe, want 0", calls)
	}
	if n := b.Subscribers(events.ChannelReadMessage); n != 1 {
		t.Errorf("Subscribers = %d, want 1", n)
	}

	b.Unsubscribe(keep)
	if n := b.Subscribers(events.ChannelReadMessage); n != 0 {
		t.Errorf("Subscribers = %d, want 0", n)
	}
}

func TestBus_UnsubscribeDuringPublish(t *testing.T) {
	b := bus.New(nil)

	var tok bus.Token
	second := 0
	tok = b.Subscribe(events.ChannelTyping, func(events.Event) { b.Unsubscribe(tok) })
	b.Subscribe(events.ChannelTyping, func(events.Event) { second++ })

	b.Publish(events.TypingEvent{PeerID: 1})
	b.Publish(events.TypingEvent{PeerID: 1})

	if second != 2 {
		t.Errorf("second handler ran %d times, want 2", second)
	}
}

func TestBus_DropsChannelless(t *testing.T) {
	b := bus.New(nil)

	mirrored := 0
	b.AddMirror(mirrorFunc(func(events.Event) { mirrored++ }))

	b.Publish(events.Unrecognized{TypeCode: 3})
	b.Publish(events.MajorOrderEvent{PeerID: 1, MajorID: 2})

	if mirrored != 1 {
		t.Errorf("mirrored = %d, want 1", mirrored)
	}
}

func TestBus_PanickingHandler(t *testing.T) {
	b := bus.New(nil)

	after := 0
	b.Subscribe(events.ChannelTyping, func(events.Event) { panic("boom") })
	b.Subscribe(events.ChannelTyping, func(events.Event) { after++ })

	b.Publish(events.TypingEvent{PeerID: 1})
	if after != 1 {
		t.Errorf("handler after panic ran %d times, want 1", after)
	}
}
