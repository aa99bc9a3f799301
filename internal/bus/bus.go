// Package bus is the in-process notification bus. Each events.Channel has
// its own ordered subscriber list.
package bus

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danhigham/vkplay/internal/events"
)

// Handler receives events published on a channel.
type Handler func(ev events.Event)

// Mirror receives every published event after local handlers have run.
type Mirror interface {
	Mirror(ev events.Event)
}

// Token identifies one subscription.
type Token string

type subscription struct {
	token   Token
	handler Handler
}

// Bus routes events to the subscribers of their channel.
type Bus struct {
	mu      sync.RWMutex
	subs    map[events.Channel][]subscription
	index   map[Token]events.Channel
	mirrors []Mirror
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[events.Channel][]subscription),
		index:  make(map[Token]events.Channel),
		logger: logger,
	}
}

// Subscribe registers h on ch and returns the token needed to remove it.
func (b *Bus) Subscribe(ch events.Channel, h Handler) Token {
	tok := Token(uuid.NewString())

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = append(b.subs[ch], subscription{token: tok, handler: h})
	b.index[tok] = ch
	return tok
}

// Unsubscribe removes a subscription. Unknown or already removed tokens are ignored.
func (b *Bus) Unsubscribe(tok Token) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.index[tok]
	if !ok {
		return
	}
	delete(b.index, tok)

	subs := b.subs[ch]
	for i, s := range subs {
		if s.token == tok {
			// Copy so a Publish iterating the old slice is unaffected.
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[ch] = next
			break
		}
	}
	if len(b.subs[ch]) == 0 {
		delete(b.subs, ch)
	}
}

// AddMirror registers a sink that sees every published event.
func (b *Bus) AddMirror(m Mirror) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirrors = append(b.mirrors, m)
}

// Publish calls the handlers of ev's channel in subscription order, then the
// mirrors. Events without a channel are dropped.
func (b *Bus) Publish(ev events.Event) {
	ch := ev.Channel()
	if ch == "" {
		return
	}

	b.mu.RLock()
	subs := b.subs[ch]
	mirrors := b.mirrors
	b.mu.RUnlock()

	for _, s := range subs {
		b.call(ch, s.handler, ev)
	}
	for _, m := range mirrors {
		m.Mirror(ev)
	}
}

func (b *Bus) call(ch events.Channel, h Handler, ev events.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Subscriber panicked", zap.String("channel", string(ch)), zap.Any("panic", r))
		}
	}()
	h(ev)
}

// Subscribers returns the number of handlers on ch.
func (b *Bus) Subscribers(ch events.Channel) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[ch])
}
