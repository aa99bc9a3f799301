package state

import (
	"sort"
	"sync"
	"time"

	"github.com/danhigham/vkplay/internal/bus"
	"github.com/danhigham/vkplay/internal/domain"
	"github.com/danhigham/vkplay/internal/events"
)

const (
	maxMessages = 500
	typingTTL   = 6 * time.Second
)

// Store keeps per-conversation state built from bus events.
type Store struct {
	mu           sync.RWMutex
	convs        map[int64]*domain.Conversation
	messages     map[int64][]domain.Message
	typingUntil  map[int64]time.Time
	activePeer   int64
	drawFunc     func()
	now          func() time.Time
	tokens       []bus.Token
	subscribedTo *bus.Bus
}

func New(drawFunc func()) *Store {
	return &Store{
		convs:       make(map[int64]*domain.Conversation),
		messages:    make(map[int64][]domain.Message),
		typingUntil: make(map[int64]time.Time),
		drawFunc:    drawFunc,
		now:         time.Now,
	}
}

func (s *Store) SetDrawFunc(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawFunc = f
}

// SetClock replaces the time source used for typing expiry.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) draw() {
	if s.drawFunc != nil {
		s.drawFunc()
	}
}

// Attach subscribes the store to every channel of b.
func (s *Store) Attach(b *bus.Bus) {
	tokens := []bus.Token{
		b.Subscribe(events.ChannelMessagesReceived, s.handle),
		b.Subscribe(events.ChannelEditMessage, s.handle),
		b.Subscribe(events.ChannelReadMessage, s.handle),
		b.Subscribe(events.ChannelChangeOnline, s.handle),
		b.Subscribe(events.ChannelTyping, s.handle),
		b.Subscribe(events.ChannelMajorIDChanged, s.handle),
		b.Subscribe(events.ChannelMinorIDChanged, s.handle),
		b.Subscribe(events.ChannelNotificationSettings, s.handle),
	}
	s.mu.Lock()
	s.tokens = append(s.tokens, tokens...)
	s.subscribedTo = b
	s.mu.Unlock()
}

// Detach removes the subscriptions made by Attach. Safe to call twice.
func (s *Store) Detach() {
	s.mu.Lock()
	tokens, b := s.tokens, s.subscribedTo
	s.tokens, s.subscribedTo = nil, nil
	s.mu.Unlock()

	for _, t := range tokens {
		b.Unsubscribe(t)
	}
}

func (s *Store) handle(ev events.Event) {
	switch e := ev.(type) {
	case events.MessageEvent:
		if e.Kind == events.MessageEdit {
			s.OnMessageEdit(e)
		} else {
			s.OnNewMessage(e)
		}
	case events.ReadStatusEvent:
		s.OnMessageRead(e)
	case events.OnlineStatusEvent:
		s.OnUserStatus(e)
	case events.TypingEvent:
		s.OnTyping(e)
	case events.MajorOrderEvent:
		s.OnOrder(e.PeerID, &e.MajorID, nil)
	case events.MinorOrderEvent:
		s.OnOrder(e.PeerID, nil, &e.MinorID)
	case events.NotificationSettingsEvent:
		s.OnNotificationSettings(e)
	}
}

// conv returns the conversation for peer, creating it. Callers hold s.mu.
func (s *Store) conv(peer int64) *domain.Conversation {
	c, ok := s.convs[peer]
	if !ok {
		c = &domain.Conversation{PeerID: peer}
		s.convs[peer] = c
	}
	return c
}

func (s *Store) OnNewMessage(e events.MessageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := domain.Message{
		ID:        e.MessageID,
		PeerID:    e.PeerID,
		Text:      e.Text,
		Flags:     e.Flags,
		RandomID:  e.RandomID,
		Timestamp: time.Unix(e.Timestamp, 0),
		Out:       e.Outgoing(),
	}

	msgs := append(s.messages[e.PeerID], msg)
	if len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	s.messages[e.PeerID] = msgs

	c := s.conv(e.PeerID)
	if !msg.Out && e.PeerID != s.activePeer {
		c.UnreadCount++
	}
	c.LastMessage = msg.Text
	c.LastTime = msg.Timestamp
	// A message from the peer ends its typing indicator.
	if !msg.Out {
		delete(s.typingUntil, e.PeerID)
	}
	s.draw()
}

func (s *Store) OnMessageEdit(e events.MessageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[e.PeerID]
	for i := range msgs {
		if msgs[i].ID == e.MessageID {
			msgs[i].Text = e.Text
			msgs[i].Flags = e.Flags
			msgs[i].Edited = true
			if i == len(msgs)-1 {
				s.conv(e.PeerID).LastMessage = e.Text
			}
			break
		}
	}
	s.draw()
}

// OnMessageRead applies a read marker. Incoming markers recount unread
// messages from the cached history.
func (s *Store) OnMessageRead(e events.ReadStatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !e.Incoming() {
		return
	}
	unread := 0
	for _, m := range s.messages[e.PeerID] {
		if !m.Out && m.ID > e.MessageID {
			unread++
		}
	}
	s.conv(e.PeerID).UnreadCount = unread
	s.draw()
}

func (s *Store) OnUserStatus(e events.OnlineStatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conv(e.PeerID)
	c.Online = e.IsOnline
	if e.IsOnline {
		c.Platform = e.Platform
	} else {
		c.Platform = ""
	}
	s.draw()
}

func (s *Store) OnTyping(e events.TypingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conv(e.PeerID)
	if e.IsTyping {
		s.typingUntil[e.PeerID] = s.now().Add(typingTTL)
	} else {
		delete(s.typingUntil, e.PeerID)
	}
	s.draw()
}

func (s *Store) OnOrder(peer int64, major, minor *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conv(peer)
	if major != nil {
		c.MajorID = *major
	}
	if minor != nil {
		c.MinorID = *minor
	}
	s.draw()
}

func (s *Store) OnNotificationSettings(e events.NotificationSettingsEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conv(e.PeerID).MutedUntil = e.DisabledUntil
	s.draw()
}

// Conversations returns a snapshot ordered by major id, minor id and then
// last message time, newest first.
func (s *Store) Conversations() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]domain.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		cp := *c
		cp.Typing = now.Before(s.typingUntil[c.PeerID])
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MajorID != b.MajorID {
			return a.MajorID > b.MajorID
		}
		if a.MinorID != b.MinorID {
			return a.MinorID > b.MinorID
		}
		if !a.LastTime.Equal(b.LastTime) {
			return a.LastTime.After(b.LastTime)
		}
		return a.PeerID < b.PeerID
	})
	return out
}

func (s *Store) Messages(peer int64) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[peer]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

// SetActivePeer marks peer as open; its unread count resets.
func (s *Store) SetActivePeer(peer int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activePeer = peer
	if c, ok := s.convs[peer]; ok {
		c.UnreadCount = 0
	}
}

func (s *Store) ActivePeer() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activePeer
}
