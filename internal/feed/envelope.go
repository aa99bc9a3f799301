// Package feed streams bus events to local observers over WebSocket.
package feed

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/danhigham/vkplay/internal/events"
)

// Envelope is the wire form of a bus event for outer subscribers.
type Envelope struct {
	Type   string         `json:"type"`
	PeerID int64          `json:"peer_id,omitempty"`
	TS     int64          `json:"ts"`
	Data   map[string]any `json:"data"`
}

// NewEnvelope wraps ev, stamped with now.
func NewEnvelope(ev events.Event, now time.Time) Envelope {
	return Envelope{
		Type:   string(ev.Channel()),
		PeerID: ev.Peer(),
		TS:     now.Unix(),
		Data:   eventData(ev),
	}
}

// Marshal encodes ev as an envelope.
func Marshal(ev events.Event, now time.Time) ([]byte, error) {
	return json.Marshal(NewEnvelope(ev, now))
}

func eventData(ev events.Event) map[string]any {
	switch e := ev.(type) {
	case events.MessageEvent:
		d := map[string]any{
			"message_id": e.MessageID,
			"flags":      e.Flags,
			"timestamp":  e.Timestamp,
			"text":       e.Text,
			"random_id":  e.RandomID,
			"outgoing":   e.Outgoing(),
		}
		if e.Extra != nil {
			d["extra"] = e.Extra
		}
		if e.Attachments != nil {
			d["attachments"] = e.Attachments
		}
		return d
	case events.ReadStatusEvent:
		return map[string]any{"message_id": e.MessageID, "incoming": e.Incoming()}
	case events.OnlineStatusEvent:
		return map[string]any{
			"online":    e.IsOnline,
			"device":    e.DeviceNumber,
			"platform":  e.Platform,
			"timestamp": e.Timestamp,
		}
	case events.TypingEvent:
		return map[string]any{"user_id": e.UserID, "typing": e.IsTyping, "in_chat": e.InChat}
	case events.NotificationSettingsEvent:
		return map[string]any{"disabled_until": e.DisabledUntil, "muted": e.Muted, "sound": e.Sound}
	case events.MajorOrderEvent:
		return map[string]any{"major_id": e.MajorID}
	case events.MinorOrderEvent:
		return map[string]any{"minor_id": e.MinorID}
	default:
		return map[string]any{"code": ev.Code()}
	}
}
