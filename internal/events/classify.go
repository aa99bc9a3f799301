package events

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/danhigham/vkplay/internal/domain"
)

type decodeFunc func(code int, r Record) (Event, error)

var decoders = map[int]decodeFunc{
	CodeMessageNew:           decodeMessage,
	CodeMessageEdit:          decodeMessage,
	CodeReadIncoming:         decodeRead,
	CodeReadOutgoing:         decodeRead,
	CodeFriendOnline:         decodeOnline,
	CodeFriendOffline:        decodeOnline,
	CodeMajorID:              decodeMajor,
	CodeMinorID:              decodeMinor,
	CodeTypingDialog:         decodeTyping,
	CodeTypingChat:           decodeTyping,
	CodeNotificationSettings: decodeNotificationSettings,
}

// Known reports whether code has an entry in the lookup table.
func Known(code int) bool {
	_, ok := decoders[code]
	return ok
}

// Classify converts a record into exactly one Event. It never fails: codes
// outside the table yield Unrecognized and shape mismatches yield Malformed.
func Classify(r Record) Event {
	code, ok := r.Code()
	if !ok {
		return Malformed{Err: errors.New("missing type code")}
	}
	decode, ok := decoders[code]
	if !ok {
		return Unrecognized{TypeCode: code}
	}
	ev, err := decode(code, r)
	if err != nil {
		return Malformed{TypeCode: code, Err: err}
	}
	return ev
}

func minLen(r Record, n int) error {
	if len(r) < n {
		return errors.Wrapf(ErrShortRecord, "need %d fields, got %d", n, len(r))
	}
	return nil
}

// decodeMessage accepts three layouts after the text field:
//
//	[code, id, flags, peer, ts, text, random_id]
//	[code, id, flags, peer, ts, text, attachments, random_id]
//	[code, id, flags, peer, ts, text, extra, attachments, random_id, ...]
//
// Numeric fields newer protocol versions append after random_id are ignored.
func decodeMessage(code int, r Record) (Event, error) {
	if err := minLen(r, 7); err != nil {
		return nil, err
	}
	ev := MessageEvent{Kind: MessageReceive}
	if code == CodeMessageEdit {
		ev.Kind = MessageEdit
	}
	var err error
	if ev.MessageID, err = r.Int(1); err != nil {
		return nil, err
	}
	if ev.Flags, err = r.Int(2); err != nil {
		return nil, err
	}
	if ev.PeerID, err = r.Int(3); err != nil {
		return nil, err
	}
	if ev.Timestamp, err = r.Int(4); err != nil {
		return nil, err
	}
	if ev.Text, err = r.Str(5); err != nil {
		return nil, err
	}

	randomIdx := 6
	switch {
	case len(r) == 7:
	case len(r) == 8:
		if ev.Attachments, err = r.Obj(6); err != nil {
			return nil, err
		}
		randomIdx = 7
	default:
		if ev.Extra, err = r.Obj(6); err != nil {
			return nil, err
		}
		if ev.Attachments, err = r.Obj(7); err != nil {
			return nil, err
		}
		randomIdx = 8
		for i := 9; i < len(r); i++ {
			if r.Type(i) != jx.Number {
				return nil, errors.Wrapf(ErrFieldType, "trailing field %d", i)
			}
		}
	}
	if ev.RandomID, err = r.Int(randomIdx); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeRead(code int, r Record) (Event, error) {
	if err := minLen(r, 3); err != nil {
		return nil, err
	}
	peer, err := r.Int(1)
	if err != nil {
		return nil, err
	}
	msg, err := r.Int(2)
	if err != nil {
		return nil, err
	}
	return ReadStatusEvent{EventType: code, PeerID: peer, MessageID: msg}, nil
}

var platforms = map[int]string{
	1: "mobile",
	2: "iphone",
	3: "ipad",
	4: "android",
	5: "wphone",
	6: "windows",
	7: "web",
}

// PlatformName maps a device number to its platform label.
func PlatformName(device int) string {
	if p, ok := platforms[device]; ok {
		return p
	}
	return "unknown"
}

// decodeOnline reads [code, -user_id, extra, timestamp]. The low byte of
// extra is the device number for 8 and the offline reason for 9.
func decodeOnline(code int, r Record) (Event, error) {
	if err := minLen(r, 4); err != nil {
		return nil, err
	}
	user, err := r.Int(1)
	if err != nil {
		return nil, err
	}
	extra, err := r.Int(2)
	if err != nil {
		return nil, err
	}
	ts, err := r.Int(3)
	if err != nil {
		return nil, err
	}
	if user < 0 {
		user = -user
	}
	device := int(extra & 0xFF)
	ev := OnlineStatusEvent{
		IsOnline:     code == CodeFriendOnline,
		PeerID:       user,
		DeviceNumber: device,
		Timestamp:    ts,
		Platform:     PlatformName(device),
	}
	return ev, nil
}

func decodeTyping(code int, r Record) (Event, error) {
	if err := minLen(r, 3); err != nil {
		return nil, err
	}
	user, err := r.Int(1)
	if err != nil {
		return nil, err
	}
	third, err := r.Int(2)
	if err != nil {
		return nil, err
	}
	ev := TypingEvent{PeerID: user, UserID: user, IsTyping: true}
	if code == CodeTypingChat {
		ev.PeerID = domain.ChatPeerOffset + third
		ev.InChat = true
	}
	return ev, nil
}

func decodeMajor(_ int, r Record) (Event, error) {
	peer, id, err := pair(r)
	if err != nil {
		return nil, err
	}
	return MajorOrderEvent{PeerID: peer, MajorID: id}, nil
}

func decodeMinor(_ int, r Record) (Event, error) {
	peer, id, err := pair(r)
	if err != nil {
		return nil, err
	}
	return MinorOrderEvent{PeerID: peer, MinorID: id}, nil
}

func pair(r Record) (int64, int64, error) {
	if err := minLen(r, 3); err != nil {
		return 0, 0, err
	}
	a, err := r.Int(1)
	if err != nil {
		return 0, 0, err
	}
	b, err := r.Int(2)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// decodeNotificationSettings reads [114, {peer_id, sound, disabled_until}].
func decodeNotificationSettings(_ int, r Record) (Event, error) {
	if err := minLen(r, 2); err != nil {
		return nil, err
	}
	if r.Type(1) != jx.Object {
		return nil, errors.Wrapf(ErrFieldType, "field 1: want %s, got %s", jx.Object, r.Type(1))
	}
	var (
		ev      NotificationSettingsEvent
		hasPeer bool
	)
	err := jx.DecodeBytes(r[1]).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "peer_id":
			v, err := d.Int64()
			if err != nil {
				return err
			}
			ev.PeerID = v
			hasPeer = true
		case "disabled_until":
			v, err := d.Int64()
			if err != nil {
				return err
			}
			ev.DisabledUntil = v
		case "sound":
			v, err := d.Int64()
			if err != nil {
				return err
			}
			ev.Sound = v != 0
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(ErrFieldType, "field 1: %v", err)
	}
	if !hasPeer {
		return nil, errors.New("notification settings without peer_id")
	}
	ev.Muted = ev.DisabledUntil != 0
	return ev, nil
}
