// Package events turns raw long-poll records into typed events and routes
// each one to the channel its subscribers listen on.
package events

// Channel names a stream of events on the notification bus.
type Channel string

const (
	ChannelMessagesReceived     Channel = "messagesReceived"
	ChannelEditMessage          Channel = "editMessage"
	ChannelReadMessage          Channel = "readMessage"
	ChannelChangeOnline         Channel = "changeOnline"
	ChannelTyping               Channel = "typing"
	ChannelMajorIDChanged       Channel = "majorIdChanged"
	ChannelMinorIDChanged       Channel = "minorIdChanged"
	ChannelNotificationSettings Channel = "notificationSettingsChanged"
)

// Channels lists every channel the dispatcher can publish to.
var Channels = []Channel{
	ChannelMessagesReceived,
	ChannelEditMessage,
	ChannelReadMessage,
	ChannelChangeOnline,
	ChannelTyping,
	ChannelMajorIDChanged,
	ChannelMinorIDChanged,
	ChannelNotificationSettings,
}

// Long-poll type codes.
const (
	CodeMessageNew           = 4
	CodeMessageEdit          = 5
	CodeReadIncoming         = 6
	CodeReadOutgoing         = 7
	CodeFriendOnline         = 8
	CodeFriendOffline        = 9
	CodeMajorID              = 20
	CodeMinorID              = 21
	CodeTypingDialog         = 61
	CodeTypingChat           = 62
	CodeNotificationSettings = 114
)

// Event is a decoded long-poll update. Events that must not be dispatched
// report an empty channel.
type Event interface {
	Channel() Channel
	Code() int
	Peer() int64
}

type MessageKind int

const (
	MessageReceive MessageKind = iota
	MessageEdit
)

func (k MessageKind) String() string {
	if k == MessageEdit {
		return "edit"
	}
	return "receive"
}

// Message flag bits.
const (
	FlagUnread = 1 << 0
	FlagOutbox = 1 << 1
)

type MessageEvent struct {
	Kind        MessageKind
	MessageID   int64
	Flags       int64
	PeerID      int64
	Timestamp   int64
	Text        string
	Extra       map[string]string // title/from block, nil when absent
	Attachments map[string]string // nil when absent
	RandomID    int64
}

func (e MessageEvent) Channel() Channel {
	if e.Kind == MessageEdit {
		return ChannelEditMessage
	}
	return ChannelMessagesReceived
}

func (e MessageEvent) Code() int {
	if e.Kind == MessageEdit {
		return CodeMessageEdit
	}
	return CodeMessageNew
}

func (e MessageEvent) Peer() int64 { return e.PeerID }

// Outgoing reports whether the message was sent by the current user.
func (e MessageEvent) Outgoing() bool { return e.Flags&FlagOutbox != 0 }

type OnlineStatusEvent struct {
	IsOnline     bool
	PeerID       int64
	DeviceNumber int
	Timestamp    int64
	Platform     string
}

func (e OnlineStatusEvent) Channel() Channel { return ChannelChangeOnline }

func (e OnlineStatusEvent) Code() int {
	if e.IsOnline {
		return CodeFriendOnline
	}
	return CodeFriendOffline
}

func (e OnlineStatusEvent) Peer() int64 { return e.PeerID }

type ReadStatusEvent struct {
	EventType int // CodeReadIncoming or CodeReadOutgoing
	PeerID    int64
	MessageID int64
}

func (e ReadStatusEvent) Channel() Channel { return ChannelReadMessage }
func (e ReadStatusEvent) Code() int        { return e.EventType }
func (e ReadStatusEvent) Peer() int64      { return e.PeerID }

// Incoming reports whether the read marker applies to messages we received.
func (e ReadStatusEvent) Incoming() bool { return e.EventType == CodeReadIncoming }

type TypingEvent struct {
	PeerID   int64
	UserID   int64
	IsTyping bool
	InChat   bool
}

func (e TypingEvent) Channel() Channel { return ChannelTyping }

func (e TypingEvent) Code() int {
	if e.InChat {
		return CodeTypingChat
	}
	return CodeTypingDialog
}

func (e TypingEvent) Peer() int64 { return e.PeerID }

type NotificationSettingsEvent struct {
	PeerID        int64
	DisabledUntil int64 // -1 means forever
	Muted         bool
	Sound         bool
}

func (e NotificationSettingsEvent) Channel() Channel { return ChannelNotificationSettings }
func (e NotificationSettingsEvent) Code() int        { return CodeNotificationSettings }
func (e NotificationSettingsEvent) Peer() int64      { return e.PeerID }

type MajorOrderEvent struct {
	PeerID  int64
	MajorID int64
}

func (e MajorOrderEvent) Channel() Channel { return ChannelMajorIDChanged }
func (e MajorOrderEvent) Code() int        { return CodeMajorID }
func (e MajorOrderEvent) Peer() int64      { return e.PeerID }

type MinorOrderEvent struct {
	PeerID  int64
	MinorID int64
}

func (e MinorOrderEvent) Channel() Channel { return ChannelMinorIDChanged }
func (e MinorOrderEvent) Code() int        { return CodeMinorID }
func (e MinorOrderEvent) Peer() int64      { return e.PeerID }

// Unrecognized is produced for type codes outside the lookup table.
type Unrecognized struct {
	TypeCode int
}

func (e Unrecognized) Channel() Channel { return "" }
func (e Unrecognized) Code() int        { return e.TypeCode }
func (e Unrecognized) Peer() int64      { return 0 }

// Malformed is produced when a record does not match the shape of its code.
type Malformed struct {
	TypeCode int
	Err      error
}

func (e Malformed) Channel() Channel { return "" }
func (e Malformed) Code() int        { return e.TypeCode }
func (e Malformed) Peer() int64      { return 0 }
