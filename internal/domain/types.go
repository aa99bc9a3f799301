package domain

import (
	"fmt"
	"time"
)

// ChatPeerOffset is added to a chat ID to form its peer ID.
const ChatPeerOffset = 2000000000

// Conversation is the per-peer summary kept by the state store.
type Conversation struct {
	PeerID      int64
	UnreadCount int
	LastMessage string
	LastTime    time.Time
	MajorID     int64
	MinorID     int64
	Typing      bool
	Online      bool
	Platform    string
	MutedUntil  int64 // -1 means muted forever
}

type Message struct {
	ID        int64
	PeerID    int64
	Text      string
	Flags     int64
	RandomID  int64
	Timestamp time.Time
	Edited    bool
	Out       bool // true if sent by us
}

// AudioItem describes one playable track.
type AudioItem struct {
	OwnerID    int64
	AudioID    int64
	URL        string
	Title      string
	Artist     string
	Album      string
	ArtworkURL string
	Duration   time.Duration
	CachedPath string // local file when the track has been downloaded
}

// Key identifies the track across queue and library snapshots.
func (a AudioItem) Key() string {
	return fmt.Sprintf("%d_%d", a.OwnerID, a.AudioID)
}

// Source returns the location the engine should open.
func (a AudioItem) Source() string {
	if a.CachedPath != "" {
		return a.CachedPath
	}
	return a.URL
}

type PlaybackState int

const (
	PlaybackEmpty PlaybackState = iota
	PlaybackStopped
	PlaybackPlaying
	PlaybackPaused
)

func (s PlaybackState) String() string {
	switch s {
	case PlaybackEmpty:
		return "empty"
	case PlaybackStopped:
		return "stopped"
	case PlaybackPlaying:
		return "playing"
	case PlaybackPaused:
		return "paused"
	default:
		return "unknown"
	}
}
