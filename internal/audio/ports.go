// Package audio owns the playback queue and drives a playback engine.
package audio

import (
	"context"
	"time"

	"github.com/danhigham/vkplay/internal/domain"
)

// Property selects which engine state an observer is notified about.
type Property int

const (
	PropertyStatus Property = iota
	PropertyTimeControl
	PropertyDuration
	PropertyElapsed
	PropertyLoadedRange
)

var observedProperties = []Property{
	PropertyStatus,
	PropertyTimeControl,
	PropertyDuration,
	PropertyElapsed,
	PropertyLoadedRange,
}

func (p Property) String() string {
	switch p {
	case PropertyStatus:
		return "status"
	case PropertyTimeControl:
		return "time_control"
	case PropertyDuration:
		return "duration"
	case PropertyElapsed:
		return "elapsed"
	case PropertyLoadedRange:
		return "loaded_range"
	default:
		return "unknown"
	}
}

// ItemStatus is the engine's view of the loaded item.
type ItemStatus int

const (
	StatusUnknown ItemStatus = iota
	StatusReady
	StatusFailed
	StatusEnded
)

type TimeControl int

const (
	TimeControlPaused TimeControl = iota
	TimeControlWaiting
	TimeControlPlaying
)

// Observation is one property change reported by an engine. ItemKey and
// Session name the item and the Play call it belongs to, so late reports
// for a replaced or restarted item can be told apart.
type Observation struct {
	Property    Property
	ItemKey     string
	Session     uint64
	Status      ItemStatus
	TimeControl TimeControl
	Duration    time.Duration
	Elapsed     time.Duration
	Loaded      time.Duration
	Err         error
}

// ObserverToken identifies one engine observer registration.
type ObserverToken string

// Engine plays one item at a time. Every observation about a Play call
// carries its session. Implementations must invoke observers
// asynchronously and never from inside an Engine method call.
type Engine interface {
	Play(item domain.AudioItem, session uint64) error
	Pause()
	Resume()
	Stop()
	Seek(pos time.Duration) error
	Observe(p Property, fn func(Observation)) ObserverToken
	Unobserve(tok ObserverToken)
}

// NowPlaying is the metadata pushed to the media-info surface.
type NowPlaying struct {
	Key      string
	Title    string
	Artist   string
	Album    string
	Duration time.Duration
	Elapsed  time.Duration
	Rate     float64
}

// Publisher is the now-playing-info surface.
type Publisher interface {
	Publish(info NowPlaying)
	PublishArtwork(key string, image []byte, placeholder bool)
	Clear()
}

// ArtworkFetcher loads cover images.
type ArtworkFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	Placeholder() []byte
}

// Library is the durable store of saved items.
type Library interface {
	Snapshot(ctx context.Context) ([]domain.AudioItem, error)
	OnChange(fn func([]domain.AudioItem)) (cancel func())
}
