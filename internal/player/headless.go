// Package player provides playback engines for the audio manager.
package player

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danhigham/vkplay/internal/audio"
	"github.com/danhigham/vkplay/internal/domain"
)

const (
	defaultTick    = 250 * time.Millisecond
	defaultBitrate = 128_000 // bits per second, used when an item has no duration
)

// ErrNoSource is returned by Play for items without a URL or cached file.
var ErrNoSource = errors.New("item has no source")

type HeadlessOptions struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
	// Tick is how often elapsed time advances and is reported.
	Tick time.Duration
	// Bitrate estimates the duration of items that do not carry one.
	Bitrate int64
}

// Headless is an Engine that streams items without decoding them. It reads
// the source to track the loaded range and advances a clock while playing,
// which is enough to drive the manager from a terminal or a server.
type Headless struct {
	client  *http.Client
	logger  *zap.Logger
	tick    time.Duration
	bitrate int64

	mu        sync.Mutex
	observers map[audio.ObserverToken]observer
	session   *session

	notes *notifier
	done  chan struct{}
}

type observer struct {
	prop audio.Property
	fn   func(audio.Observation)
}

type session struct {
	id     uint64
	item   domain.AudioItem
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	paused   bool
	elapsed  time.Duration
	duration time.Duration
}

func NewHeadless(opts HeadlessOptions) *Headless {
	h := &Headless{
		client:    opts.HTTPClient,
		logger:    opts.Logger,
		tick:      opts.Tick,
		bitrate:   opts.Bitrate,
		observers: make(map[audio.ObserverToken]observer),
		notes:     newNotifier(),
		done:      make(chan struct{}),
	}
	if h.client == nil {
		h.client = http.DefaultClient
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.tick <= 0 {
		h.tick = defaultTick
	}
	if h.bitrate <= 0 {
		h.bitrate = defaultBitrate
	}
	go h.deliver()
	return h
}

func (h *Headless) Play(item domain.AudioItem, id uint64) error {
	src := item.Source()
	if src == "" {
		return errors.Wrap(ErrNoSource, item.Key())
	}
	if path, ok := localPath(src); ok {
		if _, err := os.Stat(path); err != nil {
			return errors.Wrap(err, "stat source")
		}
	}

	h.mu.Lock()
	h.stopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{id: id, item: item, ctx: ctx, cancel: cancel, duration: item.Duration}
	h.session = s
	h.mu.Unlock()

	go h.run(s)
	return nil
}

func (h *Headless) Pause() {
	h.setPaused(true)
}

func (h *Headless) Resume() {
	h.setPaused(false)
}

func (h *Headless) setPaused(paused bool) {
	h.mu.Lock()
	s := h.session
	h.mu.Unlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	changed := s.paused != paused
	s.paused = paused
	s.mu.Unlock()
	if !changed {
		return
	}
	tc := audio.TimeControlPlaying
	if paused {
		tc = audio.TimeControlPaused
	}
	h.emit(s.note(audio.Observation{Property: audio.PropertyTimeControl, TimeControl: tc}))
}

func (h *Headless) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *Headless) stopLocked() {
	if h.session == nil {
		return
	}
	h.session.cancel()
	h.session = nil
}

func (h *Headless) Seek(pos time.Duration) error {
	h.mu.Lock()
	s := h.session
	h.mu.Unlock()
	if s == nil {
		return errors.New("nothing is playing")
	}

	s.mu.Lock()
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	s.elapsed = pos
	s.mu.Unlock()
	h.emit(s.note(audio.Observation{Property: audio.PropertyElapsed, Elapsed: pos}))
	return nil
}

func (h *Headless) Observe(p audio.Property, fn func(audio.Observation)) audio.ObserverToken {
	tok := audio.ObserverToken(uuid.NewString())
	h.mu.Lock()
	h.observers[tok] = observer{prop: p, fn: fn}
	h.mu.Unlock()
	return tok
}

func (h *Headless) Unobserve(tok audio.ObserverToken) {
	h.mu.Lock()
	delete(h.observers, tok)
	h.mu.Unlock()
}

// Close stops playback and waits for pending notifications to drain.
func (h *Headless) Close() {
	h.Stop()
	h.notes.close()
	<-h.done
}

// note stamps o with the item and Play call of s.
func (s *session) note(o audio.Observation) audio.Observation {
	o.ItemKey = s.item.Key()
	o.Session = s.id
	return o
}

func (h *Headless) emit(o audio.Observation) {
	h.notes.push(o)
}

func (h *Headless) deliver() {
	defer close(h.done)
	for {
		o, ok := h.notes.pop()
		if !ok {
			return
		}
		h.mu.Lock()
		var fns []func(audio.Observation)
		for _, obs := range h.observers {
			if obs.prop == o.Property {
				fns = append(fns, obs.fn)
			}
		}
		h.mu.Unlock()
		for _, fn := range fns {
			fn(o)
		}
	}
}

func (h *Headless) run(s *session) {
	log := h.logger.With(zap.String("item", s.item.Key()))

	body, size, err := h.open(s.ctx, s.item.Source())
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		log.Warn("Open source failed", zap.Error(err))
		h.emit(s.note(audio.Observation{Property: audio.PropertyStatus, Status: audio.StatusFailed, Err: err}))
		return
	}
	defer body.Close()

	s.mu.Lock()
	if s.duration <= 0 && size > 0 {
		s.duration = estimateDuration(size, h.bitrate)
	}
	duration := s.duration
	s.mu.Unlock()

	log.Debug("Playing", zap.Duration("duration", duration), zap.Int64("size", size))
	h.emit(s.note(audio.Observation{Property: audio.PropertyDuration, Duration: duration}))
	h.emit(s.note(audio.Observation{Property: audio.PropertyStatus, Status: audio.StatusReady}))
	h.emit(s.note(audio.Observation{Property: audio.PropertyTimeControl, TimeControl: audio.TimeControlPlaying}))

	drained := make(chan error, 1)
	go func() {
		drained <- h.drain(s, body, size, duration)
	}()

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	eof := false
	for {
		select {
		case <-s.ctx.Done():
			return
		case err := <-drained:
			drained = nil
			if err != nil && s.ctx.Err() == nil {
				log.Warn("Stream interrupted", zap.Error(err))
				h.emit(s.note(audio.Observation{Property: audio.PropertyStatus, Status: audio.StatusFailed, Err: err}))
				return
			}
			eof = true
		case <-ticker.C:
			s.mu.Lock()
			if s.paused {
				s.mu.Unlock()
				continue
			}
			s.elapsed += h.tick
			if s.duration > 0 && s.elapsed > s.duration {
				s.elapsed = s.duration
			}
			elapsed, duration := s.elapsed, s.duration
			s.mu.Unlock()

			h.emit(s.note(audio.Observation{Property: audio.PropertyElapsed, Elapsed: elapsed}))
			if (duration > 0 && elapsed >= duration) || (duration <= 0 && eof) {
				h.emit(s.note(audio.Observation{Property: audio.PropertyStatus, Status: audio.StatusEnded}))
				return
			}
		}
	}
}

// drain reads the source to the end, reporting the loaded range as it goes.
func (h *Headless) drain(s *session, body io.Reader, size int64, duration time.Duration) error {
	buf := make([]byte, 32*1024)
	var read int64
	for {
		n, err := body.Read(buf)
		read += int64(n)
		if n > 0 && size > 0 && duration > 0 {
			loaded := time.Duration(float64(duration) * float64(read) / float64(size))
			h.emit(s.note(audio.Observation{Property: audio.PropertyLoadedRange, Loaded: loaded}))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (h *Headless) open(ctx context.Context, src string) (io.ReadCloser, int64, error) {
	if path, ok := localPath(src); ok {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, errors.Wrap(err, "open file")
		}
		st, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, 0, errors.Wrap(err, "stat file")
		}
		return f, st.Size(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "create request")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "get stream")
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, 0, errors.Errorf("get stream: status %d", resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

// estimateDuration converts a byte size to play time at bitrate bits per
// second. It works in float64 so multi-gigabyte sources do not overflow.
func estimateDuration(size, bitrate int64) time.Duration {
	return time.Duration(float64(size) * 8 / float64(bitrate) * float64(time.Second))
}

func localPath(src string) (string, bool) {
	if p, ok := strings.CutPrefix(src, "file://"); ok {
		return p, true
	}
	return src, !strings.Contains(src, "://")
}
