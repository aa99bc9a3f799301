package audio

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/danhigham/vkplay/internal/domain"
)

// ErrPlayback wraps engine failures for the current item.
var ErrPlayback = errors.New("playback failed")

// AddMode selects how Add treats the existing queue.
type AddMode int

const (
	AddAppend AddMode = iota
	AddReplace
)

// Options configures a Manager. Engine and Publisher are required.
type Options struct {
	Engine    Engine
	Publisher Publisher
	Artwork   ArtworkFetcher
	Logger    *zap.Logger
	// OnFailure is called, outside the manager lock, when the engine
	// reports a failure for the current item after Play has returned.
	OnFailure func(item domain.AudioItem, err error)
}

// Manager owns the playback queue and keeps the engine and the now-playing
// surface in line with it.
type Manager struct {
	mu        sync.Mutex
	queue     *Queue
	state     domain.PlaybackState
	engine    Engine
	publisher Publisher
	artwork   ArtworkFetcher
	logger    *zap.Logger
	onFailure func(domain.AudioItem, error)

	isObserving bool
	observers   []ObserverToken

	// generation changes whenever the current item changes; artwork
	// results for an older generation are discarded.
	generation uint64
	// session is the generation passed to the engine's last Play.
	session  uint64
	duration time.Duration
	elapsed  time.Duration
	loaded   time.Duration
	rate     float64
	lastErr  error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type failure struct {
	item domain.AudioItem
	err  error
}

func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		queue:     NewQueue(),
		state:     domain.PlaybackEmpty,
		engine:    opts.Engine,
		publisher: opts.Publisher,
		artwork:   opts.Artwork,
		logger:    logger,
		onFailure: opts.OnFailure,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (m *Manager) State() domain.PlaybackState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Items() []domain.AudioItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Items()
}

// Current returns the current item and its index.
func (m *Manager) Current() (domain.AudioItem, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.queue.Current()
	idx, _ := m.queue.Cursor()
	return item, idx, ok
}

// Progress returns elapsed time, duration and the buffered range of the current item.
func (m *Manager) Progress() (elapsed, duration, loaded time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.elapsed, m.duration, m.loaded
}

// LastError returns the most recent playback failure, cleared by the next successful play.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// ReplaceAll stops the engine, then loads items with no current item.
func (m *Manager) ReplaceAll(items []domain.AudioItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceAllLocked(items)
}

func (m *Manager) replaceAllLocked(items []domain.AudioItem) {
	m.engine.Stop()
	_, hadCurrent := m.queue.Current()
	m.queue.Replace(items)
	m.setIdleLocked()
	if hadCurrent {
		m.clearNowPlayingLocked()
	}
	m.logger.Debug("Queue replaced", zap.Int("items", len(items)))
}

// Add appends items, or replaces the queue when mode is AddReplace.
func (m *Manager) Add(items []domain.AudioItem, mode AddMode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mode == AddReplace {
		m.replaceAllLocked(items)
		return
	}
	m.queue.Append(items)
	if m.state == domain.PlaybackEmpty && m.queue.Len() > 0 {
		m.state = domain.PlaybackStopped
	}
}

// RemoveAll stops playback and empties the queue. It is also the teardown
// hook and is a no-op when the manager is already empty.
func (m *Manager) RemoveAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeAllLocked()
}

func (m *Manager) removeAllLocked() {
	if m.state == domain.PlaybackEmpty && m.queue.Len() == 0 {
		return
	}
	m.engine.Stop()
	m.queue.Clear()
	m.state = domain.PlaybackEmpty
	m.clearNowPlayingLocked()
	m.stopObservingLocked()
	m.logger.Debug("Queue cleared")
}

// RemoveRange removes items[from:to]. Removing the current item stops playback.
func (m *Manager) RemoveRange(from, to int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	removedCurrent, err := m.queue.RemoveRange(from, to)
	if err != nil {
		return err
	}
	if removedCurrent {
		m.engine.Stop()
		m.clearNowPlayingLocked()
	}
	if removedCurrent || m.queue.Len() == 0 {
		m.setIdleLocked()
	}
	return nil
}

// Select makes item i current and starts playing it.
func (m *Manager) Select(i int) error {
	return m.move(func(q *Queue) error { return q.Select(i) })
}

func (m *Manager) Next() error {
	return m.move(func(q *Queue) error { return q.Next() })
}

func (m *Manager) Previous() error {
	return m.move(func(q *Queue) error { return q.Previous() })
}

func (m *Manager) move(step func(q *Queue) error) error {
	m.mu.Lock()
	if err := step(m.queue); err != nil {
		m.mu.Unlock()
		return err
	}
	err := m.playCurrentLocked()
	m.mu.Unlock()
	return err
}

// Play resumes a paused item, or starts the current (or first) item.
func (m *Manager) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case domain.PlaybackPlaying:
		return nil
	case domain.PlaybackPaused:
		m.engine.Resume()
		m.state = domain.PlaybackPlaying
		m.rate = 1
		m.publishLocked()
		return nil
	}
	if _, ok := m.queue.Cursor(); !ok {
		if err := m.queue.Select(0); err != nil {
			return err
		}
	}
	return m.playCurrentLocked()
}

func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.PlaybackPlaying {
		return
	}
	m.engine.Pause()
	m.state = domain.PlaybackPaused
	m.rate = 0
	m.publishLocked()
}

// Toggle switches between playing and paused, starting playback if stopped.
func (m *Manager) Toggle() error {
	if m.State() == domain.PlaybackPlaying {
		m.Pause()
		return nil
	}
	return m.Play()
}

func (m *Manager) Seek(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queue.Current(); !ok || m.state == domain.PlaybackStopped {
		return errors.Wrap(ErrNoSuchItem, "nothing to seek")
	}
	if pos < 0 {
		pos = 0
	}
	if m.duration > 0 && pos > m.duration {
		pos = m.duration
	}
	if err := m.engine.Seek(pos); err != nil {
		return errors.Wrap(err, "seek")
	}
	m.elapsed = pos
	m.publishLocked()
	return nil
}

// Sync applies a new library snapshot. The current item keeps playing if
// the snapshot still contains it; otherwise playback stops.
func (m *Manager) Sync(items []domain.AudioItem) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, hadCurrent := m.queue.Current()
	kept := m.queue.Sync(items)
	switch {
	case hadCurrent && !kept:
		m.engine.Stop()
		m.clearNowPlayingLocked()
		m.setIdleLocked()
	case !hadCurrent:
		m.setIdleLocked()
	}
}

// Load replaces the queue with the library snapshot and follows its changes
// until the returned cancel func is called.
func (m *Manager) Load(ctx context.Context, lib Library) (func(), error) {
	items, err := lib.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "library snapshot")
	}
	m.ReplaceAll(items)
	return lib.OnChange(m.Sync), nil
}

// Close tears the manager down and waits for pending artwork fetches.
func (m *Manager) Close() {
	m.mu.Lock()
	m.removeAllLocked()
	m.stopObservingLocked()
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// setIdleLocked picks Empty or Stopped from the queue length.
func (m *Manager) setIdleLocked() {
	if m.queue.Len() == 0 {
		m.state = domain.PlaybackEmpty
	} else {
		m.state = domain.PlaybackStopped
	}
}

func (m *Manager) playCurrentLocked() error {
	item, ok := m.queue.Current()
	if !ok {
		return errors.Wrap(ErrNoSuchItem, "no current item")
	}

	m.startObservingLocked()
	m.generation++
	m.session = m.generation
	m.duration = item.Duration
	m.elapsed = 0
	m.loaded = 0

	if err := m.engine.Play(item, m.session); err != nil {
		m.state = domain.PlaybackStopped
		m.rate = 0
		m.lastErr = errors.Wrapf(ErrPlayback, "%s: %v", item.Key(), err)
		m.clearNowPlayingLocked()
		m.logger.Warn("Playback failed", zap.String("item", item.Key()), zap.Error(err))
		return m.lastErr
	}

	m.lastErr = nil
	m.state = domain.PlaybackPlaying
	m.rate = 1
	m.publishLocked()
	m.fetchArtworkLocked(item, m.generation)
	return nil
}

func (m *Manager) publishLocked() {
	item, ok := m.queue.Current()
	if !ok {
		return
	}
	m.publisher.Publish(NowPlaying{
		Key:      item.Key(),
		Title:    item.Title,
		Artist:   item.Artist,
		Album:    item.Album,
		Duration: m.duration,
		Elapsed:  m.elapsed,
		Rate:     m.rate,
	})
}

func (m *Manager) clearNowPlayingLocked() {
	m.generation++
	m.rate = 0
	m.elapsed = 0
	m.duration = 0
	m.loaded = 0
	m.publisher.Clear()
}

func (m *Manager) fetchArtworkLocked(item domain.AudioItem, gen uint64) {
	if m.artwork == nil {
		return
	}
	if item.ArtworkURL == "" {
		m.publisher.PublishArtwork(item.Key(), m.artwork.Placeholder(), true)
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		img, err := m.artwork.Fetch(m.ctx, item.ArtworkURL)
		placeholder := false
		if err != nil || len(img) == 0 {
			m.logger.Debug("Artwork unavailable", zap.String("item", item.Key()), zap.Error(err))
			img = m.artwork.Placeholder()
			placeholder = true
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if gen != m.generation {
			m.logger.Debug("Discarding stale artwork", zap.String("item", item.Key()))
			return
		}
		m.publisher.PublishArtwork(item.Key(), img, placeholder)
	}()
}

func (m *Manager) startObservingLocked() {
	if m.isObserving {
		return
	}
	for _, p := range observedProperties {
		m.observers = append(m.observers, m.engine.Observe(p, m.observe))
	}
	m.isObserving = true
}

func (m *Manager) stopObservingLocked() {
	if !m.isObserving {
		return
	}
	for _, tok := range m.observers {
		m.engine.Unobserve(tok)
	}
	m.observers = nil
	m.isObserving = false
}

func (m *Manager) observe(obs Observation) {
	m.mu.Lock()
	f := m.applyLocked(obs)
	m.mu.Unlock()

	if f != nil && m.onFailure != nil {
		m.onFailure(f.item, f.err)
	}
}

// applyLocked updates state from an engine observation and returns a
// failure to report, if any.
func (m *Manager) applyLocked(obs Observation) *failure {
	item, ok := m.queue.Current()
	if !ok || obs.ItemKey != item.Key() || obs.Session != m.session {
		return nil
	}
	if m.state == domain.PlaybackStopped || m.state == domain.PlaybackEmpty {
		return nil
	}

	switch obs.Property {
	case PropertyStatus:
		switch obs.Status {
		case StatusFailed:
			m.state = domain.PlaybackStopped
			m.rate = 0
			m.lastErr = errors.Wrapf(ErrPlayback, "%s: %v", item.Key(), obs.Err)
			m.publishLocked()
			m.logger.Warn("Engine reported failure", zap.String("item", item.Key()), zap.Error(obs.Err))
			return &failure{item: item, err: m.lastErr}
		case StatusEnded:
			return m.advanceLocked()
		}
	case PropertyTimeControl:
		switch obs.TimeControl {
		case TimeControlPlaying:
			m.state = domain.PlaybackPlaying
			m.rate = 1
		case TimeControlPaused:
			m.state = domain.PlaybackPaused
			m.rate = 0
		case TimeControlWaiting:
			m.rate = 0
		}
		m.publishLocked()
	case PropertyDuration:
		if obs.Duration != m.duration {
			m.duration = obs.Duration
			m.publishLocked()
		}
	case PropertyElapsed:
		m.elapsed = obs.Elapsed
	case PropertyLoadedRange:
		m.loaded = obs.Loaded
	}
	return nil
}

// advanceLocked moves past a finished item. The end of the queue leaves
// the last item current and stopped.
func (m *Manager) advanceLocked() *failure {
	if err := m.queue.Next(); err != nil {
		m.engine.Stop()
		m.state = domain.PlaybackStopped
		m.rate = 0
		m.elapsed = m.duration
		m.publishLocked()
		return nil
	}
	if err := m.playCurrentLocked(); err != nil {
		item, _ := m.queue.Current()
		return &failure{item: item, err: err}
	}
	return nil
}
