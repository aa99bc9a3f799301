// Package nowplaying publishes the current track to the terminal and loads
// cover artwork for it.
package nowplaying

import (
	"fmt"
	"image/color"
	"io"
	"strings"
	"sync"
	"time"

	"charm.land/lipgloss/v2"

	"github.com/danhigham/vkplay/internal/audio"
)

var (
	barBg       = lipgloss.Color("#353533")
	playingBg   = lipgloss.Color("#FF5FAF")
	idleBg      = lipgloss.Color("#6C5098")
	progressBg  = lipgloss.Color("#6124DF")
	artworkBg   = lipgloss.Color("#7B5EA7")
	placeholdBg = lipgloss.Color("240")
)

func pill(bg color.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Background(bg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Bold(true).
		Padding(0, 1)
}

// Console renders the now-playing info as a one-line status bar.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	width int

	info    *audio.NowPlaying
	artwork string // "", "ART" or "NO ART"
}

func NewConsole(w io.Writer, width int) *Console {
	if width <= 0 {
		width = 80
	}
	return &Console{w: w, width: width}
}

func (c *Console) Publish(info audio.NowPlaying) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil || c.info.Key != info.Key {
		c.artwork = ""
	}
	c.info = &info
	c.flushLocked()
}

func (c *Console) PublishArtwork(key string, image []byte, placeholder bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil || c.info.Key != key {
		return
	}
	if placeholder || len(image) == 0 {
		c.artwork = "NO ART"
	} else {
		c.artwork = "ART"
	}
	c.flushLocked()
}

func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil {
		return
	}
	c.info = nil
	c.artwork = ""
	c.flushLocked()
}

// View renders the bar:
// [STATE pill] [artist - title] ... [art pill] [elapsed/duration pill]
func (c *Console) View() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Console) flushLocked() {
	_, _ = lipgloss.Fprintln(c.w, c.viewLocked())
}

func (c *Console) viewLocked() string {
	if c.info == nil {
		left := pill(idleBg).Render("STOPPED")
		return c.fill(left, "")
	}

	info := c.info
	state, bg := "PAUSED", idleBg
	if info.Rate > 0 {
		state, bg = "PLAYING", playingBg
	}
	left := pill(bg).Render(state)

	label := info.Title
	if info.Artist != "" {
		label = info.Artist + " - " + info.Title
	}
	left += lipgloss.NewStyle().
		Background(barBg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Padding(0, 1).
		Render(label)

	var right string
	switch c.artwork {
	case "ART":
		right += pill(artworkBg).Render(c.artwork)
	case "NO ART":
		right += pill(placeholdBg).Render(c.artwork)
	}
	right += pill(progressBg).Render(clock(info.Elapsed) + "/" + clock(info.Duration))

	return c.fill(left, right)
}

func (c *Console) fill(left, right string) string {
	gap := c.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	filler := lipgloss.NewStyle().
		Background(barBg).
		Render(strings.Repeat(" ", gap))
	return lipgloss.NewStyle().
		Background(barBg).
		Width(c.width).
		Render(left + filler + right)
}

// clock formats d as m:ss.
func clock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
