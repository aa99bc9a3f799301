package nowplaying

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

const maxArtworkSize = 5 << 20

// Artwork loads cover images over HTTP and keeps them on disk.
type Artwork struct {
	client *http.Client
	cache  *Cache
	logger *zap.Logger

	once        sync.Once
	placeholder []byte
}

// NewArtwork creates a fetcher caching into {dir}/artwork. An empty dir
// disables the disk cache.
func NewArtwork(dir string, client *http.Client, logger *zap.Logger) *Artwork {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Artwork{client: client, logger: logger}
	if dir != "" {
		a.cache = NewCache(filepath.Join(dir, "artwork"))
	}
	return a
}

func (a *Artwork) Fetch(ctx context.Context, url string) ([]byte, error) {
	key := cacheKey(url)
	if a.cache != nil {
		if data, err := a.cache.Get(key); err == nil && data != nil {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "get artwork")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("get artwork: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtworkSize))
	if err != nil {
		return nil, errors.Wrap(err, "read artwork")
	}
	if len(data) == 0 {
		return nil, errors.New("empty artwork")
	}

	if a.cache != nil {
		if err := a.cache.Put(key, data); err != nil {
			a.logger.Warn("Cache artwork", zap.String("url", url), zap.Error(err))
		}
	}
	return data, nil
}

// Placeholder returns a generated PNG shown when a track has no usable artwork.
func (a *Artwork) Placeholder() []byte {
	a.once.Do(func() {
		a.placeholder = placeholderPNG(64)
	})
	return a.placeholder
}

func placeholderPNG(size int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	from := color.RGBA{R: 0x61, G: 0x24, B: 0xDF, A: 0xFF}
	to := color.RGBA{R: 0xFF, G: 0x5F, B: 0xAF, A: 0xFF}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			t := float64(x+y) / float64(2*(size-1))
			img.Set(x, y, color.RGBA{
				R: lerp(from.R, to.R, t),
				G: lerp(from.G, to.G, t),
				B: lerp(from.B, to.B, t),
				A: 0xFF,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

func cacheKey(url string) string {
	h := sha1.Sum([]byte(url))
	return hex.EncodeToString(h[:])
}

// Cache stores artwork on disk, keyed by the hash of its URL.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

func NewCache(dir string) *Cache {
	_ = os.MkdirAll(dir, 0o755)
	return &Cache{dir: dir}
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key)
}

// Get returns the cached image, or nil if it is not cached.
func (c *Cache) Get(key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := os.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

func (c *Cache) Put(key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.WriteFile(c.path(key), data, 0o644)
}
