// Package longpoll holds a VK user long-poll session and hands each batch
// of raw updates to a handler.
package longpoll

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/danhigham/vkplay/internal/events"
)

const (
	DefaultAPIURL     = "https://api.vk.com/method"
	DefaultAPIVersion = "5.131"
	DefaultWait       = 25
	DefaultMode       = 2
	DefaultVersion    = 3
)

var (
	// ErrTSOutdated means the server dropped part of the history; polling
	// continues from the ts it returned.
	ErrTSOutdated = errors.New("long-poll ts outdated")
	// ErrKeyExpired means the key must be re-requested, keeping the last ts.
	ErrKeyExpired = errors.New("long-poll key expired")
	// ErrHistoryLost means both key and ts must be re-requested.
	ErrHistoryLost = errors.New("long-poll history lost")
)

// APIError is an error returned by a VK API method.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

// Permanent reports whether retrying cannot help (authorization or access errors).
func (e *APIError) Permanent() bool {
	switch e.Code {
	case 5, 15, 17, 27, 28:
		return true
	}
	return false
}

// Server is the long-poll endpoint returned by messages.getLongPollServer.
type Server struct {
	Server string `json:"server"`
	Key    string `json:"key"`
	TS     int64  `json:"ts"`
}

// Batch is one long-poll response.
type Batch struct {
	TS      int64
	Updates []events.Record
}

// Options configures a Client. Zero values take the package defaults.
type Options struct {
	APIURL     string
	APIVersion string
	Token      string
	Wait       int
	Mode       int
	Version    int
	HTTPClient *http.Client
	Logger     *zap.Logger
	// NewBackOff overrides the retry policy used by Run.
	NewBackOff func() BackOff
}

// Client talks to the VK API and the long-poll server.
type Client struct {
	opts   Options
	http   *http.Client
	logger *zap.Logger
}

func NewClient(opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultAPIVersion
	}
	if opts.Wait <= 0 {
		opts.Wait = DefaultWait
	}
	if opts.Mode == 0 {
		opts.Mode = DefaultMode
	}
	if opts.Version == 0 {
		opts.Version = DefaultVersion
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = defaultBackOff
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: time.Duration(opts.Wait)*time.Second + 10*time.Second}
	}
	return &Client{opts: opts, http: hc, logger: opts.Logger}
}

// Server requests a fresh long-poll key and ts.
func (c *Client) Server(ctx context.Context) (Server, error) {
	q := url.Values{}
	q.Set("access_token", c.opts.Token)
	q.Set("v", c.opts.APIVersion)
	q.Set("lp_version", strconv.Itoa(c.opts.Version))

	u := strings.TrimRight(c.opts.APIURL, "/") + "/messages.getLongPollServer?" + q.Encode()
	body, err := c.get(ctx, u)
	if err != nil {
		return Server{}, errors.Wrap(err, "get long-poll server")
	}

	var resp struct {
		Response *Server  `json:"response"`
		Error    *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Server{}, errors.Wrap(err, "decode long-poll server")
	}
	if resp.Error != nil {
		return Server{}, resp.Error
	}
	if resp.Response == nil || resp.Response.Server == "" || resp.Response.Key == "" {
		return Server{}, errors.New("empty long-poll server response")
	}
	return *resp.Response, nil
}

func (c *Client) pollURL(srv Server) string {
	base := srv.Server
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	q := url.Values{}
	q.Set("act", "a_check")
	q.Set("key", srv.Key)
	q.Set("ts", strconv.FormatInt(srv.TS, 10))
	q.Set("wait", strconv.Itoa(c.opts.Wait))
	q.Set("mode", strconv.Itoa(c.opts.Mode))
	q.Set("version", strconv.Itoa(c.opts.Version))
	return base + "?" + q.Encode()
}

// Poll issues one a_check request. On failed=1 the returned batch carries
// the new ts together with ErrTSOutdated.
func (c *Client) Poll(ctx context.Context, srv Server) (Batch, error) {
	body, err := c.get(ctx, c.pollURL(srv))
	if err != nil {
		return Batch{}, errors.Wrap(err, "poll")
	}
	return ParseResponse(body)
}

// ParseResponse decodes a long-poll response body.
func ParseResponse(body []byte) (Batch, error) {
	var (
		b      Batch
		failed int
		hasTS  bool
	)
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "ts":
			ts, err := decodeTS(d)
			if err != nil {
				return errors.Wrap(err, "ts")
			}
			b.TS = ts
			hasTS = true
		case "failed":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "failed")
			}
			failed = v
		case "updates":
			updates, err := events.DecodeBatch(d)
			if err != nil {
				return errors.Wrap(err, "updates")
			}
			b.Updates = updates
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return Batch{}, errors.Wrap(err, "decode long-poll response")
	}

	switch failed {
	case 0:
	case 1:
		return b, ErrTSOutdated
	case 2:
		return b, ErrKeyExpired
	case 3:
		return b, ErrHistoryLost
	default:
		return b, errors.Errorf("long-poll failed with code %d", failed)
	}
	if !hasTS {
		return Batch{}, errors.New("long-poll response without ts")
	}
	return b, nil
}

// decodeTS accepts ts as a number or a numeric string.
func decodeTS(d *jx.Decoder) (int64, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		return strconv.ParseInt(s, 10, 64)
	}
	return d.Int64()
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %s", resp.Status)
	}
	return body, nil
}
