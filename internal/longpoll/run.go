package longpoll

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/danhigham/vkplay/internal/events"
)

// BackOff is the retry policy used between failed requests.
type BackOff = backoff.BackOff

// BatchHandler receives the updates of one response, in server order.
type BatchHandler func(ctx context.Context, updates []events.Record)

func defaultBackOff() BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return b
}

// Run polls until ctx is cancelled or a permanent API error occurs.
func (c *Client) Run(ctx context.Context, h BatchHandler) error {
	bo := c.opts.NewBackOff()
	bo.Reset()

	var (
		srv     Server
		haveSrv bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !haveSrv {
			next, err := c.connect(ctx, bo)
			if err != nil {
				return err
			}
			// After ErrKeyExpired the old ts is still valid.
			if srv.TS != 0 {
				next.TS = srv.TS
			}
			srv = next
			haveSrv = true
			c.logger.Info("Long-poll connected", zap.String("server", srv.Server), zap.Int64("ts", srv.TS))
		}

		batch, err := c.Poll(ctx, srv)
		switch {
		case err == nil:
			bo.Reset()
			srv.TS = batch.TS
			if len(batch.Updates) > 0 {
				h(ctx, batch.Updates)
			}
		case errors.Is(err, ErrTSOutdated):
			c.logger.Warn("Long-poll ts outdated, events may be missed", zap.Int64("ts", batch.TS))
			srv.TS = batch.TS
		case errors.Is(err, ErrKeyExpired):
			c.logger.Info("Long-poll key expired")
			haveSrv = false
		case errors.Is(err, ErrHistoryLost):
			c.logger.Warn("Long-poll history lost, refetching server")
			srv = Server{}
			haveSrv = false
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return errors.Wrap(err, "long-poll gave up")
			}
			c.logger.Warn("Long-poll request failed", zap.Error(err), zap.Duration("retry_in", wait))
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
}

// connect fetches a server, retrying transient failures.
func (c *Client) connect(ctx context.Context, bo BackOff) (Server, error) {
	var srv Server
	op := func() error {
		s, err := c.Server(ctx)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Permanent() {
				return backoff.Permanent(err)
			}
			return err
		}
		srv = s
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Fetching long-poll server failed", zap.Error(err), zap.Duration("retry_in", wait))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return Server{}, errors.Wrap(err, "connect")
	}
	bo.Reset()
	return srv, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
