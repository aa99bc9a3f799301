package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danhigham/vkplay/internal/audio"
	"github.com/danhigham/vkplay/internal/bus"
	"github.com/danhigham/vkplay/internal/config"
	"github.com/danhigham/vkplay/internal/domain"
	"github.com/danhigham/vkplay/internal/events"
	"github.com/danhigham/vkplay/internal/feed"
	"github.com/danhigham/vkplay/internal/library"
	"github.com/danhigham/vkplay/internal/longpoll"
	"github.com/danhigham/vkplay/internal/nowplaying"
	"github.com/danhigham/vkplay/internal/player"
	"github.com/danhigham/vkplay/internal/redis"
	"github.com/danhigham/vkplay/internal/state"
)

var (
	autoplay bool
	barWidth int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Follow the account's long-poll stream and play the saved library",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&autoplay, "play", false, "start playing the library immediately")
	runCmd.Flags().IntVar(&barWidth, "width", 80, "width of the now-playing bar")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.VK.AccessToken == "" {
		return errors.Errorf("no access token: set vk.access_token or %s", config.TokenEnv)
	}

	logger, err := newLogger(dir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b := bus.New(logger.Named("bus"))

	// drawFunc runs under the store lock; it only signals the summary loop.
	changed := make(chan struct{}, 1)
	store := state.New(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	store.Attach(b)
	defer store.Detach()

	hub := feed.NewHub(logger.Named("feed"))
	b.AddMirror(hub)

	if cfg.Redis.URL != "" {
		rdb, err := redis.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		b.AddMirror(redis.NewMirror(rdb, cfg.Redis.Prefix, logger.Named("redis")))
	}

	lib, err := library.Open(dir, cfg.Library.CacheDir, logger.Named("library"))
	if err != nil {
		return err
	}
	defer func() { _ = lib.Close() }()
	if err := lib.Watch(ctx); err != nil {
		logger.Warn("Cache watcher disabled", zap.Error(err))
	}

	engine := player.NewHeadless(player.HeadlessOptions{Logger: logger.Named("player")})
	defer engine.Close()

	mgr := audio.NewManager(audio.Options{
		Engine:    engine,
		Publisher: nowplaying.NewConsole(cmd.OutOrStdout(), barWidth),
		Artwork:   nowplaying.NewArtwork(dir, nil, logger.Named("artwork")),
		Logger:    logger.Named("audio"),
		OnFailure: func(item domain.AudioItem, err error) {
			logger.Warn("Track failed", zap.String("item", item.Key()), zap.Error(err))
		},
	})
	defer mgr.Close()

	stopFollowing, err := mgr.Load(ctx, lib)
	if err != nil {
		return err
	}
	defer stopFollowing()
	if autoplay && len(mgr.Items()) > 0 {
		if err := mgr.Play(); err != nil {
			logger.Warn("Autoplay failed", zap.Error(err))
		}
	}

	dispatcher := events.NewDispatcher(b, logger.Named("events"))
	client := longpoll.NewClient(longpoll.Options{
		APIURL:     cfg.VK.APIURL,
		APIVersion: cfg.VK.APIVersion,
		Token:      cfg.VK.AccessToken,
		Wait:       cfg.LongPoll.Wait,
		Mode:       cfg.LongPoll.Mode,
		Version:    cfg.LongPoll.Version,
		Logger:     logger.Named("longpoll"),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	if cfg.Feed.Addr != "" {
		g.Go(func() error { return hub.ListenAndServe(ctx, cfg.Feed.Addr) })
	}
	g.Go(func() error {
		return client.Run(ctx, func(ctx context.Context, updates []events.Record) {
			dispatcher.DispatchBatch(updates)
		})
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
				logSummary(logger, store)
			}
		}
	})

	logger.Info("Running", zap.Int("tracks", len(mgr.Items())), zap.String("feed", cfg.Feed.Addr))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	st := dispatcher.Stats()
	logger.Info("Stopped",
		zap.Uint64("dispatched", st.Dispatched),
		zap.Uint64("unrecognized", st.Unrecognized),
		zap.Uint64("malformed", st.Malformed),
	)
	return nil
}

func logSummary(logger *zap.Logger, store *state.Store) {
	convs := store.Conversations()
	unread := 0
	for _, c := range convs {
		unread += c.UnreadCount
	}
	fields := []zap.Field{zap.Int("conversations", len(convs)), zap.Int("unread", unread)}
	if len(convs) > 0 {
		fields = append(fields, zap.Int64("top_peer", convs[0].PeerID))
	}
	logger.Debug("State changed", fields...)
}
