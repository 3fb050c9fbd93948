package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/channelguessr/core/internal/chat"
	"github.com/channelguessr/core/internal/dbconfig"
	"github.com/channelguessr/core/internal/round"
	"github.com/channelguessr/core/internal/round/events"
	"github.com/channelguessr/core/internal/round/scheduler"
	"github.com/channelguessr/core/internal/round/scoring"
	"github.com/channelguessr/core/internal/round/selector"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("game core exited")
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		return err
	}
	if err := round.RunMigrations(dbCfg.DSN()); err != nil {
		return err
	}
	pool, err := pgxpool.New(ctx, dbCfg.DSN())
	if err != nil {
		return err
	}
	defer pool.Close()

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("channelguessr-core"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return err
	}
	defer nc.Drain()

	pub, err := events.NewPublisher(nc, events.DefaultPublisherConfig())
	if err != nil {
		return err
	}
	chatClient := chat.NewClient(nc, chat.DefaultConfig())

	clock := clockwork.NewRealClock()
	sel := selector.New(chatClient, selector.Config{
		Lookback:         cfg.SelectionLookback,
		MinMessageAge:    cfg.MinMessageAge,
		SearchLimit:      cfg.SearchLimit,
		MaxRetries:       cfg.MaxRetries,
		MinMessageLength: cfg.MinMessageLength,
	}, clock)

	app := round.NewApp(
		round.NewRepository(pool),
		sel,
		chatClient,
		pub,
		scoring.DefaultConfig(),
		round.Config{
			RoundTimeout:    cfg.RoundTimeout,
			WarningLead:     cfg.WarningLead,
			ContextMessages: cfg.ContextMessages,
		},
		clock,
	)
	sched := scheduler.New(app, chatClient, pub, clock)
	app.SetScheduler(sched)

	active, err := app.ListActiveRounds(ctx)
	if err != nil {
		return err
	}
	restored := sched.Restore(ctx, active)
	log.Info().Int("rounds", len(active)).Int("restored", restored).Msg("restored active rounds")

	// The chat adapter may not be up yet; orphan cleanup can wait for
	// the next restart.
	if guildIDs, err := chatClient.ListGuildIDs(ctx); err != nil {
		log.Warn().Err(err).Msg("skipping orphan guild cleanup")
	} else if removed, err := app.CleanupOrphanGuilds(ctx, guildIDs); err != nil {
		log.Error().Err(err).Msg("orphan guild cleanup failed")
	} else if removed > 0 {
		log.Info().Int("guilds", removed).Msg("cleaned up orphan guilds")
	}

	log.Info().Msg("game core running")
	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
