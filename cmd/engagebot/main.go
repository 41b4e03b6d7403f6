package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bolhadev/engagebot/atclient"
	"github.com/bolhadev/engagebot/dedupe"
	"github.com/bolhadev/engagebot/engage"
	"github.com/bolhadev/engagebot/schedule"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {
	return newApp().Run(args)
}

func newApp() *cli.App {

	app := &cli.App{
		Name:    "engagebot",
		Usage:   "reposts mentions and likes tagged posts on a schedule",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"ENGAGEBOT_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: text or json",
			Value:   "text",
			EnvVars: []string{"ENGAGEBOT_LOG_FORMAT", "LOG_FORMAT"},
		},
		&cli.StringFlag{
			Name:    "pds-host",
			Usage:   "method, hostname, and port of the PDS (or entryway) to authenticate against",
			Value:   "https://bsky.social",
			EnvVars: []string{"ATP_PDS_HOST"},
		},
		&cli.StringFlag{
			Name:    "identifier",
			Usage:   "account handle or email for the bot account",
			EnvVars: []string{"IDENTIFIER", "ATP_AUTH_HANDLE"},
		},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "account password (an app password is recommended)",
			EnvVars: []string{"PASSWORD", "ATP_AUTH_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "dedupe-store",
			Usage:   "where processed ids are tracked: memory, a directory (or file://dir), redis://, sqlite://, or postgres:// URL",
			Value:   "memory",
			EnvVars: []string{"ENGAGEBOT_DEDUPE_STORE", "DEDUPE_STORE"},
		},
		&cli.StringSliceFlag{
			Name:    "tags",
			Usage:   "hashtags to search and like, in order",
			Value:   cli.NewStringSlice(engage.DefaultTags...),
			EnvVars: []string{"ENGAGEBOT_TAGS"},
		},
		&cli.IntFlag{
			Name:    "search-limit",
			Usage:   "max posts fetched per tag search",
			Value:   engage.DefaultSearchLimit,
			EnvVars: []string{"ENGAGEBOT_SEARCH_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "notification-limit",
			Usage:   "max notifications fetched per cycle (0 for server default)",
			EnvVars: []string{"ENGAGEBOT_NOTIFICATION_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "like-pacing",
			Usage:   "delay after each successful like",
			Value:   engage.DefaultLikePacing,
			EnvVars: []string{"ENGAGEBOT_LIKE_PACING"},
		},
		&cli.Float64Flag{
			Name:    "api-rate-limit",
			Usage:   "max outbound API requests per second (0 disables)",
			Value:   5,
			EnvVars: []string{"ENGAGEBOT_API_RATE_LIMIT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		onceCmd,
	}

	return app
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the bot as a daemon",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:    "cycle-interval",
			Usage:   "time between engagement cycles, measured from cycle start",
			Value:   schedule.DefaultCycleInterval,
			EnvVars: []string{"ENGAGEBOT_CYCLE_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "reset-interval",
			Usage:   "time between dedupe store maintenance runs",
			Value:   schedule.DefaultResetInterval,
			EnvVars: []string{"ENGAGEBOT_RESET_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "dedupe-retention",
			Usage:   "prune processed ids older than this (SQL stores only; 0 keeps forever)",
			EnvVars: []string{"ENGAGEBOT_DEDUPE_RETENTION"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"ENGAGEBOT_METRICS_LISTEN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stdout)

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownOTEL := configOTEL(ctx, "engagebot")
		defer shutdownOTEL()

		bot, store, err := setupCycle(cctx, logger)
		if err != nil {
			return err
		}

		retention := cctx.Duration("dedupe-retention")
		if retention > 0 && !dedupe.CanPrune(store) {
			return fmt.Errorf("--dedupe-retention requires a SQL dedupe store")
		}
		if dedupe.IsVolatile(store) {
			logger.Warn("using volatile dedupe store; items may be engaged again after each reset or restart", "resetInterval", cctx.Duration("reset-interval").String())
		}

		sched, err := schedule.New(func(ctx context.Context) error {
			_, err := bot.Run(ctx)
			return err
		}, store, schedule.Config{
			CycleInterval: cctx.Duration("cycle-interval"),
			ResetInterval: cctx.Duration("reset-interval"),
			Retention:     retention,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		bot.NextRun = sched.NextCycle

		var metrics *metricsServer
		if addr := cctx.String("metrics-listen"); addr != "" {
			metrics = startMetrics(addr, logger)
		}

		sched.Start(ctx)
		<-ctx.Done()
		logger.Info("received shutdown signal")

		sched.Stop()
		if metrics != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metrics.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shut down metrics server", "err", err)
			}
		}
		logger.Info("shutdown complete")
		return nil
	},
}

var onceCmd = &cli.Command{
	Name:  "once",
	Usage: "run a single engagement cycle and exit",
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stdout)

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownOTEL := configOTEL(ctx, "engagebot")
		defer shutdownOTEL()

		bot, _, err := setupCycle(cctx, logger)
		if err != nil {
			return err
		}
		report, err := bot.Run(ctx)
		if err != nil {
			return err
		}
		if report.MentionsErr != nil {
			logger.Warn("mentions were not processed", "err", report.MentionsErr)
		}
		for _, tr := range report.Tags {
			if tr.Err != nil {
				logger.Warn("tag was not processed", "tag", tr.Tag, "err", tr.Err)
			}
		}
		return nil
	},
}

// Wires the client, dedupe store, processor, and cycle from global flags.
func setupCycle(cctx *cli.Context, logger *slog.Logger) (*engage.Cycle, dedupe.Store, error) {
	identifier := cctx.String("identifier")
	password := cctx.String("password")
	if identifier == "" || password == "" {
		return nil, nil, fmt.Errorf("account identifier and password are required (--identifier, --password)")
	}

	client := atclient.NewAPIClient(cctx.String("pds-host"))
	if r := cctx.Float64("api-rate-limit"); r > 0 {
		client.Limiter = rate.NewLimiter(rate.Limit(r), 1)
	}

	storeURL := cctx.String("dedupe-store")
	logger.Info("opening dedupe store", "store", redactURL(storeURL))
	store, err := dedupe.Open(storeURL, logger.With("component", "dedupe"), engage.ActionRepost.String(), engage.ActionLike.String())
	if err != nil {
		return nil, nil, err
	}

	pacing := engage.DefaultPacing()
	pacing[engage.ActionLike] = cctx.Duration("like-pacing")
	proc := engage.NewProcessor(client, store, pacing, logger)

	bot := engage.NewCycle(client, proc, engage.CycleConfig{
		Identifier:        identifier,
		Password:          password,
		Tags:              normalizeTags(cctx.StringSlice("tags")),
		SearchLimit:       cctx.Int("search-limit"),
		NotificationLimit: cctx.Int("notification-limit"),
	}, logger)
	return bot, store, nil
}

// Trims tags, drops empties, and adds the leading '#' where it was left off. Returns nil (the default tag set) if nothing is left.
func normalizeTags(raw []string) []string {
	var out []string
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" || t == "#" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			t = "#" + t
		}
		out = append(out, t)
	}
	return out
}

// Hides any password embedded in a store URL before it is logged.
func redactURL(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	return u.Redacted()
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cctx.String("log-format")) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
