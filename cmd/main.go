package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/ladder/internal/adapters/http/api"
	"github.com/okian/ladder/internal/adapters/http/swagger"
	"github.com/okian/ladder/internal/adapters/repository"
	service "github.com/okian/ladder/internal/app"
	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/internal/domain/rejection"
	"github.com/okian/ladder/internal/synth"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"

	"github.com/urfave/cli/v2"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Process exit codes. 75 is EX_TEMPFAIL from sysexits.h.
const (
	exitOK        = 0
	exitFailure   = 1
	exitRejected  = 2
	exitTransient = 75
)

// errRejected marks a run that finished but turned at least one submission away.
var errRejected = errors.New("submissions rejected")

// configKey holds the loaded configuration in the cli metadata.
const configKey = "config"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout)
	stop()
	os.Exit(code)
}

// run executes the command line in args and returns the process exit code.
func run(ctx context.Context, args []string, out io.Writer) int {
	err := newApp(out).RunContext(ctx, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ladder:", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case rejection.IsTransient(err):
		return exitTransient
	case errors.Is(err, errRejected):
		return exitRejected
	default:
		return exitFailure
	}
}

func newApp(out io.Writer) *cli.App {
	pushFlag := &cli.StringFlag{
		Name:    "pushgateway",
		Usage:   "Prometheus pushgateway URL that receives run metrics",
		EnvVars: []string{config.EnvPrefix + "PUSHGATEWAY_URL"},
	}

	return &cli.App{
		Name:   "ladder",
		Usage:  "BAR duel ladder maintenance",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a YAML config file",
				EnvVars: []string{config.EnvConfigPath},
			},
		},
		// Exit codes are derived by run; keep the cli from calling os.Exit.
		ExitErrHandler: func(*cli.Context, error) {},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.Context, c.String("config"))
			if err != nil {
				return err
			}
			if err := logger.Init(logger.WithWriter(out), logger.WithFormat(cfg.LogFormat)); err != nil {
				return err
			}
			if err := logger.SetLevelString(cfg.LogLevel); err != nil {
				logger.Get().Warn(c.Context, "invalid log_level; falling back to info",
					logger.String("log_level", cfg.LogLevel), logger.Error(err))
				_ = logger.SetLevelString("info")
			}
			metrics.Configure(
				metrics.WithNamespace(cfg.Metrics.Namespace),
				metrics.WithSubsystem(cfg.Metrics.Subsystem),
				metrics.WithConstLabels(cfg.Metrics.Labels),
				metrics.WithLatencyBuckets(cfg.Metrics.LatencyBuckets),
			)
			c.App.Metadata = map[string]interface{}{configKey: cfg}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "incremental",
				Usage:  "apply submissions not yet settled on top of the stored ladder",
				Flags:  []cli.Flag{pushFlag},
				Action: runAction(service.ModeIncremental),
			},
			{
				Name:   "full",
				Usage:  "rebuild the ladder from every submission",
				Flags:  []cli.Flag{pushFlag},
				Action: runAction(service.ModeFull),
			},
			{
				Name:  "serve",
				Usage: "serve the read API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address, overrides the config"},
				},
				Action: serveAction,
			},
			{
				Name:  "synth",
				Usage: "write a random submission history for rehearsal",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "count", Value: 50, Usage: "number of submissions"},
					&cli.Int64Flag{Name: "seed", Value: 1, Usage: "generator seed"},
					&cli.IntFlag{Name: "players", Value: 8, Usage: "size of the player pool"},
					&cli.IntFlag{Name: "invalid-ratio", Value: 25, Usage: "percent of submissions meant to be rejected"},
					&cli.TimestampFlag{Name: "start", Layout: time.RFC3339, Usage: "time of the first submission"},
					&cli.StringFlag{Name: "out", Usage: "submissions directory, overrides the config"},
				},
				Action: synthAction,
			},
		},
	}
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata[configKey].(*config.Config)
}

func runAction(mode service.Mode) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg := configFrom(c)
		pushURL := cfg.PushgatewayURL
		if c.IsSet("pushgateway") {
			pushURL = c.String("pushgateway")
		}

		svc := service.New(cfg,
			service.WithLogger(logger.Named("service")),
			service.WithPushgateway(pushURL),
		)
		rep, err := svc.Run(c.Context, mode)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.App.Writer, "%s run %s: %d pending, %d applied, %d rejected\n",
			rep.Mode, rep.RunID, rep.Pending, len(rep.Applied), len(rep.Rejected))
		if len(rep.Rejected) > 0 {
			return fmt.Errorf("%w: %d", errRejected, len(rep.Rejected))
		}
		return nil
	}
}

func serveAction(c *cli.Context) error {
	ctx := c.Context
	cfg := configFrom(c)
	log := logger.Get()

	addr := cfg.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	svc := service.New(cfg, service.WithLogger(logger.Named("service")))

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, cfg.MaxLeaderboardLimit).Register(ctx, mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}
	log.Info(ctx, "server stopped")
	return nil
}

func synthAction(c *cli.Context) error {
	cfg := configFrom(c)
	dir := cfg.SubmissionsDir
	if c.IsSet("out") {
		dir = c.String("out")
	}

	opts := []synth.Option{
		synth.WithPlayers(c.Int("players")),
		synth.WithInvalidRatio(c.Int("invalid-ratio")),
	}
	if start := c.Timestamp("start"); start != nil {
		opts = append(opts, synth.WithStart(*start))
	}

	store := repository.NewFileStore(dir, cfg.DataDir, repository.WithLogger(logger.Named("store")))
	subs := synth.New(c.Int64("seed"), opts...).History(c.Int("count"))
	for _, sub := range subs {
		if err := store.WriteSubmission(c.Context, sub); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.App.Writer, "wrote %d submissions to %s\n", len(subs), dir)
	return nil
}
