package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/folio"
	"github.com/xraph/folio/config"
	"github.com/xraph/folio/observability"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/usage"
)

// command is one subcommand.
type command struct {
	description string
	run         func(ctx context.Context, e *env, args []string) error
}

// env is what every subcommand gets.
type env struct {
	cfg    *config.Config
	out    io.Writer
	logger *slog.Logger
}

var commands = map[string]command{
	"migrate":       {"Create or upgrade the store schema", runMigrate},
	"register-user": {"Register a user: register-user <email> [name]", runRegisterUser},
	"set-prefix":    {"Set a number prefix: set-prefix <user> <invoice|quote> <prefix>", runSetPrefix},
	"next-number":   {"Allocate a document number: next-number <user> <invoice|quote>", runNextNumber},
	"usage":         {"Show usage against plan limits: usage <user>", runUsage},
	"jobs":          {"Run a maintenance job once: jobs <purge-audit|expire-quotes>", runJobs},
	"serve-metrics": {"Run the engine jobs and serve Prometheus metrics", runServeMetrics},
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("folio", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to folio.yaml")
	fs.Usage = func() { usageText(stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usageText(stderr)
		return nil
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", rest[0])
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	return cmd.run(ctx, &env{
		cfg:    cfg,
		out:    stdout,
		logger: cfg.Log.NewLogger(stderr),
	}, rest[1:])
}

func usageText(w io.Writer) {
	fmt.Fprintf(w, "Usage: folio [-config path] <command> [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, commands[name].description)
	}
}

// open builds and starts an engine. One-shot commands never schedule jobs.
func (e *env) open(ctx context.Context, jobs bool, extra ...folio.Option) (*folio.Folio, error) {
	s, err := config.OpenStore(ctx, e.cfg.Store)
	if err != nil {
		return nil, err
	}

	cfg := *e.cfg
	cfg.Engine.EnableJobs = jobs && cfg.Engine.EnableJobs
	f := folio.New(s, append(cfg.EngineOptions(e.logger), extra...)...)
	if err := f.Start(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return f, nil
}

func withEngine(ctx context.Context, e *env, fn func(*folio.Folio) error) error {
	f, err := e.open(ctx, false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Stop(); cerr != nil {
			e.logger.Warn("stop engine", "error", cerr)
		}
	}()
	return fn(f)
}

func expectArgs(args []string, minimum, maximum int, synopsis string) error {
	if len(args) < minimum || len(args) > maximum {
		return fmt.Errorf("usage: folio %s", synopsis)
	}
	return nil
}

func runMigrate(ctx context.Context, e *env, _ []string) error {
	s, err := config.OpenStore(ctx, e.cfg.Store)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "migrated %s store\n", e.cfg.Store.Driver)
	return nil
}

func runRegisterUser(ctx context.Context, e *env, args []string) error {
	if err := expectArgs(args, 1, 2, "register-user <email> [name]"); err != nil {
		return err
	}
	name := ""
	if len(args) == 2 {
		name = args[1]
	}
	return withEngine(ctx, e, func(f *folio.Folio) error {
		u, err := f.RegisterUser(ctx, args[0], name)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, u.ID)
		return nil
	})
}

func runSetPrefix(ctx context.Context, e *env, args []string) error {
	if err := expectArgs(args, 3, 3, "set-prefix <user> <invoice|quote> <prefix>"); err != nil {
		return err
	}
	t, err := sequence.ParseDocumentType(args[1])
	if err != nil {
		return err
	}
	return withEngine(ctx, e, func(f *folio.Folio) error {
		return f.SetNumberPrefix(ctx, args[0], t, args[2])
	})
}

func runNextNumber(ctx context.Context, e *env, args []string) error {
	if err := expectArgs(args, 2, 2, "next-number <user> <invoice|quote>"); err != nil {
		return err
	}
	t, err := sequence.ParseDocumentType(args[1])
	if err != nil {
		return err
	}
	return withEngine(ctx, e, func(f *folio.Folio) error {
		n, err := f.AllocateNumber(ctx, args[0], t)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, n.String())
		return nil
	})
}

func runUsage(ctx context.Context, e *env, args []string) error {
	if err := expectArgs(args, 1, 1, "usage <user>"); err != nil {
		return err
	}
	return withEngine(ctx, e, func(f *folio.Folio) error {
		for _, m := range usage.Metrics() {
			r, err := f.CheckUsage(ctx, args[0], m)
			if err != nil {
				return err
			}
			limit := "unlimited"
			if !r.Limit.IsUnlimited() {
				limit = fmt.Sprint(int64(r.Limit))
			}
			fmt.Fprintf(e.out, "%-10s %d/%s\n", m, r.Current, limit)
		}
		return nil
	})
}

func runJobs(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	olderThan := fs.Duration("older-than", e.cfg.Jobs.AuditRetention, "purge audit entries older than this")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := expectArgs(fs.Args(), 1, 1, "jobs [-older-than d] <purge-audit|expire-quotes>"); err != nil {
		return err
	}

	return withEngine(ctx, e, func(f *folio.Folio) error {
		var (
			n   int64
			err error
		)
		switch job := fs.Arg(0); job {
		case "purge-audit":
			if *olderThan <= 0 {
				return errors.New("jobs: -older-than must be positive")
			}
			n, err = f.PurgeAuditEntries(ctx, time.Now().Add(-*olderThan))
		case "expire-quotes":
			n, err = f.ExpireQuotes(ctx)
		default:
			return fmt.Errorf("unknown job: %s", job)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "%s: %d affected\n", fs.Arg(0), n)
		return nil
	})
}

func runServeMetrics(ctx context.Context, e *env, _ []string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	f, err := e.open(ctx, true, folio.WithPlugin(metrics))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Stop(); cerr != nil {
			e.logger.Warn("stop engine", "error", cerr)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle(e.cfg.Metrics.Path, observability.Handler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := f.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              e.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.logger.Info("serving metrics", "addr", srv.Addr, "path", e.cfg.Metrics.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
