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

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/recera/liveclient/cmd/livectl/internal/config"
	"github.com/recera/liveclient/cmd/livectl/internal/ui"
	"github.com/recera/liveclient/internal/logging"
	"github.com/recera/liveclient/pkg/live"
)

type connectFlags struct {
	configPath  string
	url         string
	topic       string
	container   string
	page        string
	params      map[string]string
	heartbeat   time.Duration
	maxAttempts int
	metricsAddr string
	logLevel    string
	watch       bool
	tui         bool
}

func newConnectCommand() *cobra.Command {
	var f connectFlags

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join a live view and render it",
		Long: `Connects to a live view endpoint, joins the topic and keeps the
container's markup in sync with the server. Without --tui every render is
printed to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return runConnect(cmd.Context(), cmd.OutOrStdout(), cfg, f)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")
	cmd.Flags().StringVar(&f.url, "url", "", "websocket endpoint")
	cmd.Flags().StringVarP(&f.topic, "topic", "t", "", "topic to join")
	cmd.Flags().StringVar(&f.container, "container", "", "id of the mount element")
	cmd.Flags().StringVar(&f.page, "page", "", "HTML shell holding the mount element")
	cmd.Flags().StringToStringVarP(&f.params, "param", "p", nil, "join params (key=value)")
	cmd.Flags().DurationVar(&f.heartbeat, "heartbeat", 0, "heartbeat interval (0 disables)")
	cmd.Flags().IntVar(&f.maxAttempts, "max-attempts", 0, "reconnect attempts before giving up (0 retries forever)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().BoolVar(&f.watch, "watch-config", false, "reconnect with new settings when the config file changes")
	cmd.Flags().BoolVar(&f.tui, "tui", false, "interactive terminal viewer")

	return cmd
}

// resolveConfig layers flags the user set over the loaded config
func resolveConfig(cmd *cobra.Command, f connectFlags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	applyFlags(cmd, f, &cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, f connectFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("url") {
		cfg.URL = f.url
	}
	if changed("topic") {
		cfg.Topic = f.topic
	}
	if changed("container") {
		cfg.Container = f.container
	}
	if changed("page") {
		cfg.Page = f.page
	}
	if changed("param") {
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		for k, v := range f.params {
			cfg.Params[k] = v
		}
	}
	if changed("heartbeat") {
		cfg.Heartbeat = f.heartbeat
	}
	if changed("max-attempts") {
		cfg.Reconnect.MaxAttempts = f.maxAttempts
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
}

func runConnect(parent context.Context, out io.Writer, cfg config.Config, f connectFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := newLogger(cfg, f.tui)
	if err != nil {
		return err
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := live.NewMetrics(reg)

	var (
		obs     observer
		program *tea.Program
		active  = &activeSession{}
	)
	if f.tui {
		program = tea.NewProgram(ui.NewModel(cfg.Topic, active), tea.WithAltScreen(), tea.WithContext(ctx))
		obs = teaObserver{program: program}
	} else {
		obs = &printObserver{out: out, log: log}
	}

	start := func(cfg config.Config) error {
		s, err := newSession(cfg, log, metrics, obs)
		if err != nil {
			return err
		}
		active.Swap(s)
		s.Start()
		log.Info("session started", zap.String("url", cfg.URL), zap.String("topic", cfg.Topic))
		return nil
	}
	if err := start(cfg); err != nil {
		return err
	}
	defer active.Close()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, reg, log) })
	}

	if f.watch && f.configPath != "" {
		reload := func() {
			next, err := config.Load(f.configPath)
			if err == nil {
				err = next.Validate()
			}
			if err != nil {
				log.Warn("config reload rejected", zap.Error(err))
				obs.Failed(err)
				return
			}
			if err := start(next); err != nil {
				log.Error("restart failed", zap.Error(err))
				obs.Failed(err)
			}
		}
		g.Go(func() error { return watchConfig(ctx, f.configPath, log, reload) })
	}

	if program != nil {
		g.Go(func() error {
			defer stop()
			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("viewer: %w", err)
			}
			return nil
		})
	} else {
		g.Go(func() error {
			<-ctx.Done()
			return nil
		})
	}

	return g.Wait()
}

func newLogger(cfg config.Config, tui bool) (*zap.Logger, error) {
	// the viewer owns the terminal
	if tui && cfg.Log.Output == "" {
		return zap.NewNop(), nil
	}
	return logging.New(cfg.Logging())
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// teaObserver forwards session events to the viewer
type teaObserver struct {
	program *tea.Program
}

func (o teaObserver) Rendered(preview, _ string) {
	o.program.Send(ui.RenderMsg{Preview: preview})
}

func (o teaObserver) Status(connected bool, state string) {
	o.program.Send(ui.StatusMsg{Connected: connected, State: state})
}

func (o teaObserver) Failed(err error) {
	o.program.Send(ui.ErrorMsg{Err: err})
}

// printObserver writes every render to out
type printObserver struct {
	out io.Writer
	log *zap.Logger
}

func (o *printObserver) Rendered(_, markup string) {
	fmt.Fprintln(o.out, markup)
}

func (o *printObserver) Status(connected bool, state string) {
	o.log.Info("status", zap.Bool("connected", connected), zap.String("channel", state))
}

func (o *printObserver) Failed(err error) {
	o.log.Warn("session error", zap.Error(err))
}
