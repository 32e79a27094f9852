package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfgpkg "github.com/KaramelBytes/crimescope-cli/internal/config"
	"github.com/KaramelBytes/crimescope-cli/internal/logger"
	"github.com/KaramelBytes/crimescope-cli/internal/pipeline"
	"github.com/KaramelBytes/crimescope-cli/internal/relay"
	"github.com/KaramelBytes/crimescope-cli/internal/session"
	"github.com/KaramelBytes/crimescope-cli/internal/source"
	"github.com/spf13/cobra"
)

var (
	srvAddr     string
	srvProvider string
	srvTitle    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard and the /ask relay over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := currentConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			conf.ListenAddr = srvAddr
		}
		if cmd.Flags().Changed("provider") {
			conf.EngineProvider = srvProvider
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, conf)
	},
}

func serve(ctx context.Context, conf *cfgpkg.Global) error {
	log := logger.L()

	view, err := viewDefaults(conf)
	if err != nil {
		return err
	}
	src := source.New(source.FromGlobal(conf))
	// Bad inputs stop the server before it listens.
	ds, _, err := src.Both(ctx)
	if err != nil {
		return err
	}

	rt, err := newRuntime(conf, conf.EngineProvider, ds)
	if err != nil {
		return err
	}

	var sessions session.Store
	if conf.RedisAddr != "" {
		rs, err := session.NewRedisStore(ctx, session.OpenRedis(conf.RedisAddr, conf.RedisPassword, conf.RedisDB), conf.SessionTTL())
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		sessions = rs
		log.Info("session_store", "kind", "redis", "addr", conf.RedisAddr)
	} else {
		ms := session.NewMemoryStore(conf.SessionTTL())
		go ms.Run(ctx, time.Minute)
		sessions = ms
		log.Info("session_store", "kind", "memory", "ttl", conf.SessionTTL())
	}
	defer sessions.Close()

	srv := relay.New(src, rt, sessions, relay.Options{
		Title:         srvTitle,
		Provider:      conf.EngineProvider,
		EngineTimeout: conf.EngineTimeout(),
		AskRatePerMin: conf.AskRatePerMin,
		CORSOrigins:   conf.CORSOrigins,
		View:          view,
	})
	hs := &http.Server{
		Addr:              conf.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", conf.ListenAddr, "provider", conf.EngineProvider)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.EngineTimeout()+5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	fmt.Println("✓ Server stopped")
	return nil
}

// viewDefaults maps the pipeline config onto the relay's per-request defaults.
func viewDefaults(conf *cfgpkg.Global) (relay.ViewDefaults, error) {
	if _, err := pipeline.LookupScale(conf.ColorScale, conf.CustomScale); err != nil {
		return relay.ViewDefaults{}, err
	}
	win, err := pipeline.ParseWindow(conf.ColorWindow)
	if err != nil {
		return relay.ViewDefaults{}, err
	}
	return relay.ViewDefaults{
		Category:    conf.DefaultCategory,
		Scale:       conf.ColorScale,
		CustomScale: conf.CustomScale,
		Window:      win,
		Override:    rangeOverride(conf),
		Join:        pipeline.JoinOptions{NormalizeNames: conf.JoinNormalizeNames},
		Hover:       pipeline.HoverOptions{AggregateCategory: conf.AggregateCategory},
		StrictHover: conf.StrictHover,
	}, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&srvAddr, "addr", "", "listen address (overrides listen_addr)")
	serveCmd.Flags().StringVar(&srvProvider, "provider", "", "engine provider: pandas | ollama (overrides engine_provider)")
	serveCmd.Flags().StringVar(&srvTitle, "title", "California Crime Map", "dashboard title")
}
