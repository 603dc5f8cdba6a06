package commands

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"jarvis/internal/api"
	"jarvis/internal/config"
	"jarvis/internal/id"
	"jarvis/internal/redis"
	"jarvis/internal/service/ai"
	"jarvis/internal/service/assistant"
	"jarvis/internal/service/webhook"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context(), cfg)
	},
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ln, err := net.Listen("tcp", cfg.BasicConfig.ServerAddress)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.BasicConfig.ServerAddress)
	}
	return serve(ctx, cfg, ln)
}

// serve runs the API on ln until ctx is cancelled or a signal arrives.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	defer ln.Close()
	if err := id.Init(cfg.BasicConfig.NodeID); err != nil {
		return err
	}

	completer, err := ai.NewService(ctx, cfg.Completion)
	if err != nil {
		return errors.Wrap(err, "init completion client")
	}
	if cfg.Completion.APIKey == "" {
		log.Warn().Str("component", "dispatcher").Msg("OPENAI_API_KEY is not set; replies will fall back")
	}
	dispatcher := assistant.NewDispatcher(nil, completer, assistant.Config{
		APIKey:     cfg.Completion.APIKey,
		StallDelay: cfg.BasicConfig.StallDelay(),
	})
	notifier := webhook.NewNotifier(cfg.Webhook.URL, nil)

	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer rdb.Close()
		redis.NewFeed(rdb, cfg.Redis.Channel).Mirror(srvCtx, dispatcher.Conversation())
		log.Info().Str("component", "redis_feed").Str("channel", cfg.Redis.Channel).Msg("mirroring conversation")
	}

	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger())
	api.NewHandler(dispatcher, notifier).RegisterRoutes(router)

	httpSrv := &http.Server{
		Handler: router,
		// cancelling srvCtx also ends open event streams
		BaseContext: func(net.Listener) context.Context { return srvCtx },
	}

	eg := errgroup.Group{}
	eg.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("starting http server")
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvCancel()
			return err
		}
		return nil
	})
	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		return nil
	})

	err = eg.Wait()
	dispatcher.Wait()
	log.Info().Msg("server stopped")
	return err
}
