package commands

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"jarvis/internal/config"
	"jarvis/internal/models"
	"jarvis/internal/redis"
)

var errFeedDisabled = errors.New("redis feed is disabled; set REDIS_ADDR or redis.enabled")

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print conversation messages published on the redis feed",
	Long: `feed subscribes to the redis channel a running "jarvis serve" mirrors its
conversation to and prints every message as one JSON line until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runFeed(ctx, cfg.Redis, cmd.OutOrStdout())
	},
}

func runFeed(ctx context.Context, rcfg config.RedisConfig, w io.Writer) error {
	if !rcfg.Enabled {
		return errFeedDisabled
	}
	rdb, err := redis.NewRedisClient(rcfg)
	if err != nil {
		return errors.Wrap(err, "create redis client")
	}
	defer rdb.Close()

	enc := json.NewEncoder(w)
	err = redis.NewFeed(rdb, rcfg.Channel).Listen(ctx, func(msg models.Message) {
		if err := enc.Encode(msg); err != nil {
			log.Warn().Err(err).Str("component", "redis_feed").Int64("message_id", msg.ID).Msg("write feed message failed")
		}
	})
	if err != nil {
		return err
	}
	log.Info().Str("component", "redis_feed").Str("channel", rcfg.Channel).Msg("listening")
	<-ctx.Done()
	return nil
}
