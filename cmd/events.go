/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lifelog/apiserver/internal/logger"
	"github.com/lifelog/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

var eventsChannel string

// eventsCmd groups the activity event stream tooling.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect activity change events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Subscribe to the activity event channel and log every event",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if eventsChannel != "" {
			cfg.Events.Channel = eventsChannel
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.New(ctx, cfg.Events)
		if err != nil {
			return fmt.Errorf("init mq: %w", err)
		}
		if broker == nil {
			return errors.New("events are disabled; set MQ_BACKEND to rabbitmq, pubsub or kafka")
		}
		defer broker.Close()

		logger.Info("events.tail", "backend", cfg.Events.Backend, "channel", cfg.Events.Channel)
		err = broker.Subscribe(ctx, cfg.Events.Channel, logActivityEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscribe: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().StringVar(&eventsChannel, "channel", "", "channel to subscribe to (defaults to the configured events channel)")
}

// logActivityEvent acknowledges undecodable messages so they are not
// redelivered forever.
func logActivityEvent(_ context.Context, msg mq.Message) error {
	event, err := mq.DecodeActivityEvent(msg)
	if err != nil {
		logger.Warn("events.decode_failed", "message_id", msg.ID, "err", err)
		return nil
	}
	logger.Info("events.received",
		"message_id", msg.ID,
		"type", event.Type,
		"activity_id", event.ActivityID,
		"user_id", event.UserID,
		"occurred_at", event.OccurredAt,
	)
	return nil
}
