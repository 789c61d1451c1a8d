/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shelfmark/apiserver/config"
	"github.com/shelfmark/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

const catalogEventsChannel = "catalog.events"

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Work with catalog events",
}

var eventsListenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Consume catalog events and print them to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		bus, err := newEventBus(cmd.Context(), cfg.MQ)
		if err != nil {
			return err
		}
		if bus == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer func() {
			_ = bus.Close()
		}()

		return bus.Subscribe(cmd.Context(), catalogEventsChannel, func(ctx context.Context, msg mq.Message) error {
			fmt.Fprintf(os.Stdout, "%s %s\n", msg.ID, string(msg.Data))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsListenCmd)
}

func newEventBus(ctx context.Context, cfg config.MQConfig) (*mq.MQ, error) {
	switch cfg.Backend {
	case "", config.MQBackendNone:
		return nil, nil
	case config.MQBackendRabbitMQ:
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.New(client), nil
	case config.MQBackendPubSub:
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return mq.New(client), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}
