package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/homeopms/go-smartrx/internal/infrastructure/redpanda"
)

func topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage Redpanda topics",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create the consultation and dead letter topics if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(func(ctx context.Context, admin *redpanda.Admin) error {
				created, err := admin.EnsureTopics(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %d of %d topics\n", len(created), len(redpanda.Topics()))
				for _, name := range created {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(func(ctx context.Context, admin *redpanda.Admin) error {
				topics, err := admin.ListTopics(ctx)
				if err != nil {
					return err
				}
				for _, t := range topics {
					fmt.Fprintln(cmd.OutOrStdout(), t)
				}
				return nil
			})
		},
	})

	lagCmd := &cobra.Command{
		Use:   "lag",
		Short: "Show consumer group lag per partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			group, _ := cmd.Flags().GetString("group")
			return withAdmin(func(ctx context.Context, admin *redpanda.Admin) error {
				lag, err := admin.GroupLag(ctx, group)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-32s %-10s %s\n", "TOPIC", "PARTITION", "LAG")
				for _, l := range lag {
					fmt.Fprintf(out, "%-32s %-10d %d\n", l.Topic, l.Partition, l.Lag)
				}
				return nil
			})
		},
	}
	lagCmd.Flags().String("group", redpanda.DefaultConsumerConfig().GroupID, "Consumer group")
	cmd.AddCommand(lagCmd)

	return cmd
}

func withAdmin(fn func(ctx context.Context, admin *redpanda.Admin) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		return err
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, admin)
}
