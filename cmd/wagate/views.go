package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status <tenant>",
	Short:   "Show a tenant's session state",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := gatewayClient.Status(context.Background(), args[0])
		if err != nil {
			return err
		}
		return emit(info, func(w io.Writer) { printSessionInfo(w, info) })
	},
}

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Short:   "List sessions with their recent activity",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := gatewayClient.Sessions(context.Background())
		if err != nil {
			return err
		}
		return emit(resp, func(w io.Writer) { printSessions(w, resp) })
	},
}

var historyCmd = &cobra.Command{
	Use:     "history <tenant>",
	Short:   "Show a tenant's recorded lifecycle events",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		events, err := gatewayClient.History(context.Background(), args[0], limit)
		if err != nil {
			return err
		}
		return emit(events, func(w io.Writer) { printHistory(w, events) })
	},
}

func init() {
	historyCmd.Flags().Int("limit", 0, "maximum number of events (server default when 0)")
}
