package main

import (
	"context"
	"fmt"
	"io"

	"github.com/alfredjeanlab/wagate/internal/client"
	"github.com/alfredjeanlab/wagate/internal/ui"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:     "login <tenant>",
	Short:   "Start a tenant's session (pairing QR is pushed to watchers)",
	GroupID: "session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		regenerate, _ := cmd.Flags().GetBool("regenerate")
		status, err := gatewayClient.Login(context.Background(), args[0], regenerate)
		if err != nil {
			return err
		}
		return emit(map[string]string{"status": string(status)}, func(w io.Writer) {
			fmt.Fprintf(w, "%s: %s\n", args[0], ui.RenderEvent(string(status)))
		})
	},
}

var infoCmd = &cobra.Command{
	Use:     "info <tenant>",
	Short:   "Show the account a tenant is logged in as",
	GroupID: "session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := gatewayClient.Info(context.Background(), args[0])
		if err != nil {
			return err
		}
		return emit(profile, func(w io.Writer) { printProfile(w, profile) })
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout <tenant>",
	Short:   "Log a tenant's session out and discard it",
	GroupID: "session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := gatewayClient.Logout(context.Background(), args[0]); err != nil {
			return err
		}
		return emit(map[string]string{"status": "logged_out"}, func(w io.Writer) {
			fmt.Fprintf(w, "%s: %s\n", args[0], ui.RenderEvent("logged_out"))
		})
	},
}

var sendCmd = &cobra.Command{
	Use:     "send <tenant> <phone> <text>",
	Short:   "Send a message from a tenant's session",
	GroupID: "session",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		attachment, _ := cmd.Flags().GetString("attachment")
		label, _ := cmd.Flags().GetString("label")

		resp, err := gatewayClient.Send(context.Background(), args[0], &client.SendRequest{
			PhoneNumber:     args[1],
			Text:            args[2],
			AttachmentURL:   attachment,
			AttachmentLabel: label,
		})
		if err != nil {
			return err
		}
		return emit(resp, func(w io.Writer) {
			kind := "message"
			if resp.WithMedia {
				kind = "message with attachment"
			}
			fmt.Fprintf(w, "sent %s to %s\n", kind, ui.RenderAccent(resp.To))
		})
	},
}

func init() {
	loginCmd.Flags().Bool("regenerate", false, "discard any existing session and pair again")
	sendCmd.Flags().String("attachment", "", "URL of an image or document to attach")
	sendCmd.Flags().String("label", "", "file name shown to the recipient")
}
