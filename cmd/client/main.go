package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type clientFlags struct {
	server string
	apiKey string
	userID string
	role   string
}

func newRootCommand() *cobra.Command {
	flags := &clientFlags{}
	var client *AssetClient

	root := &cobra.Command{
		Use:           "placement-assets-client",
		Short:         "Upload, fetch and delete resumes and logos",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.userID == "" {
				return fmt.Errorf("--user is required")
			}
			client = NewAssetClient(flags.server, flags.apiKey, flags.userID, flags.role, cmd.OutOrStdout())
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flags.server, "server", envOr("PLACEMENT_SERVER", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&flags.apiKey, "api-key", os.Getenv("PLACEMENT_API_KEY"), "API key")
	root.PersistentFlags().StringVar(&flags.userID, "user", "", "user id to act as")
	root.PersistentFlags().StringVar(&flags.role, "role", "", "student or company (defaults from the asset kind)")

	roleFor := func(kind string) string {
		if flags.role != "" {
			return flags.role
		}
		if kind == "logo" {
			return "company"
		}
		return "student"
	}

	root.AddCommand(&cobra.Command{
		Use:   "upload <resume|logo> <file>",
		Short: "Upload and replace the current asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client.role = roleFor(args[0])
			url, err := client.UploadFile(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", url)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "get <resume|logo>",
		Short: "Print the current asset URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client.role = roleFor(args[0])
			url, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "delete <resume|logo>",
		Short: "Delete the current asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client.role = roleFor(args[0])
			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s deleted\n", args[0])
			return nil
		},
	})

	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
