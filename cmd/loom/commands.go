package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/loom/internal/extensions"
	"github.com/haasonsaas/loom/internal/loader"
	"github.com/haasonsaas/loom/pkg/extension"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loom",
		Short:         "Loom extension runtime host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(buildRunCmd())
	root.AddCommand(buildExtensionsCmd())
	root.AddCommand(buildToolsCmd())
	root.AddCommand(buildValidateCmd())
	return root
}

func buildRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load all configured extensions and serve until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := buildHost(configPath)
			if err != nil {
				return err
			}
			defer host.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := host.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "loom.yaml", "path to config file")
	return cmd
}

func buildExtensionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extensions",
		Short: "Manage extensions",
	}
	cmd.AddCommand(buildExtensionsListCmd())
	return cmd
}

func buildExtensionsListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded extensions",
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := buildHost(configPath)
			if err != nil {
				return err
			}
			defer host.Close()
			host.Manager.LoadAll(cmd.Context())

			rows := extensions.List(host.Manager.Registry(), host.Config.Extensions, host.Manager.ManifestIDs())
			for _, row := range rows {
				detail := row.Scope
				if row.Reason != "" {
					detail = row.Reason
				}
				fmt.Printf("%-24s %-10s %-10s %s\n", row.ID, row.Version, row.Status, detail)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "loom.yaml", "path to config file")
	return cmd
}

func buildToolsCmd() *cobra.Command {
	var (
		configPath string
		projectDir string
	)

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Show the tools visible to a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := buildHost(configPath)
			if err != nil {
				return err
			}
			defer host.Close()
			host.Manager.LoadAll(cmd.Context())

			task := extension.Task{ID: "cli", ProjectDir: projectDir}
			for _, rt := range host.Manager.Tools(context.Background(), task, "", nil) {
				fmt.Printf("%-28s %-20s %s\n", rt.Tool.Name, rt.ExtensionName, rt.Tool.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "loom.yaml", "path to config file")
	cmd.Flags().StringVar(&projectDir, "project", "", "project directory scoping the task")
	return cmd
}

func buildValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <dir>",
		Short: "Validate an extension module's manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, modulePath, err := loader.New(nil).Resolve(args[0])
			if err != nil {
				return err
			}

			out := map[string]any{
				"id":         manifest.ID,
				"name":       manifest.ToMetadata().Name,
				"version":    manifest.Version,
				"module":     modulePath,
				"projectDir": manifest.ProjectDir,
			}
			payload, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(payload))
			return nil
		},
	}
	return cmd
}
