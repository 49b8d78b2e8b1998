package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/reviewpulse/internal/cli"
	"github.com/cloo-solutions/reviewpulse/internal/cli/admin"
	"github.com/cloo-solutions/reviewpulse/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pulsed",
		Short:         "Review insight pipeline",
		Long:          "pulsed embeds review text, clusters it per brand and turns weekly cluster trends into stored insights",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())
	rootCmd.AddCommand(admin.EmbedCmd())
	rootCmd.AddCommand(admin.ClusterCmd())
	rootCmd.AddCommand(admin.InsightsCmd())
	rootCmd.AddCommand(admin.RunCmd())
	rootCmd.AddCommand(admin.ArchiveCmd())

	env, err := config.EnvVars()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	help := cli.HelpJSON{Root: rootCmd, Env: env}
	help.Register()

	if handled, err := help.Handle(os.Args, os.Stdout); handled {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
