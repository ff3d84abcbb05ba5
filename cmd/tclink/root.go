package main

import (
	"context"
	"fmt"
	"os"

	"github.com/metalagman/tclink/internal/config"
	"github.com/metalagman/tclink/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

var (
	cfgFile string
	debug   bool
	rootCmd = newRootCmd()
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tclink",
		Short:         "tclink links generated test cases to acceptance criteria",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logging.Init(debug)
		return config.LoadEnvFile(".env")
	}
	cmd.AddCommand(initCmd())
	cmd.AddCommand(linkCmd())
	cmd.AddCommand(acCmd())
	cmd.AddCommand(runsCmd())
	cmd.AddCommand(reportCmd())
	cmd.AddCommand(uiCmd())
	cmd.AddCommand(mcpCmd())
	return cmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		return fmt.Errorf("bind config flag: %w", err)
	}
	return rootCmd.ExecuteContext(ctx)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
}
