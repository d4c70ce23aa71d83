// Package cmd contains the postraft-facade CLI commands
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"postraft-facade/config"
	"postraft-facade/internal/logger"
	"postraft-facade/internal/output"
)

var (
	colorMode string
	quiet     bool
	verbose   bool
	cfg       *config.Config
	printer   *output.Printer
	version   = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "postraft-facade",
	Short: "Postraft client core: local facade and CLI",
	Long: `postraft-facade keeps the Postraft session and a query cache in front of
the remote API, and serves them to a UI over a local HTTP facade.

Example usage:
  postraft-facade serve                         # Run the local facade
  postraft-facade login --email you@example.com # Sign in and remember the token
  postraft-facade whoami                        # Show the signed-in account
  postraft-facade products --category kitchen   # List products
  postraft-facade templates --format story      # List templates
  postraft-facade posters stats                 # Show the generation quota`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// ReportError prints err for the user and returns the process exit code.
func ReportError(err error) int {
	p := printer
	if p == nil {
		p = output.NewPrinter(output.PrinterOptions{})
	}
	cliErr := output.FromError(err)
	p.FormatError(cliErr)
	return cliErr.ExitCode
}

func init() {
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "color output: auto, always or never")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress everything but errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig builds the printer, the CLI logger and the configuration.
func initConfig(cmd *cobra.Command) error {
	mode, err := output.ParseColorMode(colorMode)
	if err != nil {
		return &output.CLIError{Summary: err.Error(), ExitCode: output.ExitUsageError}
	}
	printer = output.NewPrinter(output.PrinterOptions{
		ColorMode: mode,
		Quiet:     quiet,
		Out:       cmd.OutOrStdout(),
		Err:       cmd.ErrOrStderr(),
	})

	level := "warn"
	if verbose {
		level = "debug"
	} else if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	logger.Init(logger.Options{Level: level, Format: logger.FormatText, Output: cmd.ErrOrStderr()})

	cfg, err = config.Load()
	if err != nil {
		return &output.CLIError{
			Summary:    "Invalid configuration",
			Detail:     err.Error(),
			Suggestion: "check the environment variables or the .env file",
			ExitCode:   output.ExitConfigError,
		}
	}
	return nil
}

// commandContext returns the command's context, falling back to Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func usageError(format string, args ...any) error {
	return &output.CLIError{Summary: fmt.Sprintf(format, args...), ExitCode: output.ExitUsageError}
}

var errNoConfig = errors.New("configuration not loaded")
