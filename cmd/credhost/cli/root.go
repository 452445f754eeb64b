// Package cli implements the credhost command-line interface using Cobra.
package cli

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
	dirs       []string
}

// NewRootCmd builds the credhost command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "credhost",
		Short: "Host for declarative API credential types",
		Long: `credhost loads credential type descriptors, stores the values users
enter for them and turns those values into request headers.

Descriptors are read from the built-in set and from every
<TypeName>.credentials.{yaml,yml,json,toml} file in the descriptor directories.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $CREDHOST_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	cmd.PersistentFlags().StringSliceVarP(&opts.dirs, "descriptors", "d", nil, "additional descriptor directories")

	cmd.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newFieldsCmd(opts),
		newApplyCmd(opts),
		newTokenCmd(opts),
		newRequestCmd(opts),
		newKeygenCmd(),
	)

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
