package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/jobsh/internal/config"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with interpreter configuration files",
	}
	cmd.AddCommand(newConfigLintCmd(opts))
	return cmd
}

func newConfigLintCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate an interpreter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = config.DefaultPath()
			}

			if _, err := config.Load(path, false); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", path)
			return nil
		},
	}
	return cmd
}
