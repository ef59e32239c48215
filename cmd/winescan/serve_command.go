package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"winescan/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var development bool
	var noLogFile bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan API in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(),
				Development: development,
				Bind:        bind,
				NoLogFile:   noLogFile,
				Ready: func(addr string) {
					fmt.Fprintf(out, "winescan listening on http://%s\n", addr)
				},
			})
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override server.bind")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log lines")
	cmd.Flags().BoolVar(&noLogFile, "no-log-file", false, "Log to stderr only")
	return cmd
}
