package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"winescan/internal/preflight"
)

type doctorRow struct {
	Check  string `json:"check"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, catalog, vision service, LLM provider, and cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)

			if jsonOut {
				rows := make([]doctorRow, 0, len(results))
				for _, r := range results {
					rows = append(rows, doctorRow{Check: r.Name, Status: statusWord(r), Detail: r.Detail})
				}
				if err := writeJSON(cmd, rows); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colors := newPalette(out)
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					status := statusWord(r)
					switch status {
					case "pass":
						status = colors.ok.Sprint(status)
					case "skip":
						status = colors.dim.Sprint(status)
					default:
						status = colors.bad.Sprint(status)
					}
					rows = append(rows, []string{r.Name, status, r.Detail})
				}
				fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			}
			if preflight.Failed(results) {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	return cmd
}

func statusWord(r preflight.Result) string {
	switch {
	case r.Skipped:
		return "skip"
	case r.Passed:
		return "pass"
	default:
		return "fail"
	}
}
