package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"winescan/internal/catalog"
	"winescan/internal/config"
	"winescan/internal/matcher"
	"winescan/internal/normalize"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the reference wine catalog",
	}
	catalogCmd.AddCommand(newCatalogImportCommand(ctx))
	catalogCmd.AddCommand(newCatalogSearchCommand(ctx))
	catalogCmd.AddCommand(newCatalogTopCommand(ctx))
	catalogCmd.AddCommand(newCatalogShowCommand(ctx))
	return catalogCmd
}

func newCatalogImportCommand(ctx *commandContext) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import wines from a JSON array of {id, name, rating, aliases, ...}",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(_ *config.Config, store *catalog.Store) error {
				written, err := store.ImportFile(cmd.Context(), args[0], catalog.ImportOptions{Replace: replace})
				if err != nil {
					return err
				}
				total, err := store.Count(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s wines (%s in catalog)\n",
					humanize.Comma(int64(written)), humanize.Comma(int64(total)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "Delete every existing wine before importing")
	return cmd
}

func newCatalogSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "search <label text>",
		Short: "Normalize label text and show the scored catalog candidates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(cfg *config.Config, store *catalog.Store) error {
				raw := strings.Join(args, " ")
				query := normalize.New(cfg.Normalizer.StopWords).Normalize(raw)
				m := matcher.FromConfig(cfg, store)
				result, err := m.Match(cmd.Context(), query.Text)
				if err != nil {
					return err
				}
				floor := m.Floor()
				scored := result.Scored
				if limit > 0 && len(scored) > limit {
					scored = scored[:limit]
				}
				if jsonOut {
					return writeJSON(cmd, searchView(query, floor, result.Best, scored))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Normalized: %q (floor %s)\n", query.Text, formatScore(floor))
				if len(scored) == 0 {
					fmt.Fprintln(out, "No catalog candidates.")
					return nil
				}
				colors := newPalette(out)
				rows := make([][]string, 0, len(scored))
				for _, c := range scored {
					composite := formatScore(c.Composite)
					if c.Composite >= floor {
						composite = colors.ok.Sprint(composite)
					} else {
						composite = colors.dim.Sprint(composite)
					}
					rows = append(rows, []string{
						strconv.FormatInt(c.Entry.ID, 10),
						c.Entry.Name,
						c.Form,
						fmt.Sprintf("%.1f", c.Entry.Rating),
						composite,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Wine", "Matched form", "Rating", "Composite"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum candidates to show (0 shows all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print candidates as JSON")
	return cmd
}

type searchCandidate struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Form      string         `json:"matched_form"`
	Rating    float64        `json:"rating"`
	Scores    matcher.Scores `json:"scores"`
	Composite float64        `json:"composite"`
}

type searchOutput struct {
	Raw        string            `json:"raw_text"`
	Normalized string            `json:"normalized_text"`
	Floor      float64           `json:"floor"`
	BestID     *int64            `json:"best_id"`
	Candidates []searchCandidate `json:"candidates"`
}

func searchView(query normalize.Query, floor float64, best *matcher.Candidate, scored []matcher.Candidate) searchOutput {
	out := searchOutput{Raw: query.Raw, Normalized: query.Text, Floor: floor, Candidates: make([]searchCandidate, 0, len(scored))}
	if best != nil {
		id := best.Entry.ID
		out.BestID = &id
	}
	for _, c := range scored {
		out.Candidates = append(out.Candidates, searchCandidate{
			ID:        c.Entry.ID,
			Name:      c.Entry.Name,
			Form:      c.Form,
			Rating:    c.Entry.Rating,
			Scores:    c.Scores,
			Composite: c.Composite,
		})
	}
	return out
}

func newCatalogTopCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "top",
		Short: "List the highest rated wines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(_ *config.Config, store *catalog.Store) error {
				entries, err := store.TopRated(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty; run `winescan catalog import <file>`.")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(e.ID, 10),
						e.Name,
						fmt.Sprintf("%.1f", e.Rating),
						e.Region,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Wine", "Rating", "Region"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of wines to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print wines as JSON")
	return cmd
}

func newCatalogShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one catalog wine with its aliases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid wine id %q", args[0])
			}
			return ctx.withCatalog(func(_ *config.Config, store *catalog.Store) error {
				entry, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, entry)
				}
				rows := [][]string{
					{"ID", strconv.FormatInt(entry.ID, 10)},
					{"Name", entry.Name},
					{"Rating", fmt.Sprintf("%.1f", entry.Rating)},
					{"Winery", entry.Winery},
					{"Varietal", entry.Varietal},
					{"Region", entry.Region},
					{"Aliases", strings.Join(entry.Aliases, ", ")},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Field", "Value"},
					rows,
					[]columnAlignment{alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the wine as JSON")
	return cmd
}
