package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"winescan/internal/daemonrun"
	"winescan/internal/recognition"
	"winescan/internal/textutil"
	"winescan/internal/vision"
)

// evalCase is one labelled shelf. Detections is a path relative to the corpus
// file; Detection may be given inline instead.
type evalCase struct {
	Name       string            `json:"name"`
	Detections string            `json:"detections,omitempty"`
	Detection  *vision.Detection `json:"detection,omitempty"`
	Expected   []string          `json:"expected"`
}

type caseScore struct {
	Name      string   `json:"name"`
	Expected  int      `json:"expected"`
	Predicted int      `json:"predicted"`
	Hits      int      `json:"hits"`
	Listed    int      `json:"listed"`
	Missed    []string `json:"missed"`
	Extra     []string `json:"extra"`
	Degraded  bool     `json:"degraded"`
}

type evalReport struct {
	Cases     []caseScore `json:"cases"`
	Precision float64     `json:"precision"`
	Recall    float64     `json:"recall"`
}

func newEvalCommand(ctx *commandContext) *cobra.Command {
	var useLLM bool
	var jsonOut bool
	var minRecall float64

	cmd := &cobra.Command{
		Use:   "eval <corpus.json>",
		Short: "Measure recognition accuracy over labelled saved detections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cases, err := loadEvalCorpus(args[0])
			if err != nil {
				return err
			}
			cfg.LLM.Enabled = cfg.LLM.Enabled && useLLM
			logger, err := ctx.commandLogger()
			if err != nil {
				return err
			}
			rt, err := daemonrun.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			bar := progressbar.NewOptions(len(cases),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("evaluating"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionSetVisibility(shouldColorize(cmd.ErrOrStderr())),
			)
			report := evalReport{Cases: make([]caseScore, 0, len(cases))}
			for i, c := range cases {
				name := c.Name
				if name == "" {
					name = "case-" + strconv.Itoa(i+1)
				}
				outcome, err := rt.Orchestrator.Recognize(cmd.Context(), recognition.Input{ImageID: name, Detection: *c.Detection})
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				score := scoreCase(c.Expected, outcome)
				score.Name = name
				report.Cases = append(report.Cases, score)
				_ = bar.Add(1)
			}
			_ = bar.Finish()
			report.Precision, report.Recall = totals(report.Cases)

			if jsonOut {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				printEvalReport(cmd, report)
			}
			if report.Recall < minRecall {
				return fmt.Errorf("recall %.3f below --min-recall %.3f", report.Recall, minRecall)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&useLLM, "llm", false, "Allow LLM escalation (off by default so runs are reproducible)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")
	cmd.Flags().Float64Var(&minRecall, "min-recall", 0, "Fail when overall recall is below this value")
	return cmd
}

func loadEvalCorpus(path string) ([]evalCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	var cases []evalCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	if len(cases) == 0 {
		return nil, errors.New("corpus has no cases")
	}
	base := filepath.Dir(path)
	for i := range cases {
		c := &cases[i]
		if c.Detection != nil {
			continue
		}
		if c.Detections == "" {
			return nil, fmt.Errorf("case %d: needs detections or detection", i+1)
		}
		file := c.Detections
		if !filepath.IsAbs(file) {
			file = filepath.Join(base, file)
		}
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", i+1, err)
		}
		det, err := vision.DecodeDetection(raw)
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", i+1, err)
		}
		c.Detection = &det
	}
	return cases, nil
}

// scoreCase compares positioned names against the expected wines. Names are
// compared folded; a wine that only made the fallback list counts as listed,
// not as a hit.
func scoreCase(expected []string, outcome recognition.Outcome) caseScore {
	want := make(map[string]string, len(expected))
	for _, name := range expected {
		if key := textutil.Fold(name); key != "" {
			want[key] = name
		}
	}
	score := caseScore{Expected: len(want), Degraded: outcome.Degraded, Missed: []string{}, Extra: []string{}}

	found := make(map[string]bool, len(want))
	for _, r := range outcome.Positioned {
		score.Predicted++
		key := textutil.Fold(r.Name)
		if _, ok := want[key]; ok && !found[key] {
			found[key] = true
			score.Hits++
			continue
		}
		score.Extra = append(score.Extra, r.Name)
	}
	for _, f := range outcome.Fallback {
		key := textutil.Fold(f.Name)
		if _, ok := want[key]; ok && !found[key] {
			score.Listed++
		}
	}
	for _, name := range expected {
		key := textutil.Fold(name)
		if _, ok := want[key]; ok && !found[key] {
			score.Missed = append(score.Missed, name)
			found[key] = true
		}
	}
	return score
}

func totals(cases []caseScore) (precision, recall float64) {
	var hits, predicted, expected int
	for _, c := range cases {
		hits += c.Hits
		predicted += c.Predicted
		expected += c.Expected
	}
	if predicted > 0 {
		precision = float64(hits) / float64(predicted)
	}
	if expected > 0 {
		recall = float64(hits) / float64(expected)
	}
	return precision, recall
}

func printEvalReport(cmd *cobra.Command, report evalReport) {
	out := cmd.OutOrStdout()
	colors := newPalette(out)
	rows := make([][]string, 0, len(report.Cases))
	for _, c := range report.Cases {
		status := colors.ok.Sprint("ok")
		switch {
		case c.Degraded:
			status = colors.warn.Sprint("degraded")
		case len(c.Missed) > 0 || len(c.Extra) > 0:
			status = colors.bad.Sprint("miss")
		}
		rows = append(rows, []string{
			c.Name,
			fmt.Sprintf("%d/%d", c.Hits, c.Expected),
			strconv.Itoa(c.Predicted),
			strconv.Itoa(c.Listed),
			status,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Case", "Hits", "Positioned", "Listed only", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "Precision %.3f  Recall %.3f\n", report.Precision, report.Recall)
}
