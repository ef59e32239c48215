package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"winescan/internal/api"
	"winescan/internal/daemonrun"
	"winescan/internal/logging"
	"winescan/internal/recognition"
	"winescan/internal/vision"
)

type recognizeOptions struct {
	detections string
	jsonOut    bool
	debug      bool
	policy     string
	noLLM      bool
}

func newRecognizeCommand(ctx *commandContext) *cobra.Command {
	var opts recognizeOptions

	cmd := &cobra.Command{
		Use:   "recognize [image]",
		Short: "Recognize the wines in one shelf photo",
		Long: "Recognize the wines in one shelf photo.\n\n" +
			"With --detections the vision service is skipped and a saved detection JSON is replayed instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var imagePath string
			if len(args) == 1 {
				imagePath = args[0]
			}
			return runRecognize(cmd, ctx, imagePath, opts)
		},
	}

	cmd.Flags().StringVar(&opts.detections, "detections", "", "Replay a saved vision detection JSON instead of calling the vision service")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the API response as JSON")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Include per-bottle traces")
	cmd.Flags().StringVar(&opts.policy, "unmatched", "", "Override recognition.unmatched_policy (drop or placeholder)")
	cmd.Flags().BoolVar(&opts.noLLM, "no-llm", false, "Disable the LLM fallback for this run")
	return cmd
}

func runRecognize(cmd *cobra.Command, ctx *commandContext, imagePath string, opts recognizeOptions) error {
	if imagePath == "" && opts.detections == "" {
		return errors.New("provide an image path or --detections")
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	switch policy := strings.ToLower(strings.TrimSpace(opts.policy)); policy {
	case "":
	case string(recognition.PolicyDrop), string(recognition.PolicyPlaceholder):
		cfg.Recognition.UnmatchedPolicy = policy
	default:
		return fmt.Errorf("--unmatched: unsupported value %q (want drop or placeholder)", opts.policy)
	}
	if opts.noLLM {
		cfg.LLM.Enabled = false
	}
	logger, err := ctx.commandLogger()
	if err != nil {
		return err
	}

	var image []byte
	if imagePath != "" {
		image, err = os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
	}

	var buildOpts []daemonrun.BuildOption
	if opts.detections != "" {
		buildOpts = append(buildOpts, daemonrun.WithDetector(vision.FileDetector{Path: opts.detections}))
	}
	rt, err := daemonrun.Build(cmd.Context(), cfg, logger, buildOpts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	imageID := uuid.NewString()
	runCtx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout())
	defer cancel()

	outcome, err := recognizeImage(runCtx, rt, logger, imageID, image)
	if err != nil {
		return err
	}

	resp := api.Assemble(imageID, outcome, opts.debug)
	if opts.jsonOut {
		return writeJSON(cmd, resp)
	}
	printOutcome(cmd, outcome, opts.debug)
	return nil
}

// recognizeImage mirrors the scan handler: a vision failure degrades to the
// top-rated list instead of failing the run.
func recognizeImage(ctx context.Context, rt *daemonrun.Runtime, logger *slog.Logger, imageID string, image []byte) (recognition.Outcome, error) {
	det, err := rt.Detector.Detect(ctx, image)
	if err != nil {
		if ctx.Err() != nil {
			return recognition.Outcome{}, ctx.Err()
		}
		logging.WarnWithContext(logger, "vision detection failed; listing top rated wines", "vision_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check vision.base_url or pass --detections"),
			logging.String(logging.FieldImpact, "no positioned results"),
		)
		return rt.Orchestrator.Degrade(ctx, "vision unavailable")
	}
	return rt.Orchestrator.Recognize(ctx, recognition.Input{ImageID: imageID, Detection: det})
}

func printOutcome(cmd *cobra.Command, outcome recognition.Outcome, debug bool) {
	out := cmd.OutOrStdout()
	colors := newPalette(out)

	if outcome.Degraded {
		fmt.Fprintln(out, colors.warn.Sprintf("Degraded: %s", outcome.DegradeReason))
	}
	if len(outcome.Positioned) == 0 {
		fmt.Fprintln(out, "No wines positioned on the shelf.")
	} else {
		rows := make([][]string, 0, len(outcome.Positioned))
		for _, r := range outcome.Positioned {
			rows = append(rows, []string{
				strconv.Itoa(r.BottleIndex),
				r.Name,
				formatRating(r.Rating),
				formatScore(r.Confidence),
				string(r.Source),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Bottle", "Wine", "Rating", "Confidence", "Source"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft},
		))
	}

	if len(outcome.Fallback) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Also on the shelf:")
		rows := make([][]string, 0, len(outcome.Fallback))
		for _, f := range outcome.Fallback {
			rows = append(rows, []string{f.Name, formatRating(f.Rating)})
		}
		fmt.Fprintln(out, renderTable([]string{"Wine", "Rating"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if debug && len(outcome.Steps) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(outcome.Steps))
		for _, s := range outcome.Steps {
			rows = append(rows, []string{
				strconv.Itoa(s.BottleIndex),
				s.RawText,
				s.NormalizedText,
				formatScore(s.Composite),
				string(s.Placement),
				colors.dim.Sprint(s.FailureReason),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Bottle", "Label text", "Normalized", "Composite", "Placement", "Reason"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
		))
	}
}
