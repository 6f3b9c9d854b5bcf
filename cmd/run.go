package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run <stage>",
	Short: "Run one pipeline stage",
	Long: `Run one pipeline stage by name.

Stages: sync_permits, sync_inspections, sync_amendments, sync_certificates,
sync_finaled_dates, compute_durations, compute_contractor_metrics.

Use --dry-run to fetch and compute without writing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Ensure migrations are current.
		if err := pipeline.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "run: migrate")
		}

		opts, err := parseRunFlags(cmd)
		if err != nil {
			return err
		}

		engine := buildEngine(pool)
		res, err := engine.Run(ctx, args[0], opts)
		if err != nil {
			return eris.Wrapf(err, "run %s", args[0])
		}

		zap.L().Info("stage complete", zap.String("stage", args[0]), zap.Int64("rows", res.Rows))
		fmt.Printf("%s: %d rows\n", args[0], res.Rows)
		return nil
	},
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("limit", 0, "source page size (default from config)")
	cmd.Flags().Int("pages", 0, "max pages per invocation (default from config)")
	cmd.Flags().Int("batch", 0, "permit batch size per source query (default from config)")
	cmd.Flags().String("since", "", "cursor override (YYYY-MM-DD or RFC3339)")
	cmd.Flags().Bool("dry-run", false, "fetch and compute without writing")
}

// parseRunFlags extracts pipeline.RunOpts from the cobra command flags.
func parseRunFlags(cmd *cobra.Command) (pipeline.RunOpts, error) {
	var opts pipeline.RunOpts
	opts.Limit, _ = cmd.Flags().GetInt("limit")
	opts.Pages, _ = cmd.Flags().GetInt("pages")
	opts.Batch, _ = cmd.Flags().GetInt("batch")
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")

	if raw, _ := cmd.Flags().GetString("since"); raw != "" {
		t, err := parseSinceFlag(raw)
		if err != nil {
			return opts, err
		}
		opts.Since = &t
	}
	return opts, nil
}

func parseSinceFlag(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("invalid --since value %q", raw)
}
