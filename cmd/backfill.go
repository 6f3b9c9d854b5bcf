package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/pipeline"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill <stage>",
	Short: "Run a stage repeatedly until the offset walk completes",
	Long: `Run a stage in offset-driven backfill mode, feeding each reported
nextOffset back in until the stage reports done. Useful for the initial
load of sync_permits, sync_inspections, sync_amendments, and
compute_durations.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := pipeline.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "backfill: migrate")
		}

		opts, err := parseRunFlags(cmd)
		if err != nil {
			return err
		}
		offset, _ := cmd.Flags().GetInt("offset")

		engine := buildEngine(pool)
		var total int64
		for {
			opts.Offset = &offset
			res, err := engine.Run(ctx, args[0], opts)
			if err != nil {
				return eris.Wrapf(err, "backfill %s at offset %d", args[0], offset)
			}
			total += res.Rows

			next, ok := counterInt(res.Counters, "nextOffset")
			if !ok {
				return eris.Errorf("backfill: stage %s does not report nextOffset", args[0])
			}
			done, _ := counterBool(res.Counters, "done")

			zap.L().Info("backfill step",
				zap.String("stage", args[0]),
				zap.Int("offset", offset),
				zap.Int("next_offset", next),
				zap.Bool("done", done),
			)
			if done {
				break
			}
			if next <= offset {
				return eris.Errorf("backfill: offset did not advance past %d", offset)
			}
			offset = next
		}

		fmt.Printf("%s backfill complete: %d rows\n", args[0], total)
		return nil
	},
}

func init() {
	addRunFlags(backfillCmd)
	backfillCmd.Flags().Int("offset", 0, "starting offset")
	rootCmd.AddCommand(backfillCmd)
}

func counterInt(counters map[string]any, key string) (int, bool) {
	switch v := counters[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func counterBool(counters map[string]any, key string) (bool, bool) {
	v, ok := counters[key].(bool)
	return v, ok
}
