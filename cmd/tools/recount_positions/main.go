package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"jobhub/internal/config"
	"jobhub/internal/errors"
	"jobhub/internal/listing"
	"jobhub/internal/logger"
	"jobhub/internal/storage"
)

// driftStore is the slice of storage the repair needs.
type driftStore interface {
	ListPositionDrift(ctx context.Context, limit int) ([]storage.PositionDrift, error)
	RecountPositions(ctx context.Context, jobID int64) (storage.PositionDrift, error)
}

var (
	dryRun bool
	limit  int
)

var rootCmd = &cobra.Command{
	Use:   "recount_positions",
	Short: "Repair jobs whose positions_filled disagrees with their accepted applications",
	Long: `recount_positions compares every job's positions_filled counter with the
number of its ACCEPTED applications and, unless --dry-run is set, recounts
each drifted job under a row lock and overwrites the counter.

Examples:
  recount_positions                       # report drift only
  recount_positions --dry-run=false       # fix up to 200 jobs
  recount_positions --dry-run=false --limit 1000`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", true, "If true, do not persist updates; just print changes")
	rootCmd.Flags().IntVar(&limit, "limit", 200, "Max number of jobs to process in one run")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	log, err := logger.Initialize(cfg.LogJSON, cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "initialize logger")
	}
	defer log.Sync()

	ctx := cmd.Context()
	db, err := storage.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	fixed, err := recount(ctx, db, cmd.OutOrStdout(), dryRun, limit)
	if err != nil {
		return err
	}

	// listings show positions_filled; the in-process cache dies with the API
	// restart, the shared one has to be retired explicitly
	if fixed > 0 && cfg.RedisAddr != "" {
		client, err := listing.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			log.Warnw("Listing cache not invalidated", logger.FieldError, err)
			return nil
		}
		defer client.Close()
		if err := listing.NewRedisCache(client, cfg.ListingCacheTTL).Invalidate(ctx); err != nil {
			log.Warnw("Listing cache not invalidated", logger.FieldError, err)
		}
	}
	return nil
}

// recount reports every drifted job and, unless dryRun, fixes it. The drift
// list only picks candidates; each fix recounts under the job's row lock so
// transitions committed since the scan are not lost. It returns how many
// counters were rewritten.
func recount(ctx context.Context, store driftStore, out io.Writer, dryRun bool, limit int) (int, error) {
	drift, err := store.ListPositionDrift(ctx, limit)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(out, "Found %d jobs with drifted positions_filled (limit %d)\n", len(drift), limit)

	fixed := 0
	for _, d := range drift {
		if dryRun {
			fmt.Fprintf(out, "[dry-run] job %s (id=%d): %d -> %d\n", d.JobGUID, d.JobID, d.Stored, d.Accepted)
			continue
		}
		got, err := store.RecountPositions(ctx, d.JobID)
		if err != nil {
			fmt.Fprintf(out, "job %s (id=%d): recount failed: %v\n", d.JobGUID, d.JobID, err)
			continue
		}
		if got.Stored == got.Accepted {
			fmt.Fprintf(out, "job %s (id=%d): already consistent at %d\n", got.JobGUID, got.JobID, got.Accepted)
			continue
		}
		fixed++
		fmt.Fprintf(out, "job %s (id=%d): %d -> %d\n", got.JobGUID, got.JobID, got.Stored, got.Accepted)
	}
	if !dryRun {
		fmt.Fprintf(out, "Updated %d of %d jobs\n", fixed, len(drift))
	}
	return fixed, nil
}
