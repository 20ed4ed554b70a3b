package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/ocr"
)

var (
	batchLimit     int
	batchNoArchive bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Extract fields from every receipt image in a directory",
	Long:  "Prints one JSON result per line in file name order, followed by a status summary on stderr.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		paths, err := collectImages(args[0], batchLimit)
		if err != nil {
			return err
		}

		env, err := initExtract(ctx, "batch", !batchNoArchive)
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := processBatch(ctx, paths, cfg.Batch.Concurrency, cfg.Batch.DocsPerSecond, env.Pipeline.Process)
		if err != nil {
			return err
		}
		if err := writeResultLines(cmd.OutOrStdout(), results); err != nil {
			return err
		}
		return writeResult(cmd.ErrOrStderr(), summarize(results))
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of images to process (0 = all)")
	batchCmd.Flags().BoolVar(&batchNoArchive, "no-archive", false, "do not save results to the store")
	rootCmd.AddCommand(batchCmd)
}

// collectImages lists the supported image files in dir, sorted by name.
func collectImages(dir string, limit int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "read dir %s", dir)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !ocr.Supported(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}

// processFunc extracts one document.
type processFunc func(ctx context.Context, path, id string) *model.DocumentResult

// processBatch runs process over paths with at most concurrency documents
// in flight and, when perSecond > 0, at most perSecond documents started
// per second. Results keep the order of paths.
func processBatch(ctx context.Context, paths []string, concurrency int, perSecond float64, process processFunc) ([]*model.DocumentResult, error) {
	if len(paths) == 0 {
		zap.L().Info("no images found")
		return nil, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var limiter *rate.Limiter
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}

	zap.L().Info("processing batch",
		zap.Int("images", len(paths)),
		zap.Int("concurrency", concurrency),
		zap.Float64("docs_per_second", perSecond),
	)

	results := make([]*model.DocumentResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		g.Go(func() error {
			// Queued work is dropped once the batch is cancelled.
			if gctx.Err() != nil {
				return nil
			}
			results[i] = process(gctx, path, "")
			return nil
		})
	}
	if err := gctx.Err(); err != nil {
		zap.L().Warn("batch cancelled, remaining images skipped", zap.Error(err))
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}

	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) < len(paths) {
		zap.L().Warn("batch interrupted", zap.Int("processed", len(out)), zap.Int("images", len(paths)))
	}
	return out, nil
}

func writeResultLines(w io.Writer, results []*model.DocumentResult) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return eris.Wrap(err, "write result")
		}
	}
	return nil
}

// batchSummary counts results per status.
type batchSummary struct {
	Total    int                  `json:"total"`
	ByStatus map[model.Status]int `json:"by_status"`
}

func summarize(results []*model.DocumentResult) batchSummary {
	s := batchSummary{Total: len(results), ByStatus: map[model.Status]int{}}
	for _, r := range results {
		s.ByStatus[r.Status]++
	}
	return s
}
