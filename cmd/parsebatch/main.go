package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/parsed-text/internal/batch"
	"github.com/raaihank/parsed-text/internal/cache"
	"github.com/raaihank/parsed-text/internal/config"
	"github.com/raaihank/parsed-text/internal/logger"
	"github.com/raaihank/parsed-text/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSONL)")
		outputFile = flag.String("output", "segments.jsonl", "Output JSONL file")
		batchSize  = flag.Int("batch-size", 0, "Batch size for processing (0 uses the configured value)")
		workers    = flag.Int("workers", 0, "Number of worker goroutines (0 uses the configured value)")
		dryRun     = flag.Bool("dry-run", false, "Dry run - don't write to the database")
		showStats  = flag.Bool("stats", false, "Show store and cache statistics and exit")
		clearCache = flag.Bool("clear-cache", false, "Remove cached extraction results and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*showStats && !*clearCache {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input messages.csv --output segments.jsonl\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input messages.parquet --workers 8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	svc, err := initializeServices(cfg, log, *dryRun)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer svc.cleanup()

	switch {
	case *showStats:
		if err := showServiceStats(ctx, svc); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
	case *clearCache:
		if svc.cache == nil {
			log.Fatal("Result cache is not enabled")
		}
		if err := svc.cache.Clear(ctx); err != nil {
			log.Fatal("Failed to clear cache", zap.Error(err))
		}
	default:
		batchCfg := &batch.Config{
			BatchSize:      cfg.Batch.BatchSize,
			WorkerCount:    cfg.Batch.WorkerCount,
			MaxTextBytes:   cfg.Batch.MaxTextBytes,
			ProgressReport: cfg.Batch.ProgressReport,
		}
		if *batchSize > 0 {
			batchCfg.BatchSize = *batchSize
		}
		if *workers > 0 {
			batchCfg.WorkerCount = *workers
		}

		if err := processDataset(ctx, cfg, svc, batchCfg, *inputFile, *outputFile, log); err != nil {
			log.Fatal("Batch processing failed", zap.Error(err))
		}
	}
}

// services holds the optional backends
type services struct {
	store *store.Store
	cache *cache.ResultCache
}

func (s *services) cleanup() {
	if s.store != nil {
		s.store.Close()
	}
	if s.cache != nil {
		s.cache.Close()
	}
}

func initializeServices(cfg *config.Config, log *logger.Logger, dryRun bool) (*services, error) {
	svc := &services{}

	if cfg.Store.Enabled && !dryRun {
		log.Info("Initializing segmentation store...")
		st, err := store.NewStore(&store.Config{
			DatabaseURL:     cfg.Store.DatabaseURL,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
		}, log.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
		svc.store = st
	}

	if cfg.Cache.Enabled {
		rc, err := cache.NewResultCache(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
		}, log.Logger)
		if err != nil {
			log.Warn("Result cache unavailable", zap.Error(err))
		} else {
			svc.cache = rc
		}
	}

	return svc, nil
}

// processDataset segments the input file into the output file
func processDataset(ctx context.Context, cfg *config.Config, svc *services, batchCfg *batch.Config, inputFile, outputFile string, log *logger.Logger) error {
	if _, err := os.Stat(inputFile); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputFile)
	}

	out, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	writer := bufio.NewWriter(out)

	var inserter batch.Inserter
	if svc.store != nil {
		inserter = svc.store
	}

	pipeline, err := batch.NewPipeline(cfg.Parse.Options, inserter, writer, batchCfg, log.Logger)
	if err != nil {
		return err
	}

	result, err := pipeline.ProcessFile(ctx, inputFile)
	if flushErr := writer.Flush(); flushErr != nil && err == nil {
		err = fmt.Errorf("failed to flush output: %w", flushErr)
	}
	if err != nil {
		return fmt.Errorf("pipeline processing failed: %w", err)
	}

	log.Info("Dataset processing completed",
		zap.String("input", inputFile),
		zap.String("output", outputFile),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("matched_segments", result.MatchedSegments),
		zap.Int64("inserted", result.Inserted),
		zap.Int64("duplicates", result.Duplicates),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("database_time", result.DatabaseTime))

	if len(result.Errors) > 0 {
		log.Warn("Processing completed with errors", zap.Int("count", len(result.Errors)), zap.Strings("errors", firstN(result.Errors, 20)))
	}

	return nil
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// showServiceStats prints store and cache statistics
func showServiceStats(ctx context.Context, svc *services) error {
	if svc.store == nil && svc.cache == nil {
		return fmt.Errorf("neither store nor cache is enabled")
	}

	if svc.store != nil {
		stats, err := svc.store.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get store stats: %w", err)
		}
		fmt.Printf("\n=== Segmentation Store Statistics ===\n")
		fmt.Printf("Stored Texts:       %d\n", stats.TotalRecords)
		fmt.Printf("Total Segments:     %d\n", stats.TotalSegments)
		fmt.Printf("Matched Segments:   %d\n", stats.TotalMatched)
	}

	if svc.cache != nil {
		cacheStats, err := svc.cache.GetStats(ctx)
		if err == nil {
			fmt.Printf("\n=== Cache Statistics ===\n")
			fmt.Printf("Total Keys:         %d\n", cacheStats.TotalKeys)
			fmt.Printf("Memory Usage:       %.2f MB\n", float64(cacheStats.MemoryUsage)/1024/1024)
		}
	}

	return nil
}
