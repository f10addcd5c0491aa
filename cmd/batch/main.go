package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/examforge/internal/app"
	"github.com/timmy/examforge/internal/config"
	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/logger"
	"github.com/timmy/examforge/internal/source"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "examforge-batch",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	inputDir := flag.String("input", "", "Directory containing question bank files")
	outputDir := flag.String("output", "./output", "Directory for generated documents")
	pattern := flag.String("pattern", "*.md", "File name glob for question bank files")
	parallel := flag.Int("parallel", 0, "Maximum concurrent documents (0 uses the configured default)")
	continueOnError := flag.Bool("continue-on-error", false, "Exit 0 even when some documents fail")
	templateID := flag.String("template", "", "Template ID to render with")
	format := flag.String("format", "", "Output format: md, tex, txt or pdf")
	count := flag.Int("count", 0, "Number of documents (0 means one per question set)")
	prefix := flag.String("prefix", "", "File name prefix")
	shuffle := flag.Bool("shuffle", false, "Shuffle questions and options per document")
	answerKey := flag.Bool("answer-key", false, "Write an answer key next to every document")
	seed := flag.Int64("seed", 0, "Base seed for shuffling")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *inputDir == "" {
		fmt.Fprintln(os.Stderr, "-input is required")
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}

	loaded, err := source.LoadDir(ctx, *inputDir, *pattern)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to scan input directory")
	}
	for _, perr := range loaded.Errors {
		appLogger.WithError(perr).Warn("Skipping question bank")
	}
	if len(loaded.Sets) == 0 {
		appLogger.WithField("input", *inputDir).Fatal("No question banks found")
	}

	setIDs := make([]string, 0, len(loaded.Sets))
	for _, set := range loaded.Sets {
		if err := application.QuestionSets.Upsert(ctx, set); err != nil {
			appLogger.WithError(err).WithField("question_set", set.ID).Fatal("Failed to store question set")
		}
		setIDs = append(setIDs, set.ID)
	}

	req := &domain.BatchRequest{
		QuestionSetIDs:  setIDs,
		TemplateID:      *templateID,
		Count:           *count,
		OutputDir:       *outputDir,
		FilePrefix:      *prefix,
		Format:          domain.OutputFormat(*format),
		Parallelism:     *parallel,
		ContinueOnError: *continueOnError,
	}
	if req.Count <= 0 {
		req.Count = len(setIDs)
	}

	var batchID string
	if *shuffle || *answerKey {
		req.Advanced = &domain.AdvancedOptions{
			Variation: domain.VariationOptions{
				ShuffleQuestions: *shuffle,
				ShuffleOptions:   *shuffle,
				Seed:             *seed,
				IncludeAnswerKey: *answerKey,
			},
		}
		batchID, err = application.Batches.SubmitAdvanced(ctx, req)
	} else {
		batchID, err = application.Batches.Submit(ctx, req)
	}
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to submit batch")
	}

	appLogger.WithFields(logger.Fields{
		"batch_id":      batchID,
		"question_sets": len(setIDs),
		"count":         req.Count,
		"output":        req.OutputDir,
	}).Info("Batch submitted")

	// Cancel the batch on interrupt; Wait returns once in-flight documents finish.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			appLogger.Info("Received shutdown signal, cancelling batch...")
			if err := application.Batches.Cancel(batchID); err != nil {
				appLogger.WithError(err).Warn("Cancel failed")
			}
		case <-ctx.Done():
		}
	}()

	progress, err := application.Batches.Wait(ctx, batchID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed waiting for batch")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	if err := application.Close(closeCtx); err != nil {
		appLogger.WithError(err).Error("Failed to close application")
	}

	appLogger.WithFields(logger.Fields{
		"batch_id":  batchID,
		"status":    progress.Status,
		"completed": progress.Completed,
		"failed":    progress.Failed,
		"skipped":   progress.Skipped,
		"elapsed":   progress.Elapsed.String(),
	}).Info("Batch finished")

	fmt.Printf("batch %s %s: %d completed, %d failed, %d skipped in %s\n",
		batchID, progress.Status, progress.Completed, progress.Failed, progress.Skipped,
		progress.Elapsed.Round(time.Millisecond))
	for _, msg := range progress.Errors {
		fmt.Fprintln(os.Stderr, "  "+msg)
	}

	if progress.Failed > 0 && !*continueOnError {
		os.Exit(1)
	}
}
