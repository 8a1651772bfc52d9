package ingest

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/config"
	"github.com/offbit-ai/zeal-catalog/internal/catalog/service"
)

// FileError records one failed file in a batch run.
type FileError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// Result is the outcome contract of one ingestion run. Counters are per
// template except parse failures, which count the whole file as one
// failure.
type Result struct {
	Processed int         `json:"processed"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Errors    []FileError `json:"errors,omitempty"`
}

// Pipeline runs batch ingestion over discovered definition files.
type Pipeline struct {
	svc    service.CatalogService
	cfg    config.IngestConfig
	logger *zap.Logger
}

// NewPipeline builds a batch ingestion pipeline.
func NewPipeline(svc service.CatalogService, cfg config.IngestConfig, logger *zap.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{svc: svc, cfg: cfg, logger: logger.Named("ingest")}
}

// fileOutcome is the per-file result collected from a worker.
type fileOutcome struct {
	file      string
	processed int
	succeeded int
	skipped   int
	failed    int
	stored    []string
	err       error
}

// Run discovers, parses and stores every definition file, then runs a
// single relationship inference pass over everything stored this run.
// Per-file failures are collected, not fatal.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	files, err := Discover(p.cfg.Roots, p.cfg.Include, p.cfg.Exclude)
	if err != nil {
		return nil, err
	}

	p.logger.Info("ingestion started",
		zap.Int("files", len(files)),
		zap.Int("batchSize", p.cfg.BatchSize),
		zap.Int("parallelism", p.cfg.Parallelism),
	)

	result := &Result{}
	var storedIDs []string

	for start := 0; start < len(files); start += p.cfg.BatchSize {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		end := start + p.cfg.BatchSize
		if end > len(files) {
			end = len(files)
		}
		batch := files[start:end]

		outcomes := make([]fileOutcome, len(batch))
		semaphore := make(chan struct{}, p.cfg.Parallelism)
		var wg sync.WaitGroup

		for i, file := range batch {
			wg.Add(1)
			go func(i int, file string) {
				defer wg.Done()
				semaphore <- struct{}{}
				defer func() { <-semaphore }()
				outcomes[i] = p.processFile(ctx, file)
			}(i, file)
		}
		wg.Wait()

		for _, outcome := range outcomes {
			result.Processed += outcome.processed
			result.Succeeded += outcome.succeeded
			result.Skipped += outcome.skipped
			result.Failed += outcome.failed
			storedIDs = append(storedIDs, outcome.stored...)
			if outcome.err != nil {
				result.Errors = append(result.Errors, FileError{
					File:    outcome.file,
					Message: outcome.err.Error(),
				})
			}
		}
	}

	if len(storedIDs) > 0 {
		if err := p.svc.InferRelationships(ctx, storedIDs); err != nil {
			p.logger.Warn("relationship inference failed", zap.Error(err))
		}
	}

	p.logger.Info("ingestion finished",
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// IngestFile runs the single-file path used by both the batch pipeline and
// watch mode.
func (p *Pipeline) IngestFile(ctx context.Context, file string) (*Result, error) {
	outcome := p.processFile(ctx, file)

	result := &Result{
		Processed: outcome.processed,
		Succeeded: outcome.succeeded,
		Skipped:   outcome.skipped,
		Failed:    outcome.failed,
	}
	if outcome.err != nil {
		result.Errors = append(result.Errors, FileError{File: outcome.file, Message: outcome.err.Error()})
	}

	if len(outcome.stored) > 0 {
		if err := p.svc.InferRelationships(ctx, outcome.stored); err != nil {
			p.logger.Warn("relationship inference failed", zap.Error(err))
		}
	}
	return result, nil
}

func (p *Pipeline) processFile(ctx context.Context, file string) fileOutcome {
	outcome := fileOutcome{file: file}

	templates, err := ParseFile(file)
	if err != nil {
		outcome.failed = 1
		outcome.err = err
		return outcome
	}

	for i := range templates {
		outcome.processed++
		upserted, err := p.svc.UpsertTemplate(ctx, &templates[i])
		if err != nil {
			outcome.failed++
			if outcome.err == nil {
				outcome.err = err
			}
			p.logger.Warn("template rejected",
				zap.String("file", file),
				zap.String("id", templates[i].ID),
				zap.Error(err),
			)
			continue
		}
		if upserted.Skipped {
			outcome.skipped++
			continue
		}
		outcome.succeeded++
		outcome.stored = append(outcome.stored, upserted.Template.ID)
	}
	return outcome
}
