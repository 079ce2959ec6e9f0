package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/docmill/docmill/internal/analyze"
	"github.com/docmill/docmill/internal/blob"
	"github.com/docmill/docmill/internal/classify"
	"github.com/docmill/docmill/internal/extract"
	"github.com/docmill/docmill/internal/jobs"
	"github.com/docmill/docmill/internal/logger"
	"github.com/docmill/docmill/internal/metrics"
	"github.com/docmill/docmill/internal/results"
)

// advanceAttempts bounds retries of a single stage transition when the job
// store fails transiently. The underlying business work is never retried.
const advanceAttempts = 3

// Pipeline executes the extraction stages for exactly one job. All failures
// are recorded in job state; nothing escapes to the scheduling context.
type Pipeline struct {
	lifecycle  *jobs.Lifecycle
	blobs      blob.Store
	extractor  extract.TextExtractor
	classifier classify.Classifier
	analyzer   analyze.Analyzer
	results    results.Store

	advanceBackoff time.Duration
}

// NewPipeline wires the pipeline's collaborators.
func NewPipeline(
	lifecycle *jobs.Lifecycle,
	blobs blob.Store,
	extractor extract.TextExtractor,
	classifier classify.Classifier,
	analyzer analyze.Analyzer,
	resultStore results.Store,
) *Pipeline {
	return &Pipeline{
		lifecycle:      lifecycle,
		blobs:          blobs,
		extractor:      extractor,
		classifier:     classifier,
		analyzer:       analyzer,
		results:        resultStore,
		advanceBackoff: 250 * time.Millisecond,
	}
}

// Run drives a job through the stages in fixed order. Each stage is
// announced via AdvanceStage before its work begins, so pollers see the
// stage in progress rather than the stage just finished.
func (p *Pipeline) Run(ctx context.Context, job *jobs.Job, payload []byte) {
	start := time.Now()
	log := logger.WithJob(job.ID, job.TenantID)
	log.Info().Str("filename", job.OriginalFilename).Msg("Pipeline started")

	var (
		text         string
		documentType string
		result       *analyze.Result
	)

	steps := []struct {
		stage jobs.Stage
		work  func(ctx context.Context) error
	}{
		{jobs.StageUploading, func(ctx context.Context) error {
			key := fmt.Sprintf("%s/%s/%s", job.TenantID, job.ID, job.OriginalFilename)
			return p.blobs.Put(ctx, key, payload, job.ContentType)
		}},
		{jobs.StageExtractingText, func(ctx context.Context) error {
			var err error
			text, err = p.extractor.ExtractText(ctx, job.OriginalFilename, payload)
			return err
		}},
		{jobs.StageClassifying, func(ctx context.Context) error {
			var err error
			documentType, err = p.classifier.Classify(ctx, job.OriginalFilename, text)
			if err != nil {
				return err
			}
			_, err = p.lifecycle.SetDocumentType(ctx, job.TenantID, job.ID, documentType)
			return err
		}},
		{jobs.StageAnalyzing, func(ctx context.Context) error {
			var err error
			result, err = p.analyzer.Analyze(ctx, documentType, text)
			return err
		}},
		{jobs.StageStoring, func(ctx context.Context) error {
			return p.results.Save(ctx, &results.Extraction{
				JobID:        job.ID,
				TenantID:     job.TenantID,
				DocumentType: result.DocumentType,
				Fields:       result.Fields,
				Confidence:   result.Confidence,
				CreatedAt:    time.Now().UTC(),
			})
		}},
	}

	for _, step := range steps {
		if err := p.advance(ctx, job, step.stage); err != nil {
			p.recordFailure(ctx, job, currentStageFor(err, step.stage), err)
			metrics.JobDuration.Observe(time.Since(start).Seconds())
			return
		}

		stageStart := time.Now()
		if err := step.work(ctx); err != nil {
			log.Warn().Str("stage", string(step.stage)).Err(err).Msg("Stage work failed")
			p.recordFailure(ctx, job, step.stage, err)
			metrics.JobDuration.Observe(time.Since(start).Seconds())
			return
		}
		metrics.StageDuration.WithLabelValues(string(step.stage)).Observe(time.Since(stageStart).Seconds())
	}

	payloadJSON, err := json.Marshal(result)
	if err != nil {
		p.recordFailure(ctx, job, jobs.StageStoring, err)
		metrics.JobDuration.Observe(time.Since(start).Seconds())
		return
	}

	if _, err := p.lifecycle.Complete(ctx, job.TenantID, job.ID, payloadJSON); err != nil {
		if jobs.IsAlreadyTerminal(err) {
			log.Warn().Err(err).Msg("Completion rejected, job already terminal")
		} else {
			log.Error().Err(err).Msg("Failed to record completion")
		}
		metrics.JobDuration.Observe(time.Since(start).Seconds())
		return
	}

	metrics.JobDuration.Observe(time.Since(start).Seconds())
	log.Info().Dur("elapsed", time.Since(start)).Msg("Pipeline completed")
}

// advance applies a stage transition, retrying transient store failures a
// bounded number of times. State-machine violations are not retried.
func (p *Pipeline) advance(ctx context.Context, job *jobs.Job, stage jobs.Stage) error {
	backoff := retry.WithMaxRetries(advanceAttempts-1, retry.NewConstant(p.advanceBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := p.lifecycle.AdvanceStage(ctx, job.TenantID, job.ID, stage)
		if err == nil {
			return nil
		}
		if jobs.IsInvalidTransition(err) || jobs.IsAlreadyTerminal(err) || errors.Is(err, jobs.ErrNotFound) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// recordFailure moves the job to failed with a sanitized message. A
// secondary failure while recording is logged and swallowed; the host
// process must not crash because the store went away.
func (p *Pipeline) recordFailure(ctx context.Context, job *jobs.Job, stage jobs.Stage, cause error) {
	log := logger.WithJob(job.ID, job.TenantID)

	if _, err := p.lifecycle.Fail(ctx, job.TenantID, job.ID, stage, Sanitize(cause)); err != nil {
		if jobs.IsAlreadyTerminal(err) {
			log.Warn().Err(err).Msg("Failure not recorded, job already terminal")
			return
		}
		log.Error().Err(err).Str("stage", string(stage)).Msg("Failed to record job failure")
	}
}

// currentStageFor picks the stage to report when a transition itself was
// rejected: an illegal transition is recorded against the last valid stage,
// not the stage that was requested.
func currentStageFor(err error, requested jobs.Stage) jobs.Stage {
	var ite *jobs.InvalidTransitionError
	if errors.As(err, &ite) {
		return ite.From
	}
	return requested
}
