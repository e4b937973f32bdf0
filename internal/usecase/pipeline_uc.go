package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"order-bridge/internal/domain"
	"order-bridge/internal/domain/model"
	"order-bridge/internal/domain/ports/adapter"
	"order-bridge/internal/domain/ports/repository"
	"order-bridge/internal/infra/logging"
	"order-bridge/internal/infra/metrics"
)

// Compile-time check
var _ Pipeline = (*pipelineUC)(nil)

// Pipeline turns one flushed batch into spreadsheet rows. Process never
// fails: every outcome, including a recovered panic, lands in the BatchRun.
type Pipeline interface {
	Process(ctx context.Context, batch model.Batch) *model.BatchRun
}

type pipelineUC struct {
	ai       adapter.OrderExtractor
	uploader RecordUploader
	runs     repository.BatchRunRepository
	alerter  adapter.Alerter // optional
	log      *zerolog.Logger
	now      func() time.Time
}

func NewPipeline(ai adapter.OrderExtractor, uploader RecordUploader, runs repository.BatchRunRepository, alerter adapter.Alerter, logger *zerolog.Logger) *pipelineUC {
	l := logger.With().Str("component", "pipeline").Logger()
	return &pipelineUC{ai: ai, uploader: uploader, runs: runs, alerter: alerter, log: &l, now: time.Now}
}

func (p *pipelineUC) Process(ctx context.Context, batch model.Batch) *model.BatchRun {
	run := model.NewBatchRun(batch, p.now())
	ctx = logging.WithBatchID(ctx, run.ID)
	log := logging.With(ctx, p.log)
	defer logging.TraceDuration(log, "Pipeline.Process")()

	status, err := p.execute(ctx, batch, run)
	run.Finish(status, err, p.now())

	switch {
	case err == nil:
		log.Info().Int("records", run.RecordsPushed).Dur("took", run.Duration()).Msg("batch done")
	case domain.IsSkip(err):
		log.Info().Str("status", string(status)).Msg("batch skipped")
	default:
		log.Error().Err(err).Str("status", string(status)).Msg("batch failed")
		p.alert(ctx, run, err)
	}

	metrics.ObserveBatch(string(run.Status), run.Snippets, run.Duration().Seconds())
	p.save(ctx, run, log)
	return run
}

// execute runs the stages in order. The returned status names the stage
// that stopped the batch, also when that stage panicked.
func (p *pipelineUC) execute(ctx context.Context, batch model.Batch, run *model.BatchRun) (status model.BatchRunStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			if status == "" {
				status = model.BatchRunExtractFailed
			}
		}
	}()

	if len(batch) == 0 {
		return model.BatchRunSkippedEmpty, domain.ErrEmptyBatch
	}
	if !batch.HasImage() {
		return model.BatchRunSkippedNoImage, domain.ErrNoImage
	}

	status = model.BatchRunExtractFailed
	ex, err := p.ai.ExtractOrders(ctx, batch)
	if err != nil {
		return status, fmt.Errorf("extract: %w", err)
	}
	if ex == nil {
		return status, fmt.Errorf("extract: %w: no result", domain.ErrParse)
	}
	run.JobID = ex.Job.ID
	run.ConversationID = ex.Job.ConversationID
	run.Polls = ex.Polls

	status = model.BatchRunPushFailed
	res, err := p.uploader.Upload(logging.WithJobID(ctx, ex.Job.ID), ex.Answer)
	if errors.Is(err, domain.ErrNoRecords) {
		return model.BatchRunSkippedNoRows, err
	}
	if err != nil {
		return status, fmt.Errorf("push: %w", err)
	}
	run.RecordsPushed = res.Pushed
	return model.BatchRunSucceeded, nil
}

func (p *pipelineUC) save(ctx context.Context, run *model.BatchRun, log *zerolog.Logger) {
	if p.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.runs.Save(ctx, run); err != nil {
		log.Error().Err(err).Msg("could not record batch run")
	}
}

// alert reports a failed batch. The text names the batch; the throttle key
// does not, so an outage that fails every batch is throttled as one failure.
func (p *pipelineUC) alert(ctx context.Context, run *model.BatchRun, err error) {
	if p.alerter == nil {
		return
	}
	text := fmt.Sprintf("order-bridge: batch %s %s (%d snippets, %d images): %s",
		run.ID, run.Status, run.Snippets, run.Images, run.Error)
	ctx = adapter.WithAlertKey(ctx, "batch|"+string(run.Status)+"|"+domain.Class(err))
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.alerter.Alert(ctx, text); err != nil {
		p.log.Warn().Err(err).Msg("alert not delivered")
	}
}
