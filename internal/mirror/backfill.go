package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/channel-mirror/internal/logging"
	"github.com/channel-mirror/internal/models"
	"github.com/channel-mirror/internal/types"
)

// statusCadence is how many items pass between human-readable status updates.
const statusCadence = 10

// ProgressReporter publishes advisory progress snapshots for a running
// backfill. Failures are logged and never interrupt the walk.
type ProgressReporter interface {
	Publish(ctx context.Context, progress *models.BackfillProgress) error
}

// BackfillResult summarizes a completed range walk.
type BackfillResult struct {
	Uploaded int
	Skipped  int
	Failed   int
	// Cursor is the last sequence number of the walked range; the caller
	// persists it as the channel's durable cursor.
	Cursor types.MessageID
}

// Processor walks a message range start to end, mirroring every eligible item.
// One item is fully resolved before the next begins.
type Processor struct {
	pipeline  *Pipeline
	progress  ProgressReporter
	pauses    *PauseNotifier
	itemDelay time.Duration
	log       *logging.Logger
}

// NewProcessor creates a backfill processor. progress may be nil.
func NewProcessor(pipeline *Pipeline, progress ProgressReporter, itemDelay time.Duration) *Processor {
	return &Processor{
		pipeline:  pipeline,
		progress:  progress,
		itemDelay: itemDelay,
		log:       logging.Default().WithField("component", "backfill"),
	}
}

// NotifyPausesTo routes the governor's rate-limit pause notes to each run's
// status sink for the duration of that run.
func (p *Processor) NotifyPausesTo(n *PauseNotifier) {
	p.pauses = n
}

// Run walks the job's range. The range is normalized so a reversed start/end
// pair walks the same messages in ascending order. Returns ctx.Err() when
// canceled mid-walk; counts in the result cover the items processed so far.
func (p *Processor) Run(ctx context.Context, job *models.BackfillJob, sink StatusSink) (*BackfillResult, error) {
	if sink == nil {
		sink = NopSink{}
	}
	if p.pauses != nil {
		defer p.pauses.Subscribe(sink)()
	}

	start, end := job.StartID, job.EndID
	if start > end {
		start, end = end, start
	}
	total := int64(end - start + 1)

	log := p.log.WithFields(map[string]interface{}{
		"job_id":     job.JobID,
		"channel_id": job.ChannelID,
		"start_id":   start,
		"end_id":     end,
	})
	log.Info("backfill started")
	sink.Update(fmt.Sprintf("Backfilling %s: messages %d to %d (%d total)", job.Name, start, end, total))

	result := &BackfillResult{Cursor: end}
	processed := 0

	for id := start; id <= end; id++ {
		if ctx.Err() != nil {
			log.WithField("msg_id", id).Warn("backfill canceled mid-range")
			return result, ctx.Err()
		}

		res := p.pipeline.Process(ctx, job.ChannelID, id)
		switch res.Outcome {
		case types.OutcomeUploaded:
			result.Uploaded++
		case types.OutcomeFailed:
			result.Failed++
		default:
			result.Skipped++
		}
		processed++

		if processed%statusCadence == 0 || id == end {
			sink.Update(fmt.Sprintf(
				"Progress %s: %d/%d (uploaded %d, skipped %d, failed %d)",
				job.Name, processed, total, result.Uploaded, result.Skipped, result.Failed,
			))
			p.publish(ctx, job, id, result, types.SessionRunning, "")
		}

		if id < end && p.itemDelay > 0 {
			select {
			case <-time.After(p.itemDelay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	log.WithFields(map[string]interface{}{
		"uploaded": result.Uploaded,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
	}).Info("backfill completed")
	sink.Update(fmt.Sprintf(
		"Done %s: uploaded %d, skipped %d, failed %d",
		job.Name, result.Uploaded, result.Skipped, result.Failed,
	))
	p.publish(ctx, job, end, result, types.SessionCompleted, "")

	return result, nil
}

func (p *Processor) publish(ctx context.Context, job *models.BackfillJob, current types.MessageID, result *BackfillResult, state types.SessionState, errMsg string) {
	if p.progress == nil {
		return
	}

	start, end := job.StartID, job.EndID
	if start > end {
		start, end = end, start
	}
	snapshot := &models.BackfillProgress{
		JobID:     job.JobID,
		ChannelID: job.ChannelID,
		Name:      job.Name,
		StartID:   start,
		EndID:     end,
		Current:   current,
		Uploaded:  result.Uploaded,
		Skipped:   result.Skipped,
		Failed:    result.Failed,
		State:     state,
		Error:     errMsg,
	}
	if err := p.progress.Publish(ctx, snapshot); err != nil {
		p.log.WithError(err).WithField("job_id", job.JobID).Warn("failed to publish progress")
	}
}

// PublishState pushes a terminal state snapshot; used by the session runner
// when a walk aborts before or after the range loop.
func (p *Processor) PublishState(ctx context.Context, job *models.BackfillJob, result *BackfillResult, state types.SessionState, errMsg string) {
	if result == nil {
		result = &BackfillResult{}
	}
	p.publish(ctx, job, result.Cursor, result, state, errMsg)
}
