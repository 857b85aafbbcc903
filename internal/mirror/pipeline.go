package mirror

import (
	"context"
	"time"

	"github.com/channel-mirror/internal/classify"
	"github.com/channel-mirror/internal/logging"
	"github.com/channel-mirror/internal/models"
	"github.com/channel-mirror/internal/ratelimit"
	"github.com/channel-mirror/internal/retry"
	"github.com/channel-mirror/internal/transport"
	"github.com/channel-mirror/internal/types"
)

// TransferLog records terminal item outcomes for auditing. Implementations
// must never fail the mirroring path; a nil TransferLog disables auditing.
type TransferLog interface {
	Record(ctx context.Context, event *models.TransferEvent)
}

// detailFetchFailed marks skips caused by a failed fetch, as opposed to a
// classifier decision about a message we did retrieve.
const detailFetchFailed = "fetch_failed"

// ItemResult is the terminal outcome of one processed message.
type ItemResult struct {
	Outcome types.ItemOutcome
	Kind    types.MediaKind
	// Detail is the skip reason or failure summary.
	Detail string
}

// Pipeline runs the fetch-classify-transmit sequence for one message. Both
// the backfill processor and the watch loop drive it; they only differ in how
// they choose message ids and pace between them.
type Pipeline struct {
	client   transport.Client
	governor *ratelimit.Governor
	tx       *Transmitter
	retryCfg retry.Config
	audit    TransferLog
	log      *logging.Logger
}

// NewPipeline creates an item pipeline. audit may be nil.
func NewPipeline(client transport.Client, governor *ratelimit.Governor, tx *Transmitter, retryCfg retry.Config, audit TransferLog) *Pipeline {
	return &Pipeline{
		client:   client,
		governor: governor,
		tx:       tx,
		retryCfg: retryCfg,
		audit:    audit,
		log:      logging.Default().WithField("component", "pipeline"),
	}
}

// Process handles one message id to its terminal outcome. Rate-limit
// conditions are resolved inside: the call blocks for the mandated wait and
// resumes without consuming retry budget. Every other fetch failure downgrades
// to a skip; transmit failures consume the bounded retry budget and the item
// is counted failed once the budget is exhausted.
func (p *Pipeline) Process(ctx context.Context, channel types.ChannelID, id types.MessageID) ItemResult {
	log := p.log.WithField("channel_id", channel).WithField("msg_id", id)

	var msg *transport.Message
	err := p.governor.Guard(ctx, func() error {
		var fetchErr error
		msg, fetchErr = p.client.GetMessage(ctx, channel, id)
		return fetchErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return ItemResult{Outcome: types.OutcomeFailed, Detail: ctx.Err().Error()}
		}
		log.WithError(err).Warn("fetch failed, skipping message")
		return p.finish(ctx, channel, id, ItemResult{
			Outcome: types.OutcomeSkipped,
			Detail:  detailFetchFailed,
		})
	}

	decision := classify.Classify(msg)
	if !decision.Eligible {
		log.WithField("reason", decision.Reason).Debug("message not eligible")
		return p.finish(ctx, channel, id, ItemResult{
			Outcome: types.OutcomeSkipped,
			Kind:    decision.Kind,
			Detail:  string(decision.Reason),
		})
	}

	result := retry.Do(ctx, p.retryCfg, "transmit", func(ctx context.Context) error {
		return p.governor.Guard(ctx, func() error {
			return p.tx.Send(ctx, msg, decision.Kind)
		})
	})
	if !result.Success {
		detail := "transmit failed"
		if result.LastError != nil {
			detail = result.LastError.Error()
		}
		log.WithError(result.LastError).
			WithField("attempts", result.Attempts).
			Error("message failed after retries")
		return p.finish(ctx, channel, id, ItemResult{
			Outcome: types.OutcomeFailed,
			Kind:    decision.Kind,
			Detail:  detail,
		})
	}

	log.WithField("kind", decision.Kind).Info("message mirrored")
	return p.finish(ctx, channel, id, ItemResult{
		Outcome: types.OutcomeUploaded,
		Kind:    decision.Kind,
	})
}

func (p *Pipeline) finish(ctx context.Context, channel types.ChannelID, id types.MessageID, res ItemResult) ItemResult {
	if p.audit != nil {
		event := &models.TransferEvent{
			ChannelID:  channel,
			MsgID:      id,
			Kind:       res.Kind,
			Outcome:    res.Outcome,
			Detail:     res.Detail,
			OccurredAt: time.Now().UTC(),
		}
		if res.Outcome == types.OutcomeUploaded {
			event.Mode = string(p.tx.Mode())
		}
		p.audit.Record(ctx, event)
	}
	return res
}
