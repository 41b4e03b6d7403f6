package engage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bolhadev/engagebot/atclient"
	"github.com/bolhadev/engagebot/dedupe"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Fixed wait after each successful like. Reposts are not paced.
const DefaultLikePacing = 5 * time.Second

func DefaultPacing() map[ActionKind]time.Duration {
	return map[ActionKind]time.Duration{
		ActionLike: DefaultLikePacing,
	}
}

// Counts from one ProcessBatch call.
type BatchResult struct {
	Candidates int
	Skipped    int
	Succeeded  int
	Failed     int
}

// Decides which candidates to act on, performs the remote action, and records successes in the dedupe store.
type Processor struct {
	API    SocialAPI
	Store  dedupe.Store
	Pacing map[ActionKind]time.Duration
	Logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewProcessor(api SocialAPI, store dedupe.Store, pacing map[ActionKind]time.Duration, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if pacing == nil {
		pacing = DefaultPacing()
	}
	return &Processor{
		API:    api,
		Store:  store,
		Pacing: pacing,
		Logger: logger.With("component", "processor"),
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Processes candidates in input order. Items already in the store are skipped without any remote call; a failed action is logged and left unmarked, and never stops the rest of the batch.
//
// The only early exit is context cancellation (process shutdown) during a pacing wait.
func (p *Processor) ProcessBatch(ctx context.Context, items []Candidate, kind ActionKind, sess *atclient.Session) BatchResult {
	res := BatchResult{Candidates: len(items)}
	logger := p.Logger.With("action", kind)

	if len(items) == 0 {
		logger.Info("no candidates to process")
		return res
	}

	ctx, span := tracer.Start(ctx, "ProcessBatch")
	defer span.End()
	span.SetAttributes(attribute.String("action", kind.String()), attribute.Int("candidates", len(items)))

	candidatesSeen.WithLabelValues(kind.String()).Add(float64(len(items)))
	pacing := p.Pacing[kind]

	for _, item := range items {
		seen, err := p.Store.HasProcessed(ctx, kind.String(), item.ID)
		if err != nil {
			// without a reliable answer, acting could duplicate; try again next pass
			logger.Error("dedupe lookup failed, skipping item", "item", item.ID, "err", err)
			res.Failed++
			continue
		}
		if seen {
			logger.Debug("already processed", "item", item.ID)
			dedupeSkips.WithLabelValues(kind.String()).Inc()
			res.Skipped++
			continue
		}

		logger.Info("performing action", "item", item.ID, "uri", item.Locator)
		if _, err := p.API.CreateRecord(ctx, sess, kind.Collection(), item.subject()); err != nil {
			ae := newActionError(kind, item.ID, err)
			logger.Error("action failed", "item", item.ID, "status", ae.StatusCode, "body", ae.Body, "err", ae)
			actionsAttempted.WithLabelValues(kind.String(), "failure").Inc()
			res.Failed++
			continue
		}
		actionsAttempted.WithLabelValues(kind.String(), "success").Inc()
		res.Succeeded++

		// the remote action already happened; shutdown must not drop the record of it
		if err := p.Store.MarkProcessed(context.WithoutCancel(ctx), kind.String(), item.ID); err != nil {
			if errors.Is(err, dedupe.ErrPersist) {
				logger.Warn("action recorded in memory only", "item", item.ID, "err", err)
			} else {
				logger.Error("failed to record processed item", "item", item.ID, "err", err)
			}
			persistErrors.WithLabelValues(kind.String()).Inc()
		}
		logger.Info("action succeeded", "item", item.ID)

		if pacing > 0 {
			if err := p.sleep(ctx, pacing); err != nil {
				logger.Warn("batch interrupted during pacing wait", "err", err)
				break
			}
		}
	}

	if res.Skipped == res.Candidates {
		logger.Info("all candidates already processed", "candidates", res.Candidates)
	} else {
		logger.Info("batch complete", "candidates", res.Candidates, "skipped", res.Skipped, "succeeded", res.Succeeded, "failed", res.Failed)
	}
	if res.Failed > 0 {
		span.SetStatus(codes.Error, "some actions failed")
	}
	return res
}
