package engage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bolhadev/engagebot/atclient"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Topic tags searched every cycle, in order.
var DefaultTags = []string{"#bolhadev", "#studytech", "#dev", "#studytwt", "#bolhasec", "#studysky"}

const DefaultSearchLimit = 25

type CycleConfig struct {
	Identifier string
	Password   string

	Tags        []string
	SearchLimit int

	// zero leaves the server default page size
	NotificationLimit int
}

type TagReport struct {
	Tag    string
	Result BatchResult
	Err    error
}

// What one cycle did. Fetch errors are recorded here rather than returned, since they do not fail the cycle.
type CycleReport struct {
	StartedAt   time.Time
	Mentions    BatchResult
	MentionsErr error
	Tags        []TagReport
}

// One engagement pass: authenticate, repost new mentions, then like new posts for each tag.
type Cycle struct {
	API       SocialAPI
	Processor *Processor
	Config    CycleConfig
	Logger    *slog.Logger

	// Optional; when set, the time of the next scheduled cycle is logged on completion.
	NextRun func() time.Time
}

func NewCycle(api SocialAPI, proc *Processor, config CycleConfig, logger *slog.Logger) *Cycle {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Tags == nil {
		config.Tags = DefaultTags
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = DefaultSearchLimit
	}
	return &Cycle{
		API:       api,
		Processor: proc,
		Config:    config,
		Logger:    logger.With("component", "cycle"),
	}
}

// Runs the cycle to completion. The only error returned is an [ErrAuth] failure, which aborts everything downstream; mention and tag failures are isolated from each other and only logged.
func (c *Cycle) Run(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{StartedAt: time.Now()}
	logger := c.Logger.With("run", report.StartedAt.UnixNano())
	logger.Info("engagement cycle starting", "startedAt", report.StartedAt.Format(time.TimeOnly))

	ctx, span := tracer.Start(ctx, "Cycle", trace.WithAttributes(attribute.Int("tags", len(c.Config.Tags))))
	defer span.End()
	defer func() {
		cycleDuration.Observe(time.Since(report.StartedAt).Seconds())
	}()

	sess, err := c.API.CreateSession(ctx, c.Config.Identifier, c.Config.Password)
	if err != nil {
		cyclesCompleted.WithLabelValues("auth_error").Inc()
		span.SetStatus(codes.Error, "authentication failed")
		logger.Error("failed to create session, skipping cycle", "err", err)
		return report, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	logger.Info("authenticated", "account", sess)

	report.Mentions, report.MentionsErr = c.processMentions(ctx, logger, sess)
	if report.MentionsErr != nil {
		fetchErrors.WithLabelValues("mentions").Inc()
		logger.Error("mention processing skipped", "err", report.MentionsErr)
	}

	for _, tag := range c.Config.Tags {
		tr := TagReport{Tag: tag}
		tr.Result, tr.Err = c.processTag(ctx, logger, sess, tag)
		if tr.Err != nil {
			fetchErrors.WithLabelValues("tag").Inc()
			logger.Error("tag processing skipped", "tag", tag, "err", tr.Err)
		}
		report.Tags = append(report.Tags, tr)
		if ctx.Err() != nil {
			logger.Warn("cycle interrupted", "err", ctx.Err())
			break
		}
	}

	cyclesCompleted.WithLabelValues("ok").Inc()
	if c.NextRun != nil {
		if next := c.NextRun(); !next.IsZero() {
			logger.Info("engagement cycle complete", "duration", time.Since(report.StartedAt).String(), "nextRun", next.Format(time.TimeOnly))
			return report, nil
		}
	}
	logger.Info("engagement cycle complete", "duration", time.Since(report.StartedAt).String())
	return report, nil
}

func (c *Cycle) processMentions(ctx context.Context, logger *slog.Logger, sess *atclient.Session) (BatchResult, error) {
	logger.Info("fetching mentions")
	notifs, err := c.API.ListNotifications(ctx, sess, c.Config.NotificationLimit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("%w: listing notifications: %w", ErrFetch, err)
	}
	mentions := MentionCandidates(notifs)
	logger.Info("fetched mentions", "notifications", len(notifs), "mentions", len(mentions))
	return c.Processor.ProcessBatch(ctx, mentions, ActionRepost, sess), nil
}

func (c *Cycle) processTag(ctx context.Context, logger *slog.Logger, sess *atclient.Session, tag string) (BatchResult, error) {
	logger.Info("searching tagged posts", "tag", tag)
	posts, err := c.API.SearchPosts(ctx, sess, tag, c.Config.SearchLimit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("%w: searching %s: %w", ErrFetch, tag, err)
	}
	if len(posts) == 0 {
		logger.Info("no posts found for tag", "tag", tag)
	} else {
		logger.Info("fetched tagged posts", "tag", tag, "posts", len(posts))
	}
	return c.Processor.ProcessBatch(ctx, TaggedPostCandidates(posts), ActionLike, sess), nil
}
