// Package pipeline wires the mailbox client, the decision engine and
// the writers into one ingestion run: search, fetch, decide, then
// archive passed mail and record exclusions. Messages are independent;
// a failure on one message is logged and the run continues.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tmori/mailsift/internal/archive"
	"github.com/tmori/mailsift/internal/extract"
	"github.com/tmori/mailsift/internal/filter"
	"github.com/tmori/mailsift/internal/mailbox"
	"github.com/tmori/mailsift/internal/model"
	"github.com/tmori/mailsift/internal/noise"
	"github.com/tmori/mailsift/internal/review"
	"github.com/tmori/mailsift/internal/store"
)

// Fetcher is the message source: it finds candidate UIDs and supplies
// parsed messages one at a time.
type Fetcher interface {
	SearchUIDs(ctx context.Context, opts mailbox.SearchOptions) ([]uint32, error)
	FetchMessage(ctx context.Context, uid uint32) (*model.ParsedMessage, error)
}

// Options control one ingestion run.
type Options struct {
	// All considers every message instead of only unseen ones.
	All bool

	// Since restricts the run to messages on or after this date.
	Since time.Time

	// Days restricts the run to the last N days; ignored when Since is set.
	Days int

	// Limit caps how many messages the run fetches, newest first.
	Limit int

	// DryRun lists candidates without deciding or writing anything.
	DryRun bool
}

// Result summarizes one run.
type Result struct {
	Candidates int
	Skipped    int
	Archived   int
	Excluded   int
	Failed     int
}

// Pipeline executes ingestion runs against a fixed rule set.
type Pipeline struct {
	fetcher Fetcher
	engine  *filter.Engine
	archive *archive.Writer
	review  *review.Recorder
	index   *store.SQLiteStore
	logger  zerolog.Logger
}

// New assembles a pipeline. All collaborators are injected; the pipeline
// owns none of their lifecycles.
func New(
	fetcher Fetcher,
	engine *filter.Engine,
	archiveWriter *archive.Writer,
	reviewRecorder *review.Recorder,
	index *store.SQLiteStore,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		fetcher: fetcher,
		engine:  engine,
		archive: archiveWriter,
		review:  reviewRecorder,
		index:   index,
		logger:  logger,
	}
}

// Run performs one ingestion run and returns its summary. Already
// indexed messages are skipped so repeated runs never re-archive mail.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Result, error) {
	runID := uuid.New().String()
	log := p.logger.With().Str("run_id", runID).Logger()

	since := opts.Since
	if since.IsZero() && opts.Days > 0 {
		since = time.Now().AddDate(0, 0, -opts.Days)
	}

	uids, err := p.fetcher.SearchUIDs(ctx, mailbox.SearchOptions{
		All:   opts.All,
		Since: since,
		Limit: opts.Limit,
	})
	if err != nil {
		return Result{}, fmt.Errorf("searching mailbox: %w", err)
	}

	res := Result{Candidates: len(uids)}
	log.Info().Int("candidates", len(uids)).Bool("dry_run", opts.DryRun).Msg("run started")

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		processed, err := p.index.IsProcessed(ctx, uid)
		if err != nil {
			return res, fmt.Errorf("checking index for UID %d: %w", uid, err)
		}
		if processed {
			res.Skipped++
			continue
		}

		msg, err := p.fetcher.FetchMessage(ctx, uid)
		if err != nil {
			log.Warn().Uint32("uid", uid).Err(err).Msg("fetch failed")
			res.Failed++
			continue
		}

		if opts.DryRun {
			log.Info().
				Uint32("uid", uid).
				Str("from", extract.DecodeHeader(msg.Envelope.From)).
				Str("subject", extract.DecodeHeader(msg.Envelope.Subject)).
				Msg("candidate")
			continue
		}

		if err := p.process(ctx, runID, msg, &res); err != nil {
			log.Warn().Uint32("uid", uid).Err(err).Msg("processing failed")
			res.Failed++
		}
	}

	log.Info().
		Int("archived", res.Archived).
		Int("excluded", res.Excluded).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("run finished")
	return res, nil
}

// process decides one message and persists the outcome.
func (p *Pipeline) process(ctx context.Context, runID string, msg *model.ParsedMessage, res *Result) error {
	verdict := p.engine.Decide(msg)

	rec := store.MessageRecord{
		UID:         msg.Envelope.UID,
		MessageID:   msg.Envelope.MessageID,
		Subject:     verdict.Subject,
		PassThrough: verdict.PassThrough,
		Reason:      string(verdict.Reason),
		Detail:      verdict.Detail,
		RunID:       runID,
	}

	from := extract.DecodeHeader(msg.Envelope.From)

	if verdict.PassThrough {
		content := extract.FromMessage(msg)
		path, err := p.archive.Archive(msg.Envelope.UID, archive.Metadata{
			Date:          msg.Envelope.Date,
			From:          from,
			Subject:       content.Subject,
			HasAttachment: content.HasAttachment,
		}, noise.Reduce(content.Body))
		if err != nil {
			return fmt.Errorf("archiving UID %d: %w", msg.Envelope.UID, err)
		}
		rec.ArchivePath = path
		res.Archived++
	} else {
		err := p.review.Record(msg.Envelope.UID, review.Metadata{
			Date: msg.Envelope.Date,
			From: from,
		}, verdict)
		if err != nil {
			return fmt.Errorf("recording exclusion for UID %d: %w", msg.Envelope.UID, err)
		}
		res.Excluded++
	}

	if err := p.index.RecordMessage(ctx, rec); err != nil {
		return fmt.Errorf("indexing UID %d: %w", msg.Envelope.UID, err)
	}
	return nil
}
