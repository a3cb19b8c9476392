package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nlindqvist/psarank/internal/checkpoint"
	"github.com/nlindqvist/psarank/internal/metrics"
	"github.com/nlindqvist/psarank/internal/schema"
	"github.com/nlindqvist/psarank/internal/source"
	"github.com/nlindqvist/psarank/pkg/models"
	"github.com/schollz/progressbar/v3"
)

// Session describes one fetch run for a single gender.
type Session struct {
	Gender   models.Gender
	PageSize int
	MaxPages int // 0 means unbounded
	Resume   bool
}

func (s Session) validate() error {
	if !s.Gender.Valid() {
		return fmt.Errorf("invalid gender %q", s.Gender)
	}
	if s.PageSize < 1 {
		return fmt.Errorf("page size must be at least 1, got %d", s.PageSize)
	}
	if s.MaxPages < 0 {
		return fmt.Errorf("max pages must not be negative, got %d", s.MaxPages)
	}
	return nil
}

// Fetcher retrieves ranking pages one at a time from the primary source,
// validating and committing each page to a durable checkpoint before the
// next one begins. If the primary source fails, it switches to the
// fallback source at most once per session, restarting from page 1.
type Fetcher struct {
	primary   source.Source
	fallback  source.Source
	validator *schema.Validator
	store     *checkpoint.Store
	collector *metrics.Collector
	logger    *slog.Logger
}

// New creates a fetcher
func New(
	primary source.Source,
	fallback source.Source,
	validator *schema.Validator,
	store *checkpoint.Store,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Fetcher {
	return &Fetcher{
		primary:   primary,
		fallback:  fallback,
		validator: validator,
		store:     store,
		collector: collector,
		logger:    logger,
	}
}

// Run executes one fetch session to completion. On success it returns the
// single-source result set; a degraded (fallback-sourced) set is still a
// success and is reported as such by the set itself. On failure no partial
// records are returned, and any checkpoint from committed pages stays on
// disk so a later invocation can resume.
func (f *Fetcher) Run(ctx context.Context, session Session) (*models.ResultSet, *models.FetchStats, error) {
	if err := session.validate(); err != nil {
		return nil, nil, err
	}

	stats := &models.FetchStats{
		StartTime:     time.Now(),
		Gender:        session.Gender,
		ResumedAtPage: 1,
	}
	defer func() {
		stats.EndTime = time.Now()
		stats.Duration = stats.EndTime.Sub(stats.StartTime)
	}()

	active := f.primary
	switched := false
	records := models.NewResultSet(f.primary.Kind())
	page := 1
	sessionID := uuid.New().String()

	if session.Resume {
		if cp := f.store.Load(session.Gender); cp != nil {
			if cp.Matches(session.Gender, session.PageSize) {
				if cp.Source == f.fallback.Kind() {
					// A fallback checkpoint means the switch already happened
					// in an earlier run; it is not available again.
					active = f.fallback
					switched = true
				}
				if cp.SessionID != "" {
					sessionID = cp.SessionID
				}
				records = cp.Records
				page = cp.LastCompletedPage + 1
				stats.ResumedAtPage = page
				f.logger.Info("Resuming from checkpoint",
					"gender", session.Gender,
					"session_id", sessionID,
					"source", cp.Source,
					"last_completed_page", cp.LastCompletedPage,
					"records", records.Len())
			} else {
				f.logger.Warn("Ignoring checkpoint with different parameters",
					"gender", session.Gender,
					"checkpoint_page_size", cp.PageSize,
					"requested_page_size", session.PageSize)
			}
		}
	}

	f.logger.Info("Starting fetch session",
		"gender", session.Gender,
		"session_id", sessionID,
		"source", active.Kind(),
		"page_size", session.PageSize,
		"start_page", page,
		"resume", session.Resume)

	bar := progressbar.Default(-1, fmt.Sprintf("Fetching %s rankings", session.Gender))
	defer func() { _ = bar.Finish() }()

	var primaryErr error

	for {
		if session.MaxPages > 0 && page > session.MaxPages {
			f.logger.Info("Reached page limit",
				"gender", session.Gender,
				"max_pages", session.MaxPages)
			break
		}

		// Cancellation is honored only between commits, so an interrupted
		// run always resumes cleanly from the last committed page.
		select {
		case <-ctx.Done():
			f.logger.Info("Fetch cancelled",
				"gender", session.Gender,
				"last_completed_page", page-1)
			return nil, stats, ctx.Err()
		default:
		}

		validated, hasNext, err := f.fetchPage(ctx, active, session, page)
		if err != nil {
			if ctx.Err() != nil {
				// A request aborted by cancellation is an interrupt, not a
				// source failure.
				return nil, stats, ctx.Err()
			}
			if !switched {
				primaryErr = err
				f.switchToFallback(session, err)
				active = f.fallback
				switched = true
				records = models.NewResultSet(f.fallback.Kind())
				page = 1
				stats.SourceSwitched = true
				stats.PagesFetched = 0
				stats.RecordsFetched = 0
				continue
			}
			f.logger.Error("Fallback source failed, giving up",
				"gender", session.Gender,
				"page", page,
				"error", err)
			if primaryErr != nil {
				return nil, stats, errors.Join(primaryErr, err)
			}
			return nil, stats, err
		}

		if err := records.Append(validated); err != nil {
			return nil, stats, err
		}

		cp := &models.Checkpoint{
			SessionID:         sessionID,
			Gender:            session.Gender,
			PageSize:          session.PageSize,
			LastCompletedPage: page,
			Source:            active.Kind(),
			Records:           records,
			UpdatedAt:         time.Now().UTC(),
		}
		if err := f.store.Save(cp); err != nil {
			f.logger.Error("Failed to persist checkpoint",
				"gender", session.Gender,
				"page", page,
				"error", err)
			return nil, stats, fmt.Errorf("failed to persist checkpoint for page %d: %w", page, err)
		}

		stats.PagesFetched++
		stats.RecordsFetched += validated.Len()
		_ = bar.Add(1)

		f.logger.Debug("Page committed",
			"gender", session.Gender,
			"source", active.Kind(),
			"page", page,
			"page_records", validated.Len(),
			"total_records", records.Len())

		if !hasNext {
			break
		}
		page++
	}

	// Terminal success: the checkpoint has served its purpose.
	if err := f.store.Clear(session.Gender); err != nil {
		f.logger.Warn("Failed to clear checkpoint after completion",
			"gender", session.Gender,
			"error", err)
	}

	f.logger.Info("Fetch complete",
		"gender", session.Gender,
		"source", records.Source,
		"degraded", records.Degraded(),
		"pages", stats.PagesFetched,
		"records", records.Len(),
		"duration", time.Since(stats.StartTime))

	return records, stats, nil
}

// fetchPage retrieves and validates a single page from the given source.
// Validation is all-or-nothing: one malformed entry rejects the whole page.
func (f *Fetcher) fetchPage(ctx context.Context, src source.Source, session Session, page int) (*models.ResultSet, bool, error) {
	result, err := src.FetchPage(ctx, session.Gender, page, session.PageSize)
	if err != nil {
		f.collector.RecordPageFetch(string(src.Kind()), false)
		return nil, false, err
	}

	validated, err := f.validator.Page(result)
	if err != nil {
		f.collector.RecordPageFetch(string(src.Kind()), false)
		return nil, false, err
	}

	f.collector.RecordPageFetch(string(src.Kind()), true)
	f.collector.RecordValidatedRecords(string(src.Kind()), validated.Len())
	return validated, result.HasNext, nil
}

// switchToFallback abandons all primary progress. The accumulated result
// set is discarded and any primary-sourced checkpoint is removed: fallback
// records cannot extend a set whose records carry identifiers the fallback
// cannot produce.
func (f *Fetcher) switchToFallback(session Session, cause error) {
	f.logger.Warn("Primary source failed, switching to fallback",
		"gender", session.Gender,
		"error", cause)

	if cp := f.store.Load(session.Gender); cp != nil && cp.Source == f.primary.Kind() {
		if err := f.store.Clear(session.Gender); err != nil {
			f.logger.Warn("Failed to remove primary checkpoint",
				"gender", session.Gender,
				"error", err)
		}
	}

	f.collector.RecordSourceSwitch(string(session.Gender))
}
