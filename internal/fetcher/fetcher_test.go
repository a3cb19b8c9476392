package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"testing"

	"github.com/nlindqvist/psarank/internal/checkpoint"
	"github.com/nlindqvist/psarank/internal/metrics"
	"github.com/nlindqvist/psarank/internal/schema"
	"github.com/nlindqvist/psarank/pkg/models"
)

// stubSource is a scripted source: pages it knows about succeed, pages in
// failOn fail, and err makes every call fail. It records every requested
// page number.
type stubSource struct {
	kind    models.SourceKind
	pages   map[int]*models.PageResult
	failOn  map[int]error
	err     error
	onFetch func(page int)
	fetched []int
}

func (s *stubSource) Kind() models.SourceKind { return s.kind }

func (s *stubSource) FetchPage(ctx context.Context, gender models.Gender, page, pageSize int) (*models.PageResult, error) {
	s.fetched = append(s.fetched, page)
	if s.onFetch != nil {
		s.onFetch(page)
	}
	if s.err != nil {
		return nil, s.err
	}
	if err, ok := s.failOn[page]; ok {
		return nil, err
	}
	if result, ok := s.pages[page]; ok {
		return result, nil
	}
	return &models.PageResult{Source: s.kind, Page: page, HasNext: false}, nil
}

func apiEntry(rank int, name string) models.RawEntry {
	return models.RawEntry{
		"World Ranking": float64(rank),
		"Name":          name,
		"Id":            float64(100 + rank),
		"Tournaments":   float64(10),
		"Total Points":  float64(20000 - rank*100),
	}
}

func htmlEntry(rank int, name string) models.RawEntry {
	return models.RawEntry{
		"rank":        strconv.Itoa(rank),
		"name":        name,
		"tournaments": "10",
		"points":      "19,000",
	}
}

func apiPage(page int, hasNext bool, entries ...models.RawEntry) *models.PageResult {
	return &models.PageResult{Source: models.SourceAPI, Page: page, Entries: entries, HasNext: hasNext}
}

func htmlPage(page int, hasNext bool, entries ...models.RawEntry) *models.PageResult {
	return &models.PageResult{Source: models.SourceHTML, Page: page, Entries: entries, HasNext: hasNext}
}

func newTestFetcher(t *testing.T, primary, fallback *stubSource) (*Fetcher, *checkpoint.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := checkpoint.NewStore(t.TempDir(), logger, metrics.NewCollector(logger))
	f := New(primary, fallback, schema.NewValidator(logger), store, metrics.NewCollector(logger), logger)
	return f, store
}

func maleSession(pageSize int) Session {
	return Session{Gender: models.GenderMale, PageSize: pageSize, Resume: true}
}

func assertAPIRanks(t *testing.T, records *models.ResultSet, want ...int) {
	t.Helper()
	if records == nil {
		t.Fatal("Expected a result set, got nil")
	}
	if records.Source != models.SourceAPI {
		t.Fatalf("Expected api result set, got %s", records.Source)
	}
	if len(records.API) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(records.API))
	}
	for i, rank := range want {
		if records.API[i].Rank != rank {
			t.Errorf("Expected rank %d at position %d, got %d", rank, i, records.API[i].Rank)
		}
	}
}

func TestRun_SinglePage(t *testing.T) {
	primary := &stubSource{
		kind: models.SourceAPI,
		pages: map[int]*models.PageResult{
			1: apiPage(1, false, apiEntry(1, "Ali Farag"), apiEntry(2, "Diego Elias")),
		},
	}
	fallback := &stubSource{kind: models.SourceHTML}
	f, store := newTestFetcher(t, primary, fallback)

	records, stats, err := f.Run(context.Background(), maleSession(100))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertAPIRanks(t, records, 1, 2)
	if records.Degraded() {
		t.Error("Expected a complete result set, got degraded")
	}
	if stats.PagesFetched != 1 {
		t.Errorf("Expected 1 page fetched, got %d", stats.PagesFetched)
	}
	if stats.RecordsFetched != 2 {
		t.Errorf("Expected 2 records fetched, got %d", stats.RecordsFetched)
	}
	if len(fallback.fetched) != 0 {
		t.Errorf("Expected fallback untouched, got %d calls", len(fallback.fetched))
	}
	if cp := store.Load(models.GenderMale); cp != nil {
		t.Errorf("Expected checkpoint cleared after completion, got %+v", cp)
	}
}

func TestRun_PaginatesInRankOrder(t *testing.T) {
	primary := &stubSource{
		kind: models.SourceAPI,
		pages: map[int]*models.PageResult{
			1: apiPage(1, true, apiEntry(1, "Ali Farag"), apiEntry(2, "Diego Elias")),
			2: apiPage(2, false, apiEntry(3, "Paul Coll"), apiEntry(4, "Mostafa Asal")),
		},
	}
	fallback := &stubSource{kind: models.SourceHTML}
	f, _ := newTestFetcher(t, primary, fallback)

	records, stats, err := f.Run(context.Background(), maleSession(2))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertAPIRanks(t, records, 1, 2, 3, 4)
	if records.Degraded() {
		t.Error("Expected a complete result set, got degraded")
	}
	if len(primary.fetched) != 2 {
		t.Errorf("Expected 2 page fetches, got %v", primary.fetched)
	}
	if stats.ResumedAtPage != 1 {
		t.Errorf("Expected fresh run starting at page 1, got %d", stats.ResumedAtPage)
	}
}

func TestRun_ResumeSkipsCommittedPages(t *testing.T) {
	fullPrimary := &stubSource{
		kind: models.SourceAPI,
		pages: map[int]*models.PageResult{
			1: apiPage(1, true, apiEntry(1, "Ali Farag"), apiEntry(2, "Diego Elias")),
			2: apiPage(2, false, apiEntry(3, "Paul Coll"), apiEntry(4, "Mostafa Asal")),
		},
	}
	fallback := &stubSource{kind: models.SourceHTML}

	// Uninterrupted run for comparison
	f, _ := newTestFetcher(t, fullPrimary, fallback)
	uninterrupted, _, err := f.Run(context.Background(), maleSession(2))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// Interrupted run: page 1 was committed by a previous invocation, so
	// only page 2 is served this time.
	resumedPrimary := &stubSource{
		kind: models.SourceAPI,
		pages: map[int]*models.PageResult{
			2: apiPage(2, false, apiEntry(3, "Paul Coll"), apiEntry(4, "Mostafa Asal")),
		},
	}
	f2, store := newTestFetcher(t, resumedPrimary, fallback)

	committed := models.NewResultSet(models.SourceAPI)
	committed.API = append(committed.API, uninterrupted.API[:2]...)
	if err := store.Save(&models.Checkpoint{
		Gender:            models.GenderMale,
		PageSize:          2,
		LastCompletedPage: 1,
		Source:            models.SourceAPI,
		Records:           committed,
	}); err != nil {
		t.Fatalf("Failed to seed checkpoint: %v", err)
	}

	resumed, stats, err := f2.Run(context.Background(), maleSession(2))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(resumedPrimary.fetched) != 1 || resumedPrimary.fetched[0] != 2 {
		t.Errorf("Expected only page 2 to be fetched, got %v", resumedPrimary.fetched)
	}
	if stats.ResumedAtPage != 2 {
		t.Errorf("Expected resume at page 2, got %d", stats.ResumedAtPage)
	}

	// The resumed run must reproduce the uninterrupted result exactly
	if len(resumed.API) != len(uninterrupted.API) {
		t.Fatalf("Expected %d records, got %d", len(uninterrupted.API), len(resumed.API))
	}
	for i := range uninterrupted.API {
		if resumed.API[i] != uninterrupted.API[i] {
			t.Errorf("Record %d differs: expected %+v, got %+v", i, uninterrupted.API[i], resumed.API[i])
		}
	}
}

func TestRun_NoResumeIgnoresCheckpoint(t *testing.T) {
	primary := &stubSource{
		kind: models.SourceAPI,
		pages: map[int]*models.PageResult{
			1: apiPage(1, true, apiEntry(1, "Ali Farag"), apiEntry(2, "Diego Elias")),
			2: apiPage(2, false, apiEntry(3, "Paul Coll"), apiEntry(4, "Mostafa Asal")),
		},
	}
	fallback := &stubSource{kind: models.SourceHTML}
	f, store := newTestFetcher(t, primary, fallback)

	stale := models.NewResultSet(models.SourceAPI)
	stale.API = []models.APIPlayer{{PlayerBase: models.PlayerBase{Rank: 99, Name: "Stale", Tournaments: 1, Points: 1}, ID: 9}}
	if err := store.Save(&models.Checkpoint{
		Gender: models.GenderMale, PageSize: 2, LastCompletedPage: 1,
		Source: models.SourceAPI, Records: stale,
	}); err != nil {
		t.Fatalf("Failed to seed checkpoint: %v", err)
	}

	session := maleSession(2)
	session.Resume = false
	records, _, err := f.Run(context.Background(), session)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertAPIRanks(t, records, 1, 2, 3, 4)
	if primary.fetched[0] != 1 {
		t.Errorf("Expected fetch to start at page 1, got %v", primary.fetched)
	}
}

func TestRun_MismatchedCheckpointIgnored(t *testing.T) {
	primary := &stubSource{
		kind: models.SourceAPI,
		pages: map[int]*models.PageResult{
			1: apiPage(1, false, apiEntry(1, "Ali Farag"), apiEntry(2, "Diego Elias")),
		},
	}
	fallback := &stubSource{kind: models.SourceHTML}
	f, store := newTestFetcher(t, primary, fallback)

	// Same gender, different page size: must not be used for seeding
	other := models.NewResultSet(models.SourceAPI)
	if err := store.Save(&models.Checkpoint{
		Gender: models.GenderMale, PageSize: 50, LastCompletedPage: 7,
		Source: models.SourceAPI, Records: other,
	}); err != nil {
		t.Fatalf("Failed to seed checkpoint: %v", err)
	}

	records, stats, err := f.Run(context.Background(), maleSession(2))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertAPIRanks(t, records, 1, 2)
	if stats.ResumedAtPage != 1 {
		t.Errorf("Expected fresh start at page 1, got %d", stats.ResumedAtPage)
	}
}

func TestRun_SwitchesToFallbackOnce(t *testing.T) {
	primary := &stubSource{kind: models.SourceAPI, err: errors.New("api unreachable")}
	fallback := &stubSource{
		kind: models.SourceHTML,
		pages: map[int]*models.PageResult{
			1: htmlPage(1, false, htmlEntry(1, "Ali Farag"), htmlEntry(2, "Diego Elias")),
		},
	}
	f, store := newTestFetcher(t, primary, fallback)

	records, stats, err := f.Run(context.Background(), maleSession(2))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if records.Source != models.SourceHTML {
		t.Fatalf("Expected html result set, got %s", records.Source)
	}
	if !records.Degraded() {
		t.Error("Expected a degraded result set")
	}
	if len(records.HTML) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records.HTML))
	}
	if len(primary.fetched) != 1 {
		t.Errorf("Expected primary to be tried exactly once, got %v", primary.fetched)
	}
	if !stats.SourceSwitched {
		t.Error("Expected stats to record the source switch")
	}
	if cp := store.Load(models.GenderMale); cp != nil {
		t.Errorf("Expected checkpoint cleared after completion, got %+v", cp)
	}
}

func TestRun_FallbackRestartsAtPageOne(t *testing.T) {
	// Primary commits page 1, then dies on page 2. The fallback set must
	// start over from page 1 with no primary records in it.
	primary := &stubSource{
		kind: models.SourceAPI,
		pages: map[int]*models.PageResult{
			1: apiPage(1, true, apiEntry(1, "Ali Farag"), apiEntry(2, "Diego Elias")),
		},
		failOn: map[int]error{2: errors.New("api unreachable")},
	}
	fallback := &stubSource{
		kind: models.SourceHTML,
		pages: map[int]*models.PageResult{
			1: htmlPage(1, false, htmlEntry(1, "Ali Farag"), htmlEntry(2, "Diego Elias"), htmlEntry(3, "Paul Coll")),
		},
	}
	f, _ := newTestFetcher(t, primary, fallback)

	records, _, err := f.Run(context.Background(), maleSession(2))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if records.Source != models.SourceHTML {
		t.Fatalf("Expected html result set, got %s", records.Source)
	}
	if len(records.HTML) != 3 {
		t.Errorf("Expected 3 fallback records only, got %d", len(records.HTML))
	}
	if len(records.API) != 0 {
		t.Errorf("Expected no primary records to survive the switch, got %d", len(records.API))
	}
	if len(fallback.fetched) == 0 || fallback.fetched[0] != 1 {
		t.Errorf("Expected fallback to restart at page 1, got %v", fallback.fetched)
	}
}

func TestRun_FailedWhenBothSourcesFail(t *testing.T) {
	primaryErr := errors.New("api unreachable")
	fallbackErr := errors.New("html unreachable")
	primary := &stubSource{kind: models.SourceAPI, err: primaryErr}
	fallback := &stubSource{kind: models.SourceHTML, err: fallbackErr}
	f, _ := newTestFetcher(t, primary, fallback)

	records, _, err := f.Run(context.Background(), maleSession(2))
	if err == nil {
		t.Fatal("Expected an error, got nil")
	}
	if records != nil {
		t.Errorf("Expected no partial result set, got %d records", records.Len())
	}
	if !errors.Is(err, primaryErr) {
		t.Errorf("Expected error chain to include the primary failure, got: %v", err)
	}
	if !errors.Is(err, fallbackErr) {
		t.Errorf("Expected error chain to include the fallback failure, got: %v", err)
	}
	if len(primary.fetched) != 1 {
		t.Errorf("Expected primary tried exactly once, got %v", primary.fetched)
	}
	if len(fallback.fetched) != 1 {
		t.Errorf("Expected fallback tried exactly once with no revert, got %v", fallback.fetched)
	}
}

func TestRun_SwitchClearsPrimaryCheckpoint(t *testing.T) {
	primary := &stubSource{
		kind: models.SourceAPI,
		pages: map[int]*models.PageResult{
			1: apiPage(1, true, apiEntry(1, "Ali Farag"), apiEntry(2, "Diego Elias")),
		},
		failOn: map[int]error{2: errors.New("api unreachable")},
	}
	fallback := &stubSource{kind: models.SourceHTML, err: errors.New("html unreachable")}
	f, store := newTestFetcher(t, primary, fallback)

	_, _, err := f.Run(context.Background(), maleSession(2))
	if err == nil {
		t.Fatal("Expected an error, got nil")
	}
	if cp := store.Load(models.GenderMale); cp != nil {
		t.Errorf("Expected primary checkpoint removed at switch, got %+v", cp)
	}
}

func TestRun_FailureKeepsFallbackCheckpoint(t *testing.T) {
	primary := &stubSource{kind: models.SourceAPI, err: errors.New("api unreachable")}
	fallback := &stubSource{
		kind: models.SourceHTML,
		pages: map[int]*models.PageResult{
			1: htmlPage(1, true, htmlEntry(1, "Ali Farag"), htmlEntry(2, "Diego Elias")),
		},
		failOn: map[int]error{2: errors.New("html unreachable")},
	}
	f, store := newTestFetcher(t, primary, fallback)

	records, _, err := f.Run(context.Background(), maleSession(2))
	if err == nil {
		t.Fatal("Expected an error, got nil")
	}
	if records != nil {
		t.Errorf("Expected no partial result set, got %d records", records.Len())
	}

	cp := store.Load(models.GenderMale)
	if cp == nil {
		t.Fatal("Expected fallback progress to survive the failure")
	}
	if cp.Source != models.SourceHTML {
		t.Errorf("Expected html checkpoint, got %s", cp.Source)
	}
	if cp.LastCompletedPage != 1 {
		t.Errorf("Expected last completed page 1, got %d", cp.LastCompletedPage)
	}
	if cp.SessionID == "" {
		t.Error("Expected checkpoint to carry a session id")
	}
}

func TestRun_ResumeKeepsSessionID(t *testing.T) {
	const seededID = "1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed"

	primary := &stubSource{kind: models.SourceAPI, err: errors.New("api unreachable")}
	fallback := &stubSource{
		kind: models.SourceHTML,
		pages: map[int]*models.PageResult{
			2: htmlPage(2, true, htmlEntry(2, "Diego Elias")),
		},
		failOn: map[int]error{3: errors.New("html unreachable")},
	}
	f, store := newTestFetcher(t, primary, fallback)

	seeded := models.NewResultSet(models.SourceHTML)
	seeded.HTML = []models.HTMLPlayer{
		{PlayerBase: models.PlayerBase{Rank: 1, Name: "Ali Farag", Tournaments: 10, Points: 19000}},
	}
	if err := store.Save(&models.Checkpoint{
		SessionID: seededID,
		Gender:    models.GenderMale, PageSize: 1, LastCompletedPage: 1,
		Source: models.SourceHTML, Records: seeded,
	}); err != nil {
		t.Fatalf("Failed to seed checkpoint: %v", err)
	}

	_, _, err := f.Run(context.Background(), Session{Gender: models.GenderMale, PageSize: 1, Resume: true})
	if err == nil {
		t.Fatal("Expected an error, got nil")
	}

	cp := store.Load(models.GenderMale)
	if cp == nil {
		t.Fatal("Expected checkpoint after a failed resumed run")
	}
	if cp.SessionID != seededID {
		t.Errorf("Expected resumed session to keep id %s, got %s", seededID, cp.SessionID)
	}
	if cp.LastCompletedPage != 2 {
		t.Errorf("Expected last completed page 2, got %d", cp.LastCompletedPage)
	}
}

func TestRun_SchemaErrorTriggersSwitch(t *testing.T) {
	bad := apiEntry(2, "Diego Elias")
	delete(bad, "World Ranking")
	primary := &stubSource{
		kind: models.SourceAPI,
		pages: map[int]*models.PageResult{
			1: apiPage(1, false, apiEntry(1, "Ali Farag"), bad),
		},
	}
	fallback := &stubSource{
		kind: models.SourceHTML,
		pages: map[int]*models.PageResult{
			1: htmlPage(1, false, htmlEntry(1, "Ali Farag"), htmlEntry(2, "Diego Elias")),
		},
	}
	f, _ := newTestFetcher(t, primary, fallback)

	records, stats, err := f.Run(context.Background(), maleSession(2))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if records.Source != models.SourceHTML {
		t.Fatalf("Expected html result set after schema failure, got %s", records.Source)
	}
	if !stats.SourceSwitched {
		t.Error("Expected stats to record the source switch")
	}
}

func TestRun_SchemaErrorCommitsNothing(t *testing.T) {
	bad := apiEntry(2, "Diego Elias")
	delete(bad, "World Ranking")
	primary := &stubSource{
		kind: models.SourceAPI,
		pages: map[int]*models.PageResult{
			1: apiPage(1, false, apiEntry(1, "Ali Farag"), bad),
		},
	}
	fallback := &stubSource{kind: models.SourceHTML, err: errors.New("html unreachable")}
	f, store := newTestFetcher(t, primary, fallback)

	records, _, err := f.Run(context.Background(), maleSession(2))
	if err == nil {
		t.Fatal("Expected an error, got nil")
	}
	if records != nil {
		t.Errorf("Expected no records from a page that failed validation, got %d", records.Len())
	}

	var schemaErr *schema.Error
	if !errors.As(err, &schemaErr) {
		t.Errorf("Expected a schema error in the chain, got: %v", err)
	}
	if cp := store.Load(models.GenderMale); cp != nil {
		t.Errorf("Expected nothing committed, got checkpoint %+v", cp)
	}
}

func TestRun_ResumesFallbackCheckpoint(t *testing.T) {
	primary := &stubSource{kind: models.SourceAPI, err: errors.New("api unreachable")}
	fallback := &stubSource{
		kind: models.SourceHTML,
		pages: map[int]*models.PageResult{
			2: htmlPage(2, false, htmlEntry(3, "Paul Coll"), htmlEntry(4, "Mostafa Asal")),
		},
	}
	f, store := newTestFetcher(t, primary, fallback)

	seeded := models.NewResultSet(models.SourceHTML)
	seeded.HTML = []models.HTMLPlayer{
		{PlayerBase: models.PlayerBase{Rank: 1, Name: "Ali Farag", Tournaments: 10, Points: 19000}},
		{PlayerBase: models.PlayerBase{Rank: 2, Name: "Diego Elias", Tournaments: 10, Points: 18000}},
	}
	if err := store.Save(&models.Checkpoint{
		Gender: models.GenderMale, PageSize: 2, LastCompletedPage: 1,
		Source: models.SourceHTML, Records: seeded,
	}); err != nil {
		t.Fatalf("Failed to seed checkpoint: %v", err)
	}

	records, stats, err := f.Run(context.Background(), maleSession(2))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(primary.fetched) != 0 {
		t.Errorf("Expected primary never tried when resuming a fallback run, got %v", primary.fetched)
	}
	if len(fallback.fetched) != 1 || fallback.fetched[0] != 2 {
		t.Errorf("Expected only page 2 fetched, got %v", fallback.fetched)
	}
	if len(records.HTML) != 4 {
		t.Fatalf("Expected 4 records, got %d", len(records.HTML))
	}
	if stats.ResumedAtPage != 2 {
		t.Errorf("Expected resume at page 2, got %d", stats.ResumedAtPage)
	}
}

func TestRun_ResumedFallbackFailureIsTerminal(t *testing.T) {
	primary := &stubSource{kind: models.SourceAPI}
	fallback := &stubSource{kind: models.SourceHTML, err: errors.New("html unreachable")}
	f, store := newTestFetcher(t, primary, fallback)

	seeded := models.NewResultSet(models.SourceHTML)
	if err := store.Save(&models.Checkpoint{
		Gender: models.GenderMale, PageSize: 2, LastCompletedPage: 1,
		Source: models.SourceHTML, Records: seeded,
	}); err != nil {
		t.Fatalf("Failed to seed checkpoint: %v", err)
	}

	_, _, err := f.Run(context.Background(), maleSession(2))
	if err == nil {
		t.Fatal("Expected an error, got nil")
	}
	if len(primary.fetched) != 0 {
		t.Errorf("Expected no revert to primary after a spent switch, got %v", primary.fetched)
	}
}

func TestRun_CancelledBeforeFirstFetch(t *testing.T) {
	primary := &stubSource{kind: models.SourceAPI}
	fallback := &stubSource{kind: models.SourceHTML}
	f, _ := newTestFetcher(t, primary, fallback)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, _, err := f.Run(ctx, maleSession(2))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got: %v", err)
	}
	if records != nil {
		t.Error("Expected no result set on cancellation")
	}
	if len(primary.fetched) != 0 {
		t.Errorf("Expected no fetches after cancellation, got %v", primary.fetched)
	}
}

func TestRun_CancelledAfterCommitStopsAtBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	primary := &stubSource{
		kind: models.SourceAPI,
		pages: map[int]*models.PageResult{
			1: apiPage(1, true, apiEntry(1, "Ali Farag"), apiEntry(2, "Diego Elias")),
			2: apiPage(2, false, apiEntry(3, "Paul Coll"), apiEntry(4, "Mostafa Asal")),
		},
		// Cancellation arrives while page 1 is in flight; the commit must
		// still complete and page 2 must never be requested.
		onFetch: func(page int) {
			if page == 1 {
				cancel()
			}
		},
	}
	fallback := &stubSource{kind: models.SourceHTML}
	f, store := newTestFetcher(t, primary, fallback)

	records, _, err := f.Run(ctx, maleSession(2))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got: %v", err)
	}
	if records != nil {
		t.Error("Expected no result set on cancellation")
	}
	if len(primary.fetched) != 1 {
		t.Errorf("Expected exactly one fetch before stopping, got %v", primary.fetched)
	}
	if len(fallback.fetched) != 0 {
		t.Errorf("Expected cancellation not to be treated as a source failure, got fallback calls %v", fallback.fetched)
	}

	cp := store.Load(models.GenderMale)
	if cp == nil {
		t.Fatal("Expected committed progress to survive cancellation")
	}
	if cp.LastCompletedPage != 1 {
		t.Errorf("Expected last completed page 1, got %d", cp.LastCompletedPage)
	}
	if cp.Records.Len() != 2 {
		t.Errorf("Expected 2 checkpointed records, got %d", cp.Records.Len())
	}
}

func TestRun_MaxPagesStopsEarly(t *testing.T) {
	primary := &stubSource{
		kind: models.SourceAPI,
		pages: map[int]*models.PageResult{
			1: apiPage(1, true, apiEntry(1, "Ali Farag"), apiEntry(2, "Diego Elias")),
			2: apiPage(2, true, apiEntry(3, "Paul Coll"), apiEntry(4, "Mostafa Asal")),
			3: apiPage(3, false, apiEntry(5, "Karim Gawad")),
		},
	}
	fallback := &stubSource{kind: models.SourceHTML}
	f, store := newTestFetcher(t, primary, fallback)

	session := maleSession(2)
	session.MaxPages = 2
	records, _, err := f.Run(context.Background(), session)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertAPIRanks(t, records, 1, 2, 3, 4)
	if len(primary.fetched) != 2 {
		t.Errorf("Expected 2 fetches, got %v", primary.fetched)
	}
	if cp := store.Load(models.GenderMale); cp != nil {
		t.Errorf("Expected checkpoint cleared after completion, got %+v", cp)
	}
}

func TestRun_EmptyFirstPage(t *testing.T) {
	primary := &stubSource{
		kind: models.SourceAPI,
		pages: map[int]*models.PageResult{
			1: apiPage(1, false),
		},
	}
	fallback := &stubSource{kind: models.SourceHTML}
	f, _ := newTestFetcher(t, primary, fallback)

	records, _, err := f.Run(context.Background(), maleSession(2))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if records.Len() != 0 {
		t.Errorf("Expected an empty result set, got %d records", records.Len())
	}
	if !records.Complete() {
		t.Error("Expected an empty primary run to still count as complete")
	}
}

func TestRun_InvalidSession(t *testing.T) {
	primary := &stubSource{kind: models.SourceAPI}
	fallback := &stubSource{kind: models.SourceHTML}
	f, _ := newTestFetcher(t, primary, fallback)

	tests := []struct {
		name    string
		session Session
	}{
		{"unknown gender", Session{Gender: "other", PageSize: 100}},
		{"zero page size", Session{Gender: models.GenderMale, PageSize: 0}},
		{"negative max pages", Session{Gender: models.GenderMale, PageSize: 100, MaxPages: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := f.Run(context.Background(), tt.session); err == nil {
				t.Error("Expected an error, got nil")
			}
		})
	}

	if len(primary.fetched) != 0 {
		t.Errorf("Expected no fetches for invalid sessions, got %v", primary.fetched)
	}
}
