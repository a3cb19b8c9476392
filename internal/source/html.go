package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nlindqvist/psarank/internal/transport"
	"github.com/nlindqvist/psarank/pkg/models"
)

const (
	// DefaultHTMLBaseURL is the public rankings listing used as fallback
	DefaultHTMLBaseURL = "https://www.psasquashtour.com/rankings"
	// DefaultHTMLTimeout bounds a single HTML page request
	DefaultHTMLTimeout = 15 * time.Second
)

// htmlCellKeys maps table cell positions to raw entry keys
var htmlCellKeys = []string{"rank", "name", "tournaments", "points"}

// HTMLSource parses the rendered rankings table from the public site. It is
// the fallback source: entries carry no identifier and no biographical
// fields, and page boundaries are inferred from table size rather than
// reported by the upstream.
type HTMLSource struct {
	client  *transport.Client
	logger  *slog.Logger
	baseURL string
	timeout time.Duration
}

// NewHTMLSource creates the fallback source adapter. Empty baseURL and zero
// timeout fall back to defaults.
func NewHTMLSource(client *transport.Client, logger *slog.Logger, baseURL string, timeout time.Duration) *HTMLSource {
	if baseURL == "" {
		baseURL = DefaultHTMLBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultHTMLTimeout
	}
	return &HTMLSource{
		client:  client,
		logger:  logger,
		baseURL: baseURL,
		timeout: timeout,
	}
}

// Kind identifies the record variant produced by this source
func (s *HTMLSource) Kind() models.SourceKind {
	return models.SourceHTML
}

// FetchPage requests one rendered listing page and extracts the ranking
// table rows as raw entries
func (s *HTMLSource) FetchPage(ctx context.Context, gender models.Gender, page, pageSize int) (*models.PageResult, error) {
	url := fmt.Sprintf("%s/%s/?page=%d", s.baseURL, gender, page)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Info("Fetching rankings page",
		"source", models.SourceHTML,
		"gender", gender,
		"page", page)
	s.logger.Debug("Request URL", "url", url)

	body, err := s.client.Get(ctx, url, "")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{
			Source:  models.SourceHTML,
			Page:    page,
			Message: fmt.Sprintf("invalid HTML: %v", err),
		}
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, &ParseError{
			Source:  models.SourceHTML,
			Page:    page,
			Message: "could not find rankings table",
		}
	}

	tbody := table.Find("tbody").First()
	var rows *goquery.Selection
	if tbody.Length() > 0 {
		rows = tbody.Find("tr")
	} else {
		s.logger.Debug("No tbody found, reading rows directly from table")
		rows = table.ChildrenFiltered("tr")
	}
	if rows.Length() == 0 {
		return nil, &ParseError{
			Source:  models.SourceHTML,
			Page:    page,
			Message: "rankings table structure is empty or invalid",
		}
	}

	var entries []models.RawEntry
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			// Header rows carry no data cells
			return
		}
		entry := models.RawEntry{}
		cells.Each(func(i int, cell *goquery.Selection) {
			if i < len(htmlCellKeys) {
				entry[htmlCellKeys[i]] = strings.TrimSpace(cell.Text())
			}
		})
		entries = append(entries, entry)
	})

	// The table exposes no continuation flag; a full page suggests more may
	// follow. This is inherently lower-confidence than the API signal.
	hasNext := len(entries) >= pageSize

	return &models.PageResult{
		Source:  models.SourceHTML,
		Page:    page,
		Entries: entries,
		HasNext: hasNext,
	}, nil
}
