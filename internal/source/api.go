package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nlindqvist/psarank/internal/transport"
	"github.com/nlindqvist/psarank/pkg/models"
)

const (
	// DefaultAPIBaseURL is the structured rankings endpoint
	DefaultAPIBaseURL = "https://psa-api.ptsportsuite.com/rankedplayers"
	// DefaultAPITimeout bounds a single API page request
	DefaultAPITimeout = 10 * time.Second
)

// APISource fetches ranked players from the backend data endpoint. It is the
// primary source; its entries carry identifiers and biographical fields.
type APISource struct {
	client  *transport.Client
	logger  *slog.Logger
	baseURL string
	timeout time.Duration
}

// NewAPISource creates the primary source adapter. Empty baseURL and zero
// timeout fall back to defaults.
func NewAPISource(client *transport.Client, logger *slog.Logger, baseURL string, timeout time.Duration) *APISource {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultAPITimeout
	}
	return &APISource{
		client:  client,
		logger:  logger,
		baseURL: baseURL,
		timeout: timeout,
	}
}

// Kind identifies the record variant produced by this source
func (s *APISource) Kind() models.SourceKind {
	return models.SourceAPI
}

// apiResponse mirrors the upstream object shape. HasMore is a pointer so a
// missing key is distinguishable from false.
type apiResponse struct {
	Players    []models.RawEntry `json:"players"`
	HasMore    *bool             `json:"hasMore"`
	TotalPages int               `json:"totalPages"`
}

// FetchPage requests one page of ranked players as JSON
func (s *APISource) FetchPage(ctx context.Context, gender models.Gender, page, pageSize int) (*models.PageResult, error) {
	url := fmt.Sprintf("%s/%s?page=%d&pageSize=%d", s.baseURL, gender, page, pageSize)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Info("Fetching rankings page",
		"source", models.SourceAPI,
		"gender", gender,
		"page", page)
	s.logger.Debug("Request URL", "url", url)

	body, err := s.client.Get(ctx, url, "application/json")
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)

	// Some deployments answer with a bare array instead of the paginated
	// object; treat that as a complete dataset.
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []models.RawEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, &ParseError{
				Source:  models.SourceAPI,
				Page:    page,
				Message: fmt.Sprintf("invalid JSON array: %v", err),
			}
		}
		s.logger.Warn("API returned an array instead of an object, assuming complete dataset",
			"gender", gender,
			"page", page,
			"entries", len(entries))
		return &models.PageResult{
			Source:  models.SourceAPI,
			Page:    page,
			Entries: entries,
			HasNext: false,
		}, nil
	}

	var resp apiResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, &ParseError{
			Source:  models.SourceAPI,
			Page:    page,
			Message: fmt.Sprintf("invalid JSON response: %v", err),
		}
	}
	if resp.Players == nil {
		return nil, &ParseError{
			Source:  models.SourceAPI,
			Page:    page,
			Message: "response missing required 'players' key",
		}
	}
	if resp.HasMore == nil {
		return nil, &ParseError{
			Source:  models.SourceAPI,
			Page:    page,
			Message: "response missing required 'hasMore' key, cannot determine pagination state",
		}
	}

	// A short page means the dataset is exhausted even when hasMore claims
	// otherwise.
	hasNext := *resp.HasMore && len(resp.Players) >= pageSize

	return &models.PageResult{
		Source:     models.SourceAPI,
		Page:       page,
		Entries:    resp.Players,
		HasNext:    hasNext,
		TotalPages: resp.TotalPages,
	}, nil
}
