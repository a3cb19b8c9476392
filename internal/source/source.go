package source

import (
	"context"
	"fmt"

	"github.com/nlindqvist/psarank/pkg/models"
)

// Source fetches one page of raw ranking entries from a single upstream.
// Implementations do not validate entries; that is the schema validator's
// job.
type Source interface {
	// Kind identifies which record variant this source produces
	Kind() models.SourceKind
	// FetchPage retrieves one page of raw entries for a gender
	FetchPage(ctx context.Context, gender models.Gender, page, pageSize int) (*models.PageResult, error)
}

// ParseError indicates a response was received but the expected structure is
// absent. It is never retried; the shape, not the network, is at fault.
type ParseError struct {
	Source  models.SourceKind
	Page    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s source: cannot parse page %d: %s", e.Source, e.Page, e.Message)
}
