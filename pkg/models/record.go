package models

import (
	"encoding/json"
	"fmt"
)

// SourceKind discriminates which upstream produced a record set
type SourceKind string

const (
	// SourceAPI is the primary structured rankings endpoint (complete records)
	SourceAPI SourceKind = "api"
	// SourceHTML is the public rankings table used as fallback (degraded records)
	SourceHTML SourceKind = "html"
)

// Valid reports whether k is a known source tag
func (k SourceKind) Valid() bool {
	return k == SourceAPI || k == SourceHTML
}

// Gender selects which ranking list a session fetches
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Valid reports whether g is a known gender value
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// PlayerBase holds the fields every ranking record carries regardless of source
type PlayerBase struct {
	Rank        int    `json:"rank"`
	Name        string `json:"name"`
	Tournaments int    `json:"tournaments"`
	Points      int    `json:"points"`
}

// APIPlayer is a complete record from the primary source. Biographical fields
// stay nil when the upstream omits them; they are never given placeholders.
type APIPlayer struct {
	PlayerBase
	ID        int64   `json:"id"`
	HeightCM  *int    `json:"height_cm,omitempty"`
	WeightKG  *int    `json:"weight_kg,omitempty"`
	Birthdate *string `json:"birthdate,omitempty"`
	Country   *string `json:"country,omitempty"`
}

// MarshalJSON adds the source discriminant so serialized records stay
// distinguishable outside the type system
func (p APIPlayer) MarshalJSON() ([]byte, error) {
	type plain APIPlayer
	return json.Marshal(struct {
		plain
		Source SourceKind `json:"source"`
	}{plain(p), SourceAPI})
}

// HTMLPlayer is a degraded record from the fallback source. It carries no
// identifier and no biographical fields, so code needing them cannot compile
// against it.
type HTMLPlayer struct {
	PlayerBase
}

// MarshalJSON adds the source discriminant so serialized records stay
// distinguishable outside the type system
func (p HTMLPlayer) MarshalJSON() ([]byte, error) {
	type plain HTMLPlayer
	return json.Marshal(struct {
		plain
		Source SourceKind `json:"source"`
	}{plain(p), SourceHTML})
}

// RawEntry is one unvalidated upstream record, keyed exactly as the source
// delivered it
type RawEntry map[string]any

// PageResult holds the raw outcome of fetching a single page from one source
type PageResult struct {
	Source     SourceKind
	Page       int
	Entries    []RawEntry
	HasNext    bool
	TotalPages int // 0 when the source does not report it
}

// ResultSet accumulates the validated records of one session. Every record in
// a set comes from the same source; primary and fallback output are never
// interleaved.
type ResultSet struct {
	Source SourceKind
	API    []APIPlayer
	HTML   []HTMLPlayer
}

// NewResultSet returns an empty set bound to the given source
func NewResultSet(source SourceKind) *ResultSet {
	return &ResultSet{Source: source}
}

// Len returns the number of accumulated records
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	if rs.Source == SourceHTML {
		return len(rs.HTML)
	}
	return len(rs.API)
}

// Degraded reports whether the set came from the fallback source
func (rs *ResultSet) Degraded() bool {
	return rs.Source == SourceHTML
}

// Complete reports whether the set came from the primary source
func (rs *ResultSet) Complete() bool {
	return rs.Source == SourceAPI
}

// Append adds the records of page to the set. A page from a different source
// is refused; a mixed set cannot exist.
func (rs *ResultSet) Append(page *ResultSet) error {
	if page.Source != rs.Source {
		return fmt.Errorf("cannot append %s records to a %s result set", page.Source, rs.Source)
	}
	rs.API = append(rs.API, page.API...)
	rs.HTML = append(rs.HTML, page.HTML...)
	return nil
}
