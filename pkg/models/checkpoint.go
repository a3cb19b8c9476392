package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Checkpoint is the durable snapshot of one gender's pagination progress.
// It is replaced after every committed page and cleared when the session
// reaches its terminal success state.
type Checkpoint struct {
	SessionID         string
	Gender            Gender
	PageSize          int
	LastCompletedPage int
	Source            SourceKind
	Records           *ResultSet
	UpdatedAt         time.Time
}

// checkpointFile is the on-disk shape. accumulated_records is a single flat
// array; the top-level source tag selects the record variant inside it.
type checkpointFile struct {
	SessionID         string          `json:"session_id"`
	Gender            Gender          `json:"gender"`
	PageSize          int             `json:"page_size"`
	LastCompletedPage int             `json:"last_completed_page"`
	Source            SourceKind      `json:"source"`
	TotalRecords      int             `json:"total_records"`
	Records           json.RawMessage `json:"accumulated_records"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Matches reports whether the checkpoint belongs to a session with the same
// gender and page size. A mismatched checkpoint is superseded, never resumed.
func (c *Checkpoint) Matches(gender Gender, pageSize int) bool {
	return c.Gender == gender && c.PageSize == pageSize
}

// MarshalJSON flattens the tagged record set into the accumulated_records
// array selected by the source tag
func (c Checkpoint) MarshalJSON() ([]byte, error) {
	var (
		raw   json.RawMessage
		err   error
		total int
	)
	switch c.Source {
	case SourceHTML:
		records := []HTMLPlayer{}
		if c.Records != nil {
			records = append(records, c.Records.HTML...)
		}
		total = len(records)
		raw, err = json.Marshal(records)
	default:
		records := []APIPlayer{}
		if c.Records != nil {
			records = append(records, c.Records.API...)
		}
		total = len(records)
		raw, err = json.Marshal(records)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(checkpointFile{
		SessionID:         c.SessionID,
		Gender:            c.Gender,
		PageSize:          c.PageSize,
		LastCompletedPage: c.LastCompletedPage,
		Source:            c.Source,
		TotalRecords:      total,
		Records:           raw,
		UpdatedAt:         c.UpdatedAt,
	})
}

// UnmarshalJSON rebuilds the tagged record set from the flat
// accumulated_records array
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	var file checkpointFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if !file.Source.Valid() {
		return fmt.Errorf("unknown record source %q", file.Source)
	}

	records := NewResultSet(file.Source)
	if len(file.Records) > 0 {
		switch file.Source {
		case SourceAPI:
			if err := json.Unmarshal(file.Records, &records.API); err != nil {
				return fmt.Errorf("decoding api records: %w", err)
			}
		case SourceHTML:
			if err := json.Unmarshal(file.Records, &records.HTML); err != nil {
				return fmt.Errorf("decoding html records: %w", err)
			}
		}
	}

	c.SessionID = file.SessionID
	c.Gender = file.Gender
	c.PageSize = file.PageSize
	c.LastCompletedPage = file.LastCompletedPage
	c.Source = file.Source
	c.Records = records
	c.UpdatedAt = file.UpdatedAt
	return nil
}
