package schema

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nlindqvist/psarank/pkg/models"
)

// Upstream field names for the api source
const (
	apiFieldRank        = "World Ranking"
	apiFieldName        = "Name"
	apiFieldID          = "Id"
	apiFieldTournaments = "Tournaments"
	apiFieldPoints      = "Total Points"
	apiFieldHeight      = "Height"
	apiFieldWeight      = "Weight"
	apiFieldBirthdate   = "Birthdate"
	apiFieldCountry     = "Country"
)

// Field names for html source entries
const (
	htmlFieldRank        = "rank"
	htmlFieldName        = "name"
	htmlFieldTournaments = "tournaments"
	htmlFieldPoints      = "points"
)

// Error indicates a raw entry failed schema validation. An entry that fails
// produces no record, and the page it arrived on is not committed.
type Error struct {
	Source  models.SourceKind
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("schema validation failed (%s source): field %q: %s", e.Source, e.Field, e.Message)
}

// Validator converts raw page entries into tagged records. Mandatory fields
// are enforced fail-fast so an upstream shape change surfaces immediately
// instead of producing corrupt rows. It never fabricates a default for a
// required field.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a schema validator
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger}
}

// Page validates every entry of a raw page. The first invalid entry aborts
// the whole page with zero records.
func (v *Validator) Page(page *models.PageResult) (*models.ResultSet, error) {
	records := models.NewResultSet(page.Source)
	switch page.Source {
	case models.SourceAPI:
		for _, entry := range page.Entries {
			player, err := v.APIRecord(entry)
			if err != nil {
				return nil, err
			}
			records.API = append(records.API, player)
		}
	case models.SourceHTML:
		for _, entry := range page.Entries {
			player, err := v.HTMLRecord(entry)
			if err != nil {
				return nil, err
			}
			records.HTML = append(records.HTML, player)
		}
	default:
		return nil, fmt.Errorf("unknown page source %q", page.Source)
	}
	return records, nil
}

// APIRecord validates one raw entry from the primary source into a complete
// record. Biographical fields are optional: absent stays absent, and a
// malformed measurement is dropped with a warning rather than failing the
// entry.
func (v *Validator) APIRecord(entry models.RawEntry) (models.APIPlayer, error) {
	var player models.APIPlayer

	rank, err := v.intField(models.SourceAPI, entry, apiFieldRank, 1)
	if err != nil {
		return player, err
	}
	name, err := v.stringField(models.SourceAPI, entry, apiFieldName)
	if err != nil {
		return player, err
	}
	id, err := v.idField(models.SourceAPI, entry, apiFieldID)
	if err != nil {
		return player, err
	}
	tournaments, err := v.intField(models.SourceAPI, entry, apiFieldTournaments, 0)
	if err != nil {
		return player, err
	}
	points, err := v.intField(models.SourceAPI, entry, apiFieldPoints, 0)
	if err != nil {
		return player, err
	}

	player = models.APIPlayer{
		PlayerBase: models.PlayerBase{
			Rank:        rank,
			Name:        name,
			Tournaments: tournaments,
			Points:      points,
		},
		ID: id,
	}

	if raw, ok := entry[apiFieldHeight]; ok {
		height, err := ParseMeasure(stringify(raw), apiFieldHeight)
		if err != nil {
			v.logger.Warn("Skipping height", "player", name, "error", err)
		} else {
			player.HeightCM = height
		}
	}
	if raw, ok := entry[apiFieldWeight]; ok {
		weight, err := ParseMeasure(stringify(raw), apiFieldWeight)
		if err != nil {
			v.logger.Warn("Skipping weight", "player", name, "error", err)
		} else {
			player.WeightKG = weight
		}
	}
	if raw, ok := entry[apiFieldBirthdate]; ok {
		if s := stringify(raw); s != "" {
			player.Birthdate = &s
		}
	}
	if raw, ok := entry[apiFieldCountry]; ok {
		if s := stringify(raw); s != "" {
			player.Country = &s
		}
	}

	v.logger.Debug("Validated player", "player", name, "rank", rank)
	return player, nil
}

// HTMLRecord validates one raw entry from the fallback source into a
// degraded record
func (v *Validator) HTMLRecord(entry models.RawEntry) (models.HTMLPlayer, error) {
	var player models.HTMLPlayer

	rank, err := v.intField(models.SourceHTML, entry, htmlFieldRank, 1)
	if err != nil {
		return player, err
	}
	name, err := v.stringField(models.SourceHTML, entry, htmlFieldName)
	if err != nil {
		return player, err
	}
	tournaments, err := v.intField(models.SourceHTML, entry, htmlFieldTournaments, 0)
	if err != nil {
		return player, err
	}
	points, err := v.intField(models.SourceHTML, entry, htmlFieldPoints, 0)
	if err != nil {
		return player, err
	}

	player = models.HTMLPlayer{
		PlayerBase: models.PlayerBase{
			Rank:        rank,
			Name:        name,
			Tournaments: tournaments,
			Points:      points,
		},
	}

	v.logger.Debug("Validated player", "player", name, "rank", rank)
	return player, nil
}

// intField reads a mandatory numeric field that may arrive as a JSON number
// or a numeric string, tolerating thousands separators
func (v *Validator) intField(source models.SourceKind, entry models.RawEntry, key string, min int) (int, error) {
	raw, ok := entry[key]
	if !ok {
		return 0, &Error{Source: source, Field: key, Message: "missing mandatory field"}
	}
	n, err := toInt(raw)
	if err != nil {
		return 0, &Error{Source: source, Field: key, Message: err.Error()}
	}
	if n < min {
		return 0, &Error{Source: source, Field: key, Message: fmt.Sprintf("value %d below minimum %d", n, min)}
	}
	return n, nil
}

// idField reads the mandatory record identifier
func (v *Validator) idField(source models.SourceKind, entry models.RawEntry, key string) (int64, error) {
	raw, ok := entry[key]
	if !ok {
		return 0, &Error{Source: source, Field: key, Message: "missing mandatory field"}
	}
	switch val := raw.(type) {
	case float64:
		return int64(val), nil
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, &Error{Source: source, Field: key, Message: fmt.Sprintf("unparsable identifier %q", val)}
		}
		return id, nil
	default:
		return 0, &Error{Source: source, Field: key, Message: fmt.Sprintf("unexpected type %T", raw)}
	}
}

// stringField reads a mandatory non-empty string field
func (v *Validator) stringField(source models.SourceKind, entry models.RawEntry, key string) (string, error) {
	raw, ok := entry[key]
	if !ok {
		return "", &Error{Source: source, Field: key, Message: "missing mandatory field"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &Error{Source: source, Field: key, Message: fmt.Sprintf("expected string, got %T", raw)}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &Error{Source: source, Field: key, Message: "empty value"}
	}
	return s, nil
}

func toInt(raw any) (int, error) {
	switch val := raw.(type) {
	case float64:
		return int(val), nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(val), ",", "")
		if s == "" {
			return 0, fmt.Errorf("empty value")
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("unparsable numeric value %q", val)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("null value")
	default:
		return 0, fmt.Errorf("unexpected type %T", raw)
	}
}

// stringify renders an optional raw value for further parsing
func stringify(raw any) string {
	switch val := raw.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
