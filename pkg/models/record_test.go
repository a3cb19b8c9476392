package models

import (
	"encoding/json"
	"testing"
)

func TestSourceKindValid(t *testing.T) {
	tests := []struct {
		kind SourceKind
		want bool
	}{
		{SourceAPI, true},
		{SourceHTML, true},
		{SourceKind(""), false},
		{SourceKind("ftp"), false},
	}

	for _, tt := range tests {
		if got := tt.kind.Valid(); got != tt.want {
			t.Errorf("SourceKind(%q).Valid() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestGenderValid(t *testing.T) {
	tests := []struct {
		gender Gender
		want   bool
	}{
		{GenderMale, true},
		{GenderFemale, true},
		{Gender(""), false},
		{Gender("junior"), false},
	}

	for _, tt := range tests {
		if got := tt.gender.Valid(); got != tt.want {
			t.Errorf("Gender(%q).Valid() = %v, want %v", tt.gender, got, tt.want)
		}
	}
}

func TestResultSetLen(t *testing.T) {
	var nilSet *ResultSet
	if got := nilSet.Len(); got != 0 {
		t.Errorf("Expected nil set length 0, got %d", got)
	}

	api := NewResultSet(SourceAPI)
	api.API = []APIPlayer{
		{PlayerBase: PlayerBase{Rank: 1, Name: "Ali Farag"}, ID: 101},
		{PlayerBase: PlayerBase{Rank: 2, Name: "Diego Elias"}, ID: 102},
	}
	if got := api.Len(); got != 2 {
		t.Errorf("Expected API set length 2, got %d", got)
	}

	html := NewResultSet(SourceHTML)
	html.HTML = []HTMLPlayer{
		{PlayerBase: PlayerBase{Rank: 1, Name: "Nour El Sherbini"}},
	}
	if got := html.Len(); got != 1 {
		t.Errorf("Expected HTML set length 1, got %d", got)
	}
}

func TestResultSetSourcePredicates(t *testing.T) {
	api := NewResultSet(SourceAPI)
	if !api.Complete() || api.Degraded() {
		t.Error("Expected API set to be complete and not degraded")
	}

	html := NewResultSet(SourceHTML)
	if html.Complete() || !html.Degraded() {
		t.Error("Expected HTML set to be degraded and not complete")
	}
}

func TestResultSetAppend(t *testing.T) {
	set := NewResultSet(SourceAPI)
	page := NewResultSet(SourceAPI)
	page.API = []APIPlayer{
		{PlayerBase: PlayerBase{Rank: 1, Name: "Ali Farag"}, ID: 101},
	}

	if err := set.Append(page); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if set.Len() != 1 {
		t.Errorf("Expected 1 record after append, got %d", set.Len())
	}

	second := NewResultSet(SourceAPI)
	second.API = []APIPlayer{
		{PlayerBase: PlayerBase{Rank: 2, Name: "Diego Elias"}, ID: 102},
	}
	if err := set.Append(second); err != nil {
		t.Fatalf("Second append failed: %v", err)
	}
	if set.Len() != 2 {
		t.Errorf("Expected 2 records after second append, got %d", set.Len())
	}
	if set.API[1].Name != "Diego Elias" {
		t.Errorf("Expected appended records to keep order, got %q at index 1", set.API[1].Name)
	}
}

func TestResultSetAppendRejectsOtherSource(t *testing.T) {
	set := NewResultSet(SourceAPI)
	set.API = []APIPlayer{
		{PlayerBase: PlayerBase{Rank: 1, Name: "Ali Farag"}, ID: 101},
	}

	page := NewResultSet(SourceHTML)
	page.HTML = []HTMLPlayer{
		{PlayerBase: PlayerBase{Rank: 2, Name: "Mostafa Asal"}},
	}

	if err := set.Append(page); err == nil {
		t.Fatal("Expected error appending html records to an api set, got nil")
	}
	if set.Len() != 1 {
		t.Errorf("Expected rejected append to leave the set unchanged, got %d records", set.Len())
	}
	if len(set.HTML) != 0 {
		t.Errorf("Expected no html records in an api set, got %d", len(set.HTML))
	}
}

func TestAPIPlayerJSONCarriesSourceTag(t *testing.T) {
	height := 185
	player := APIPlayer{
		PlayerBase: PlayerBase{Rank: 1, Name: "Ali Farag", Tournaments: 12, Points: 20050},
		ID:         101,
		HeightCM:   &height,
	}

	data, err := json.Marshal(player)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if raw["source"] != "api" {
		t.Errorf("Expected source tag %q, got %v", "api", raw["source"])
	}
	if raw["id"] != float64(101) {
		t.Errorf("Expected id 101, got %v", raw["id"])
	}
	if raw["height_cm"] != float64(185) {
		t.Errorf("Expected height_cm 185, got %v", raw["height_cm"])
	}
	if _, ok := raw["weight_kg"]; ok {
		t.Error("Expected absent weight_kg to be omitted, but key is present")
	}
}

func TestHTMLPlayerJSONCarriesSourceTag(t *testing.T) {
	player := HTMLPlayer{
		PlayerBase: PlayerBase{Rank: 1, Name: "Nour El Sherbini", Tournaments: 11, Points: 19120},
	}

	data, err := json.Marshal(player)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if raw["source"] != "html" {
		t.Errorf("Expected source tag %q, got %v", "html", raw["source"])
	}
	if _, ok := raw["id"]; ok {
		t.Error("Expected html record to carry no id, but key is present")
	}
	if raw["rank"] != float64(1) {
		t.Errorf("Expected rank 1, got %v", raw["rank"])
	}
}
