package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusPlanned   Status = "Planned"
	StatusWatching  Status = "Watching"
	StatusCompleted Status = "Completed"
	StatusDropped   Status = "Dropped"
)

var Statuses = []Status{StatusPlanned, StatusWatching, StatusCompleted, StatusDropped}

// ParseStatus matches s against the known statuses ignoring case.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

const (
	MinRating = 0.0
	MaxRating = 10.0
)

type AnimeEntry struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Status    Status    `json:"status" yaml:"status"`
	Rating    float64   `json:"rating" yaml:"rating"`
	Genres    []string  `json:"genres" yaml:"genres"`
	Image     string    `json:"image,omitempty" yaml:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// wireEntry mirrors the shapes servers have sent for an entry. Field matching
// in encoding/json is case-insensitive, so Title and title both land here.
type wireEntry struct {
	ID        json.RawMessage `json:"id"`
	Title     string          `json:"title"`
	Status    string          `json:"status"`
	Rating    float64         `json:"rating"`
	Genres    []string        `json:"genres"`
	Image     *string         `json:"image"`
	ImageURL  *string         `json:"imageUrl"`
	CreatedAt string          `json:"createdAt"`
}

func (e *AnimeEntry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	id, err := decodeID(w.ID)
	if err != nil {
		return err
	}

	createdAt, err := ParseTimestamp(w.CreatedAt)
	if err != nil {
		return err
	}

	image := ""
	switch {
	case w.Image != nil && *w.Image != "":
		image = *w.Image
	case w.ImageURL != nil:
		image = *w.ImageURL
	}

	*e = AnimeEntry{
		ID:        id,
		Title:     w.Title,
		Status:    normalizeStatus(w.Status),
		Rating:    w.Rating,
		Genres:    w.Genres,
		Image:     image,
		CreatedAt: createdAt,
	}
	if e.Genres == nil {
		e.Genres = []string{}
	}
	return nil
}

func normalizeStatus(s string) Status {
	if st, err := ParseStatus(s); err == nil {
		return st
	}
	return Status(s)
}

// decodeID accepts identifiers sent as JSON strings or numbers.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid id %s: %w", raw, err)
	}
	return n.String(), nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp reads RFC 3339 timestamps, with or without a zone offset.
// Zone-less values are taken as UTC. An empty string is the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// Draft is the client-editable part of an entry.
type Draft struct {
	Title  string   `json:"title" yaml:"title"`
	Status Status   `json:"status" yaml:"status"`
	Rating float64  `json:"rating" yaml:"rating"`
	Genres []string `json:"genres" yaml:"genres"`
	Image  string   `json:"image,omitempty" yaml:"image,omitempty"`
}

// DraftOf returns the editable fields of e.
func DraftOf(e AnimeEntry) Draft {
	genres := make([]string, len(e.Genres))
	copy(genres, e.Genres)
	return Draft{
		Title:  e.Title,
		Status: e.Status,
		Rating: e.Rating,
		Genres: genres,
		Image:  e.Image,
	}
}

// Validate reports the first problem a form would flag for d.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if !d.Status.Valid() {
		return fmt.Errorf("status must be one of %s", joinStatuses())
	}
	if d.Rating < MinRating || d.Rating > MaxRating || math.IsNaN(d.Rating) {
		return fmt.Errorf("rating must be between %.0f and %.0f", MinRating, MaxRating)
	}
	// 0.1 granularity
	if scaled := d.Rating * 10; math.Abs(scaled-math.Round(scaled)) > 1e-9 {
		return fmt.Errorf("rating must have at most one decimal place")
	}
	for _, g := range d.Genres {
		if strings.TrimSpace(g) == "" {
			return fmt.Errorf("genres must not be blank")
		}
	}
	return nil
}

func joinStatuses() string {
	names := make([]string, len(Statuses))
	for i, s := range Statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// FormatRating renders a rating with one decimal place.
func FormatRating(r float64) string {
	return strconv.FormatFloat(r, 'f', 1, 64)
}
