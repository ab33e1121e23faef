package services

import (
	"bytes"
	"encoding/json"
	"mime"
	"sort"
	"strings"

	"animetracker/internal/models"
)

// listMatcher recognizes one historical shape of the list response. It
// returns nil when the body is not in its shape.
type listMatcher struct {
	name  string
	match func(body []byte, filter models.FilterSpec) *models.ListResult
}

// listMatchers are tried in order; the first match wins.
var listMatchers = []listMatcher{
	{name: "paged envelope", match: matchPagedEnvelope},
	{name: "counted envelope", match: matchCountedEnvelope},
	{name: "bare array", match: matchBareArray},
}

func normalizeList(body []byte, filter models.FilterSpec) (*models.ListResult, string, bool) {
	for _, m := range listMatchers {
		if res := m.match(body, filter); res != nil {
			return res, m.name, true
		}
	}
	return nil, "", false
}

// envelope is a JSON object with keys folded to lower case.
type envelope map[string]json.RawMessage

func parseEnvelope(body []byte) (envelope, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, false
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// An exact lower-case key wins over other spellings; among the rest the
	// first in sorted order wins.
	env := make(envelope, len(raw))
	exact := make(map[string]bool, len(raw))
	for _, k := range keys {
		lk := strings.ToLower(k)
		if _, dup := env[lk]; dup && (exact[lk] || k != lk) {
			continue
		}
		env[lk] = raw[k]
		exact[lk] = k == lk
	}
	return env, true
}

func (e envelope) has(key string) bool {
	v, ok := e[strings.ToLower(key)]
	return ok && !isNull(v)
}

func (e envelope) int(key string) (int, bool) {
	v, ok := e[strings.ToLower(key)]
	if !ok || isNull(v) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, false
	}
	return int(f), true
}

func (e envelope) items() ([]models.AnimeEntry, bool) {
	v, ok := e["data"]
	if !ok {
		return nil, false
	}
	return decodeItems(v)
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func decodeItems(raw []byte) ([]models.AnimeEntry, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var items []models.AnimeEntry
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, false
	}
	if items == nil {
		items = []models.AnimeEntry{}
	}
	return items, true
}

func matchPagedEnvelope(body []byte, filter models.FilterSpec) *models.ListResult {
	env, ok := parseEnvelope(body)
	if !ok || !env.has("totalPages") {
		return nil
	}
	items, ok := env.items()
	if !ok {
		return nil
	}
	totalPages, ok := env.int("totalPages")
	if !ok {
		return nil
	}
	p := envelopePagination(env, filter, len(items))
	p.TotalPages = totalPages
	return &models.ListResult{Items: items, Pagination: p}
}

func matchCountedEnvelope(body []byte, filter models.FilterSpec) *models.ListResult {
	env, ok := parseEnvelope(body)
	if !ok {
		return nil
	}
	items, ok := env.items()
	if !ok {
		return nil
	}
	p := envelopePagination(env, filter, len(items))
	p.TotalPages = models.TotalPagesFor(p.TotalCount, p.PageSize)
	return &models.ListResult{Items: items, Pagination: p}
}

func matchBareArray(body []byte, filter models.FilterSpec) *models.ListResult {
	items, ok := decodeItems(body)
	if !ok {
		return nil
	}
	f := filter.Normalized()
	return &models.ListResult{
		Items: items,
		Pagination: models.Pagination{
			Page:       f.Page,
			PageSize:   f.PageSize,
			TotalCount: len(items),
			TotalPages: models.TotalPagesFor(len(items), f.PageSize),
		},
	}
}

// envelopePagination fills the fields the envelope omits from the request.
func envelopePagination(env envelope, filter models.FilterSpec, itemCount int) models.Pagination {
	f := filter.Normalized()
	p := models.Pagination{Page: f.Page, PageSize: f.PageSize, TotalCount: itemCount}
	if v, ok := env.int("page"); ok && v >= 1 {
		p.Page = v
	}
	if v, ok := env.int("pageSize"); ok && v > 0 {
		p.PageSize = v
	}
	if v, ok := env.int("totalCount"); ok && v >= 0 {
		p.TotalCount = v
	}
	return p
}

// imageRefMatcher extracts an image reference from an upload response.
type imageRefMatcher func(body []byte, contentType string) (string, bool)

var imageRefMatchers = []imageRefMatcher{
	matchJSONString,
	envelopeKeyMatcher("imageUrl"),
	envelopeKeyMatcher("image"),
	matchPlainText,
}

func extractImageRef(body []byte, contentType string) (string, bool) {
	for _, m := range imageRefMatchers {
		if ref, ok := m(body, contentType); ok {
			return ref, true
		}
	}
	return "", false
}

func matchJSONString(body []byte, _ string) (string, bool) {
	var s string
	if err := json.Unmarshal(body, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func envelopeKeyMatcher(key string) imageRefMatcher {
	return func(body []byte, _ string) (string, bool) {
		env, ok := parseEnvelope(body)
		if !ok {
			return "", false
		}
		v, ok := env[strings.ToLower(key)]
		if !ok {
			return "", false
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	}
}

func matchPlainText(body []byte, contentType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "text/plain" {
		return "", false
	}
	s := strings.TrimSpace(string(body))
	if s == "" || strings.ContainsAny(s, "\r\n") {
		return "", false
	}
	return s, true
}
