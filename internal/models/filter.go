package models

import (
	"fmt"
	"strings"
)

type SortField string

const (
	SortByTitle  SortField = "title"
	SortByGenre  SortField = "genre"
	SortByStatus SortField = "status"
	SortByRating SortField = "rating"
)

var SortFields = []SortField{SortByTitle, SortByGenre, SortByStatus, SortByRating}

func ParseSortField(s string) (SortField, error) {
	for _, f := range SortFields {
		if strings.EqualFold(strings.TrimSpace(s), string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown sort field %q", s)
}

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// FilterSpec is the list query a caller holds between refreshes.
type FilterSpec struct {
	Search         string    `json:"search" yaml:"search"`
	SortBy         SortField `json:"sortBy" yaml:"sortBy"`
	SortDescending bool      `json:"sortDescending" yaml:"sortDescending"`
	Page           int       `json:"page" yaml:"page"`
	PageSize       int       `json:"pageSize" yaml:"pageSize"`
}

func DefaultFilter() FilterSpec {
	return FilterSpec{
		SortBy:   SortByTitle,
		Page:     DefaultPage,
		PageSize: DefaultPageSize,
	}
}

// Normalized fills in defaults for out-of-range fields.
func (f FilterSpec) Normalized() FilterSpec {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.SortBy == "" {
		f.SortBy = SortByTitle
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

type Pagination struct {
	Page       int `json:"page" yaml:"page"`
	PageSize   int `json:"pageSize" yaml:"pageSize"`
	TotalCount int `json:"totalCount" yaml:"totalCount"`
	TotalPages int `json:"totalPages" yaml:"totalPages"`
}

// TotalPagesFor is ceil(totalCount / pageSize), or 0 for an empty collection.
func TotalPagesFor(totalCount, pageSize int) int {
	if totalCount <= 0 || pageSize <= 0 {
		return 0
	}
	return (totalCount + pageSize - 1) / pageSize
}

func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages
}

func (p Pagination) HasPrev() bool {
	return p.Page > 1
}

type ListResult struct {
	Items      []AnimeEntry `json:"items" yaml:"items"`
	Pagination Pagination   `json:"pagination" yaml:"pagination"`
}

// ImageFile is a cover image picked for upload.
type ImageFile struct {
	Name     string
	MIMEType string
	Data     []byte
}
