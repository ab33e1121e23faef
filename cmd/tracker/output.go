package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"animetracker/internal/models"

	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
	formatYAML  outputFormat = "yaml"
)

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	case "":
		return formatTable, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

type listOutput struct {
	Items      []models.AnimeEntry `json:"items" yaml:"items"`
	Pagination models.Pagination   `json:"pagination" yaml:"pagination"`
}

func writeList(w io.Writer, f outputFormat, items []models.AnimeEntry, p models.Pagination) error {
	switch f {
	case formatJSON:
		return writeJSON(w, listOutput{Items: items, Pagination: p})
	case formatYAML:
		return yaml.NewEncoder(w).Encode(listOutput{Items: items, Pagination: p})
	}

	if len(items) == 0 {
		fmt.Fprintln(w, "No anime found.")
		return nil
	}
	if err := writeTable(w, items); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nPage %d of %d (%d total)\n", p.Page, max(p.TotalPages, 1), p.TotalCount)
	return err
}

func writeEntry(w io.Writer, f outputFormat, e *models.AnimeEntry) error {
	switch f {
	case formatJSON:
		return writeJSON(w, e)
	case formatYAML:
		return yaml.NewEncoder(w).Encode(e)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", e.ID)
	fmt.Fprintf(tw, "Title:\t%s\n", e.Title)
	fmt.Fprintf(tw, "Status:\t%s\n", e.Status)
	fmt.Fprintf(tw, "Rating:\t%s\n", models.FormatRating(e.Rating))
	fmt.Fprintf(tw, "Genres:\t%s\n", strings.Join(e.Genres, ", "))
	if e.Image != "" {
		fmt.Fprintf(tw, "Image:\t%s\n", e.Image)
	}
	if !e.CreatedAt.IsZero() {
		fmt.Fprintf(tw, "Added:\t%s\n", e.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func writeTable(w io.Writer, items []models.AnimeEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tRATING\tGENRES")
	for _, e := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Title, e.Status, models.FormatRating(e.Rating), strings.Join(e.Genres, ", "))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
