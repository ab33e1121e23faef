package main

import (
	"animetracker/internal/models"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var (
		search   string
		sortBy   string
		desc     bool
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List catalog entries",
		Example: `  tracker list
  tracker list --search bebop --sort rating --desc
  tracker list --page 2 --page-size 20 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			by, err := models.ParseSortField(sortBy)
			if err != nil {
				return err
			}

			s := a.container.Store
			filter := models.FilterSpec{
				Search:         search,
				SortBy:         by,
				SortDescending: desc,
				Page:           page,
				PageSize:       pageSize,
			}
			if err := s.Refresh(cmd.Context(), filter); err != nil {
				return err
			}

			st := s.Snapshot()
			return writeList(cmd.OutOrStdout(), a.format(), st.Items, st.Pagination)
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "Only titles containing this text")
	cmd.Flags().StringVar(&sortBy, "sort", string(models.SortByTitle), "Sort by title, genre, status or rating")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort descending")
	cmd.Flags().IntVarP(&page, "page", "p", models.DefaultPage, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", models.DefaultPageSize, "Entries per page")

	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := a.container.AnimeService.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeEntry(cmd.OutOrStdout(), a.format(), entry)
		},
	}
}
