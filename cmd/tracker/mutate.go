package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"animetracker/internal/models"

	"github.com/spf13/cobra"
)

type draftFlags struct {
	title      string
	status     string
	rating     float64
	genres     []string
	imagePath  string
	imageRef   string
	clearImage bool
}

func (f *draftFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "Title")
	cmd.Flags().StringVar(&f.status, "status", string(models.StatusPlanned), "Planned, Watching, Completed or Dropped")
	cmd.Flags().Float64VarP(&f.rating, "rating", "r", 0, "Rating from 0 to 10 in steps of 0.1")
	cmd.Flags().StringSliceVarP(&f.genres, "genre", "g", nil, "Genre (repeat or comma-separate)")
	cmd.Flags().StringVar(&f.imagePath, "image", "", "Upload this image file and use it as the cover")
	cmd.Flags().StringVar(&f.imageRef, "image-ref", "", "Use an already uploaded image reference as the cover")
}

// apply copies the flags the user set onto d.
func (f *draftFlags) apply(cmd *cobra.Command, d *models.Draft) error {
	flags := cmd.Flags()
	if flags.Changed("title") {
		d.Title = strings.TrimSpace(f.title)
	}
	if flags.Changed("status") {
		st, err := models.ParseStatus(f.status)
		if err != nil {
			return err
		}
		d.Status = st
	}
	if flags.Changed("rating") {
		d.Rating = f.rating
	}
	if flags.Changed("genre") {
		d.Genres = cleanGenres(f.genres)
	}
	if flags.Changed("image-ref") {
		d.Image = strings.TrimSpace(f.imageRef)
	}
	if f.clearImage {
		d.Image = ""
	}
	return nil
}

// attachImage uploads --image, if given, and composes the returned
// reference into d.
func (a *app) attachImage(ctx context.Context, cmd *cobra.Command, path string, d *models.Draft) error {
	if path == "" {
		return nil
	}
	file, err := readImage(path)
	if err != nil {
		return err
	}
	ref, err := a.container.Store.UploadImage(ctx, file)
	if err != nil {
		return fmt.Errorf("image upload failed: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Uploaded %s as %s\n", file.Name, ref)
	d.Image = ref
	return nil
}

func cleanGenres(in []string) []string {
	out := make([]string, 0, len(in))
	for _, g := range in {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

func newAddCmd(a *app) *cobra.Command {
	f := &draftFlags{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an entry to the catalog",
		Example: `  tracker add --title "Cowboy Bebop" --status Completed --rating 9.5 -g Action -g Sci-Fi
  tracker add --title Akira --image ./akira.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			draft := models.Draft{Status: models.StatusPlanned, Genres: []string{}}
			if err := f.apply(cmd, &draft); err != nil {
				return err
			}
			if err := draft.Validate(); err != nil {
				return err
			}
			if err := a.attachImage(cmd.Context(), cmd, f.imagePath, &draft); err != nil {
				return err
			}

			entry, err := a.container.Store.Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			return writeEntry(cmd.OutOrStdout(), a.format(), entry)
		},
	}

	f.register(cmd)
	cmd.MarkFlagRequired("title")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	f := &draftFlags{}

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Edit an entry",
		Long: `Edit an entry. The current entry is fetched, the given flags are applied
to it and the result replaces the entry on the server.`,
		Example: `  tracker update 3 --status Completed --rating 8
  tracker update 3 --genre Drama --clear-image`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			current, err := a.container.AnimeService.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}

			draft := models.DraftOf(*current)
			if err := f.apply(cmd, &draft); err != nil {
				return err
			}
			if err := draft.Validate(); err != nil {
				return err
			}
			if err := a.attachImage(cmd.Context(), cmd, f.imagePath, &draft); err != nil {
				return err
			}

			entry, err := a.container.Store.Update(cmd.Context(), id, draft)
			if err != nil {
				return err
			}
			return writeEntry(cmd.OutOrStdout(), a.format(), entry)
		},
	}

	f.register(cmd)
	cmd.Flags().BoolVar(&f.clearImage, "clear-image", false, "Remove the cover image")
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "remove ID",
		Aliases: []string{"rm"},
		Short:   "Delete an entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			if !yes {
				entry, err := a.container.AnimeService.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !confirm(cmd, fmt.Sprintf("Are you sure you want to delete %q?", entry.Title)) {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			if err := a.container.Store.Remove(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
