package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"animetracker/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
)

const maxImageSize = 5 << 20

// readImage loads path and sniffs its MIME type from the content.
func readImage(path string) (models.ImageFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.ImageFile{}, err
	}
	if info.Size() > maxImageSize {
		return models.ImageFile{}, fmt.Errorf("%s is larger than 5 MB", path)
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return models.ImageFile{}, fmt.Errorf("failed to detect file type: %w", err)
	}
	if !strings.HasPrefix(mime.String(), "image/") {
		return models.ImageFile{}, fmt.Errorf("%s is not an image (%s)", path, mime.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.ImageFile{}, err
	}
	return models.ImageFile{
		Name:     filepath.Base(path),
		MIMEType: mime.String(),
		Data:     data,
	}, nil
}

func newUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload PATH",
		Short: "Upload a cover image and print its reference",
		Long: `Upload a cover image. The printed reference can be passed to
add/update with --image-ref.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readImage(args[0])
			if err != nil {
				return err
			}
			ref, err := a.container.Store.UploadImage(cmd.Context(), file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch a.format() {
			case formatJSON:
				return writeJSON(out, map[string]string{"image": ref, "url": a.container.AnimeService.ImageURL(ref)})
			default:
				fmt.Fprintln(out, ref)
				fmt.Fprintln(out, a.container.AnimeService.ImageURL(ref))
			}
			return nil
		},
	}
}
