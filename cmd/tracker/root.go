package main

import (
	"fmt"

	"animetracker/internal/config"
	"animetracker/internal/container"

	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once the root pre-run has built it.
type app struct {
	apiURL   string
	output   string
	logLevel string

	cfg       *config.Config
	container *container.Container
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Keep a personal anime catalog on a remote tracker service",
		Long: `tracker lists, searches, adds, edits and removes entries in an anime
catalog held by a REST service, and uploads cover images for them.

Configuration is read from the environment and from .env.local / .env files.
Set ANIME_API_URL or pass --api-url to choose the service.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.container != nil {
				a.container.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "Tracker service base URL (overrides ANIME_API_URL)")
	cmd.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	cmd.AddCommand(
		newListCmd(a),
		newGetCmd(a),
		newAddCmd(a),
		newUpdateCmd(a),
		newRemoveCmd(a),
		newUploadCmd(a),
		newServeCmd(a),
	)

	return cmd
}

func (a *app) init() error {
	if _, err := parseFormat(a.output); err != nil {
		return err
	}

	config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.APIURL = a.apiURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	c, err := container.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	a.cfg = cfg
	a.container = c
	return nil
}

func (a *app) format() outputFormat {
	f, _ := parseFormat(a.output)
	return f
}
