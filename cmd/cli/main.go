//go:build !js && !wasm

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/beatok/backend/internal/app"
	"github.com/beatok/backend/internal/config"
	"github.com/beatok/backend/internal/fingerprint"
	"github.com/beatok/backend/pkg/beatok"
	"github.com/beatok/backend/pkg/logger"
)

var (
	configPath string
	dbPath     string

	okMark   = color.New(color.FgGreen, color.Bold).SprintFunc()
	failMark = color.New(color.FgRed, color.Bold).SprintFunc()
	dim      = color.New(color.FgHiBlack).SprintFunc()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config and applies the --db override.
func loadConfig() (*config.Config, error) {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

// newService creates the beatok service. The caller must defer svc.Close().
func newService(ctx context.Context) (beatok.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	svc, err := app.NewService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing service: %w", err)
	}
	return svc, nil
}

// newFingerprinter returns the extractor and comparator for the configured
// scheme without opening the database.
func newFingerprinter() (*fingerprint.Extractor, fingerprint.Comparator, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fingerprint.Comparator{}, err
	}
	scheme, ok := fingerprint.Lookup(cfg.Fingerprint.Scheme)
	if !ok {
		return nil, fingerprint.Comparator{}, fmt.Errorf("unknown fingerprint scheme %q", cfg.Fingerprint.Scheme)
	}
	return fingerprint.NewExtractor(scheme, logger.GetLogger()),
		fingerprint.NewComparator(scheme, cfg.Fingerprint.Threshold), nil
}

var rootCmd = &cobra.Command{
	Use:           "beatok",
	Short:         "Beat catalogue with duplicate audio detection",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath
		}
		if err := config.Init(path, config.Default()); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		fmt.Printf("%s Configuration initialized at %s\n", okMark("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var m config.Manager
		return m.Write(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the TOML config file (default $BEATOK_CONFIG or beatok.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SQLite database (overrides config)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(fingerprintCmd)
	rootCmd.AddCommand(compareCmd)

	addCmd.Flags().String("name", "", "Beat name (required)")
	addCmd.Flags().String("genre", "", "Genre (required)")
	addCmd.Flags().Int("tempo", 0, "Tempo in BPM (required)")
	addCmd.Flags().String("key", "", "Musical key (required)")
	addCmd.Flags().String("owner", "", "Owner username")
	addCmd.Flags().String("owner-id", "", "Owner ID")
	addCmd.Flags().String("mp3", "", "Path to the MP3 rendition")
	addCmd.Flags().String("wav", "", "Path to the WAV master")
	addCmd.MarkFlagRequired("name")
	addCmd.MarkFlagRequired("genre")
	addCmd.MarkFlagRequired("tempo")
	addCmd.MarkFlagRequired("key")
	addCmd.MarkFlagsOneRequired("mp3", "wav")
	addCmd.MarkFlagsOneRequired("owner", "owner-id")
	rootCmd.AddCommand(addCmd)

	listCmd.Flags().String("status", "", "Only beats with this status")
	listCmd.Flags().String("owner-id", "", "Only beats of this owner")
	listCmd.Flags().IntP("limit", "n", 50, "Maximum number of beats to show")
	listCmd.Flags().Int("skip", 0, "Number of beats to skip")
	rootCmd.AddCommand(listCmd)

	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(denyCmd)
	rootCmd.AddCommand(deleteCmd)

	rescanCmd.Flags().IntP("limit", "n", 0, "Maximum number of beats to rescan (0 = all)")
	rootCmd.AddCommand(rescanCmd)
	rootCmd.AddCommand(statsCmd)
}
