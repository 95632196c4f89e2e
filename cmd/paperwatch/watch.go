// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paperwatch/internal/embedding"
	"github.com/pdiddy/paperwatch/internal/library"
	"github.com/pdiddy/paperwatch/internal/metrics"
	"github.com/pdiddy/paperwatch/internal/output"
	"github.com/pdiddy/paperwatch/internal/pipeline"
	"github.com/pdiddy/paperwatch/internal/source"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Fetch, score, and rank new papers against the profile",
	Long: `Watch refreshes the profile, queries every enabled source for papers
published in the last sources.days_back days, merges duplicates across
sources, drops papers already in the library, and ranks the rest by
similarity, recency, citations, venue quality, and whitelist matches.

A failing source is reported and skipped. Nothing is written when the run
fails, so --output never leaves a partial file behind.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	mode, err := modeFromFlags(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("top") {
		cfg.Rank.TopN, _ = cmd.Flags().GetInt("top")
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	format, err := formatFromFlags(cmd)
	if err != nil {
		return err
	}
	outPath, _ := cmd.Flags().GetString("output")

	var buf bytes.Buffer
	sink, err := output.New(format, &buf)
	if err != nil {
		return err
	}

	store, err := library.NewStore(cfg.Library)
	if err != nil {
		return err
	}
	defer store.Close()

	provider, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return err
	}

	sources := source.FromConfig(cfg.Sources)
	if len(sources) == 0 {
		return fmt.Errorf("no sources enabled; enable at least one under sources: in the config")
	}

	m := metrics.NewRun()
	progress := cmd.ErrOrStderr()
	deps := pipeline.Deps{
		Store:    store,
		Provider: provider,
		Sources:  sources,
		Sink:     sink,
		Metrics:  m,
		Log:      logger,
		Out:      progress,
	}
	if e := source.NewEnricher(cfg.Sources, logger); e != nil {
		deps.Enricher = e
	}
	res, runErr := pipeline.Run(cmd.Context(), deps, pipeline.Options{Config: cfg, Mode: mode})

	if cfg.MetricsFile != "" {
		if err := m.WriteFile(cfg.MetricsFile); err != nil {
			logger.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("writing metrics failed")
		}
	}
	if runErr != nil {
		return runErr
	}

	if err := emit(cmd.OutOrStdout(), outPath, buf.Bytes()); err != nil {
		return err
	}
	printRunSummary(progress, res, outPath)
	return nil
}

func formatFromFlags(cmd *cobra.Command) (string, error) {
	asJSON, _ := cmd.Flags().GetBool("json")
	asCSL, _ := cmd.Flags().GetBool("csl")
	switch {
	case asJSON && asCSL:
		return "", fmt.Errorf("--json and --csl are mutually exclusive")
	case asJSON:
		return "json", nil
	case asCSL:
		return "csl", nil
	default:
		return "table", nil
	}
}

func emit(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func printRunSummary(w io.Writer, res pipeline.Result, outPath string) {
	fmt.Fprintf(w, "\nRun %s: %d recommendations", res.RunID, len(res.Items))
	if res.Demoted > 0 {
		fmt.Fprintf(w, ", %d preprints demoted by the ratio cap", res.Demoted)
	}
	if res.VenueLimited > 0 {
		fmt.Fprintf(w, ", %d dropped by the venue quota", res.VenueLimited)
	}
	fmt.Fprintf(w, " in %s\n", res.Duration.Round(time.Millisecond))
	if outPath != "" {
		fmt.Fprintf(w, "Wrote %s\n", outPath)
	}
	for _, se := range res.SourceErrors {
		fmt.Fprintf(w, "  source %s skipped: %v\n", se.Source, se.Err)
	}
}

func init() {
	watchCmd.Flags().Int("top", 20, "number of recommendations (overrides rank.top_n)")
	watchCmd.Flags().Bool("json", false, "output recommendations as JSON")
	watchCmd.Flags().Bool("csl", false, "output recommendations as CSL YAML for reference-manager import")
	watchCmd.Flags().String("output", "", "write recommendations to FILE instead of stdout")
	watchCmd.Flags().Bool("full", false, "re-embed every library item before scoring")

	rootCmd.AddCommand(watchCmd)
}
