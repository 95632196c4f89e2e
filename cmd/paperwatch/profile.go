// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paperwatch/internal/embedding"
	"github.com/pdiddy/paperwatch/internal/library"
	"github.com/pdiddy/paperwatch/internal/pipeline"
	"github.com/pdiddy/paperwatch/pkg/types"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Embed the library and rebuild the interest profile",
	Long: `Profile embeds library items whose content changed since their last
embedding and aggregates all current embeddings into the profile vector.
Unchanged items are never re-embedded, so a second run makes no provider
calls. Use --full to re-embed every item.`,
	RunE: runProfile,
}

func runProfile(cmd *cobra.Command, args []string) error {
	mode, err := modeFromFlags(cmd)
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

	out := cmd.OutOrStdout()
	pr, err := pipeline.BuildProfile(cmd.Context(), pipeline.Deps{
		Store:    store,
		Provider: provider,
		Log:      logger,
		Out:      out,
	}, pipeline.Options{Config: cfg, Mode: mode})
	if err != nil {
		return err
	}

	printProfile(out, pr)
	return nil
}

func printProfile(w io.Writer, pr pipeline.ProfileResult) {
	p, s := pr.Profile, pr.Summary
	fmt.Fprintf(w, "\nProfile built (%s): %d of %d items aggregated, %d embedded, %d failed in %s\n",
		pr.Mode, p.ItemCount, s.Items, s.Embedded, s.Failed, s.Duration.Round(time.Millisecond))
	if s.Skipped > 0 {
		fmt.Fprintf(w, "  %d embeddings skipped for a dimension mismatch; run with --full\n", s.Skipped)
	}
	printCounts(w, "Top authors", p.TopAuthors)
	printCounts(w, "Top venues", p.TopVenues)
}

func printCounts(w io.Writer, title string, entries []types.CountEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, e := range entries {
		fmt.Fprintf(w, "  %4d  %s\n", e.Count, e.Name)
	}
}

// modeFromFlags resolves --full against the configured profile mode.
func modeFromFlags(cmd *cobra.Command) (types.ProfileMode, error) {
	if full, _ := cmd.Flags().GetBool("full"); full {
		return types.ModeFull, nil
	}
	return types.ParseProfileMode(string(cfg.Profile.Mode))
}

func init() {
	profileCmd.Flags().Bool("full", false, "re-embed every library item")

	rootCmd.AddCommand(profileCmd)
}
