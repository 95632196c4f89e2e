// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paperwatch/internal/library"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage the local copy of the reference library",
	Long: `Library keeps a SQLite copy of your reference-manager library together
with the embedding of every item. Export the library from Zotero (or any
CSL-capable manager) as CSL JSON or CSL YAML and import it here.`,
}

// --- import subcommand ---

var libraryImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a CSL JSON or CSL YAML export",
	Long: `Import reads a CSL JSON or CSL YAML export and syncs it into the store.
New items are added, items whose content changed are updated and marked for
re-embedding, and unchanged items are left alone.

With --prune, items missing from the export are removed; use it only with a
full library export.`,
	Args: cobra.ExactArgs(1),
	RunE: runLibraryImport,
}

func runLibraryImport(cmd *cobra.Command, args []string) error {
	prune, _ := cmd.Flags().GetBool("prune")

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	items, err := library.ParseCSL(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}

	store, err := library.NewStore(cfg.Library)
	if err != nil {
		return err
	}
	defer store.Close()

	sum, err := store.Sync(cmd.Context(), items, prune)
	if err != nil {
		return err
	}
	logger.Info().Str("file", args[0]).Int("items", len(items)).Bool("prune", prune).Msg("library imported")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Imported %d items: %d added, %d updated, %d unchanged", len(items), sum.Added, sum.Updated, sum.Unchanged)
	if prune {
		fmt.Fprintf(out, ", %d removed", sum.Removed)
	}
	fmt.Fprintln(out)
	return nil
}

// --- status subcommand ---

var libraryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show item counts, stale embeddings, and the last profile",
	RunE:  runLibraryStatus,
}

func runLibraryStatus(cmd *cobra.Command, args []string) error {
	store, err := library.NewStore(cfg.Library)
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.Status(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Library:   %s\n", cfg.Library.DBPath)
	fmt.Fprintf(out, "Items:     %d\n", st.Items)
	fmt.Fprintf(out, "Embedded:  %d\n", st.Embedded)
	fmt.Fprintf(out, "Stale:     %d\n", st.Stale)

	p, err := store.LoadProfile(cmd.Context())
	switch {
	case errors.Is(err, library.ErrNoProfile):
		fmt.Fprintln(out, "Profile:   not built (run \"paperwatch profile\")")
	case err != nil:
		return err
	default:
		fmt.Fprintf(out, "Profile:   %d items, model %s, built %s\n",
			p.ItemCount, p.Model, p.GeneratedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// --- remove subcommand ---

var libraryRemoveCmd = &cobra.Command{
	Use:   "remove KEY...",
	Short: "Remove items from the local library by citation key",
	Long: `Remove deletes the named items and their embeddings from the store.
Keys that are not in the library are ignored. Run "paperwatch profile"
afterwards to drop them from the profile.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLibraryRemove,
}

func runLibraryRemove(cmd *cobra.Command, args []string) error {
	store, err := library.NewStore(cfg.Library)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Remove(cmd.Context(), args)
	if err != nil {
		return err
	}
	logger.Info().Strs("keys", args).Int("removed", n).Msg("library items removed")
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d of %d items\n", n, len(args))
	return nil
}

func init() {
	libraryImportCmd.Flags().Bool("prune", false, "remove stored items that are missing from FILE")

	libraryCmd.AddCommand(libraryImportCmd)
	libraryCmd.AddCommand(libraryStatusCmd)
	libraryCmd.AddCommand(libraryRemoveCmd)
	rootCmd.AddCommand(libraryCmd)
}
