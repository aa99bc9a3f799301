package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/danhigham/vkplay/internal/domain"
	"github.com/danhigham/vkplay/internal/library"
)

var (
	listJSON  bool
	addTitle  string
	addArtist string
	addAlbum  string
	addCover  string
	addLength time.Duration
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage saved tracks",
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved tracks in play order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		items, err := lib.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if listJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tKEY\tARTIST\tTITLE\tLENGTH\tCACHED")
		for i, it := range items {
			cached := ""
			if it.CachedPath != "" {
				cached = "yes"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i, it.Key(), it.Artist, it.Title, it.Duration, cached)
		}
		return tw.Flush()
	},
}

var libraryAddCmd = &cobra.Command{
	Use:   "add <owner_id> <audio_id> <url>",
	Short: "Save a track at the end of the library",
	Long:  "Save a track at the end of the library. Put -- before a negative (group) owner_id.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, id, err := parseKey(args[0], args[1])
		if err != nil {
			return err
		}
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		item := domain.AudioItem{
			OwnerID:    owner,
			AudioID:    id,
			URL:        args[2],
			Title:      addTitle,
			Artist:     addArtist,
			Album:      addAlbum,
			ArtworkURL: addCover,
			Duration:   addLength,
		}
		if err := lib.Save(cmd.Context(), item); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", item.Key())
		return nil
	},
}

var libraryRemoveCmd = &cobra.Command{
	Use:   "remove <owner_id> <audio_id>",
	Short: "Remove a saved track",
	Long:  "Remove a saved track. Put -- before a negative (group) owner_id.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, id, err := parseKey(args[0], args[1])
		if err != nil {
			return err
		}
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		if err := lib.Remove(cmd.Context(), owner, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d_%d\n", owner, id)
		return nil
	},
}

func init() {
	libraryListCmd.Flags().BoolVar(&listJSON, "json", false, "print tracks as JSON")

	libraryAddCmd.Flags().StringVar(&addTitle, "title", "", "track title")
	libraryAddCmd.Flags().StringVar(&addArtist, "artist", "", "track artist")
	libraryAddCmd.Flags().StringVar(&addAlbum, "album", "", "album title")
	libraryAddCmd.Flags().StringVar(&addCover, "cover", "", "artwork URL")
	libraryAddCmd.Flags().DurationVar(&addLength, "length", 0, "track length, e.g. 3m25s")

	libraryCmd.AddCommand(libraryListCmd, libraryAddCmd, libraryRemoveCmd)
	rootCmd.AddCommand(libraryCmd)
}

func openLibrary() (*library.Store, error) {
	cfg, dir, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return library.Open(dir, cfg.Library.CacheDir, nil)
}

func parseKey(ownerArg, idArg string) (int64, int64, error) {
	owner, err := strconv.ParseInt(ownerArg, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("owner_id: %w", err)
	}
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("audio_id: %w", err)
	}
	return owner, id, nil
}
