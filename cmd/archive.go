package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/archive"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/service"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/store"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <session-id|directory>",
	Short: "Bundle a recorded session into a compressed archive",
	Long: `Bundle the files of a session directory into <directory>.tar.zst with a
manifest of every file and its checksum. The argument is a session id of
the store or a session directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetInt("level")

		var db *store.Store
		if cfg.Output.Store != "" {
			var err error
			if db, err = store.New(cfg.Output.Store); err != nil {
				return fmt.Errorf("failed to open session store: %w", err)
			}
			defer db.Close()
		}

		dir, id := args[0], ""
		if db != nil {
			sess, err := db.GetSession(cmd.Context(), args[0])
			switch {
			case err == nil:
				dir, id = sess.OutputDir, sess.ID
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return fmt.Errorf("no session directory for '%s'", args[0])
		}

		res, err := readResults(dir)
		if err != nil {
			return err
		}

		dst := filepath.Clean(dir) + archive.Extension
		manifest, err := archive.Bundle(dir, dst, res, archive.WithLevel(level))
		if err != nil {
			return err
		}
		if db != nil && id != "" {
			if err := db.SetArchivePath(cmd.Context(), id, dst); err != nil {
				return err
			}
		}
		fmt.Printf("📦 %s (%d files)\n", dst, len(manifest.Files))
		return nil
	},
}

var archiveExtractCmd = &cobra.Command{
	Use:   "extract <archive> <directory>",
	Short: "Unpack an archive and verify its checksums",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifest, err := archive.Extract(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Extracted %d files into %s\n", len(manifest.Files), args[1])
		return nil
	},
}

var archiveManifestCmd = &cobra.Command{
	Use:   "manifest <archive>",
	Short: "Print the manifest of an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifest, err := archive.ReadManifest(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("created: %s\n", manifest.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		var total int64
		for _, f := range manifest.Files {
			fmt.Printf("  %10s  %s  %s\n", service.FormatBytes(f.Size), f.SHA256[:12], f.Path)
			total += f.Size
		}
		fmt.Printf("%d files, %s\n", len(manifest.Files), service.FormatBytes(total))

		if res, err := manifest.Decode(); err == nil && res != nil {
			fmt.Printf("result: %s (%s)\n", res.Identifier(), res.Type())
		}
		return nil
	},
}

// readResults loads the results file of a finished session, if any.
func readResults(dir string) (result.Data, error) {
	raw, err := os.ReadFile(filepath.Join(dir, service.ResultsFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result.Decode(raw)
}

func init() {
	archiveCmd.Flags().Int("level", 3, "zstd compression level (1-22)")

	archiveCmd.AddCommand(archiveExtractCmd)
	archiveCmd.AddCommand(archiveManifestCmd)
}
