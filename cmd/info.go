package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/config"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/store"
)

var infoCmd = &cobra.Command{
	Use:   "info [session-id]",
	Short: "Show the resolved profile and recorded sessions",
	Long: `Without arguments, display the resolved profile with inheritance
indicators and the most recent sessions of the store. With a session id,
display that session with its results and events.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		if len(args) == 0 {
			printResolvedConfig()
		}
		if cfg.Output.Store == "" {
			fmt.Printf("\n(session store disabled)\n")
			return nil
		}

		db, err := store.New(cfg.Output.Store)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		defer db.Close()

		if len(args) == 1 {
			return printSession(cmd.Context(), db, args[0], limit)
		}
		return printSessions(cmd.Context(), db, limit)
	},
}

func printResolvedConfig() {
	inh := cfg.Inheritance
	if inh == nil {
		inh = &config.InheritanceInfo{}
	}

	fmt.Printf("=== RESOLVED CONFIGURATION (%s) ===\n", cfg.Name)
	fmt.Printf("section: %s %s\n", cfg.Section, getInheritanceIndicator(inh.Section))
	fmt.Printf("steps: %s %s\n", strings.Join(cfg.Steps, ", "), getInheritanceIndicator(inh.Steps))

	fmt.Printf("\n[Recorders]\n")
	for i, rec := range cfg.Recorders {
		fmt.Printf("%d. id: %s\n", i, rec.ID)
		fmt.Printf("   type: %s\n", rec.Type)
		if rec.StartStepIdentifier != "" {
			fmt.Printf("   start: %s\n", rec.StartStepIdentifier)
		}
		if rec.StopStepIdentifier != "" {
			fmt.Printf("   stop: %s\n", rec.StopStepIdentifier)
		}
	}

	fmt.Printf("\n[Output]\n")
	fmt.Printf("directory: %s %s\n", cfg.Output.Directory, getInheritanceIndicator(inh.Output.Directory))
	fmt.Printf("store: %s %s\n", cfg.Output.Store, getInheritanceIndicator(inh.Output.Store))
	fmt.Printf("archive: %t\n", cfg.Output.Archive)

	fmt.Printf("\n[Sources]\n")
	fmt.Printf("audio: %s %s %s\n", cfg.Sources.Audio.Backend, cfg.Sources.Audio.Source, getInheritanceIndicator(inh.Sources.Audio))
	fmt.Printf("motion replay: %s %s\n", cfg.Sources.Motion.Replay, getInheritanceIndicator(inh.Sources.Motion))
	fmt.Printf("gpsd: %s %s\n", cfg.Sources.Location.GPSD, getInheritanceIndicator(inh.Sources.Location))
}

func printSessions(ctx context.Context, db *store.Store, limit int) error {
	sessions, err := db.ListSessions(ctx, store.ListQuery{Limit: limit})
	if err != nil {
		return err
	}
	fmt.Printf("\n=== SESSIONS (%d) ===\n", len(sessions))
	for _, s := range sessions {
		fmt.Printf("%s  %-10s %-10s %s %s\n", s.ID, s.Status, s.Section, s.StartedAt.Local().Format("2006-01-02 15:04:05"), duration(s))
	}
	return nil
}

func printSession(ctx context.Context, db *store.Store, id string, limit int) error {
	s, err := db.GetSession(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("=== SESSION %s ===\n", s.ID)
	fmt.Printf("profile: %s\nsection: %s\nstatus: %s\n", s.Profile, s.Section, s.Status)
	fmt.Printf("directory: %s\n", s.OutputDir)
	fmt.Printf("started: %s %s\n", s.StartedAt.Local().Format(time.RFC3339), duration(s))
	if s.ArchivePath != "" {
		fmt.Printf("archive: %s\n", s.ArchivePath)
	}
	if s.Error != "" {
		fmt.Printf("error: %s\n", s.Error)
	}

	results, err := db.ListResults(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("\n[Results]\n")
	for _, r := range results {
		fmt.Printf("%s/%s (%s)", r.Recorder, r.Identifier, r.Type)
		if r.Path != "" {
			fmt.Printf(" %s, %d samples", r.Path, r.SampleCount)
		}
		fmt.Println()
	}

	events, err := db.ListEvents(ctx, id, store.ListQuery{Limit: limit})
	if err != nil {
		return err
	}
	fmt.Printf("\n[Events]\n")
	for _, e := range events {
		detail := e.Message
		switch {
		case e.To != "":
			detail = e.From + " → " + e.To
		case e.StepPath != "":
			detail = e.StepPath
		}
		if e.Error != "" {
			detail += " (" + e.Error + ")"
		}
		fmt.Printf("%s %-8s %-12s %s\n", e.Timestamp.Local().Format("15:04:05.000"), e.Kind, e.Recorder, detail)
	}
	return nil
}

func duration(s store.Session) string {
	if s.FinishedAt == nil {
		return ""
	}
	return "(" + s.FinishedAt.Sub(s.StartedAt).Round(time.Second).String() + ")"
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return ""
	}
}

func init() {
	infoCmd.Flags().Int("limit", 20, "maximum sessions or events to list")
}
