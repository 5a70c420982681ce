package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/service"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Run a recording session for the active profile",
	Long: `Start the recorders of the active profile and walk through its steps.

Recorders without a start step run for the whole session; the others
start and stop at the steps named in the profile. With --step-duration
the session advances to the next step on a timer and stops after the
last step. Press Ctrl+C to stop early.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stepDuration, _ := cmd.Flags().GetDuration("step-duration")
		if output, _ := cmd.Flags().GetString("output"); output != "" {
			cfg.Output.Directory = output
		}
		if replay, _ := cmd.Flags().GetString("replay"); replay != "" {
			cfg.Sources.Motion.Replay = replay
		}
		if cmd.Flags().Changed("archive") {
			cfg.Output.Archive, _ = cmd.Flags().GetBool("archive")
		}

		rt, err := newRuntime(cfg, cfgFile)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		info, err := rt.service.StartSession(ctx)
		if info == nil || info.State == service.SessionFailed {
			return fmt.Errorf("failed to start session: %w", err)
		}
		if err != nil {
			slog.Warn("Some recorders did not start", "error", err)
		}
		slog.Info("Session started - Press Ctrl+C to stop",
			"session", info.ID, "profile", info.Profile, "directory", info.OutputDirectory, "step", info.Step)

		waitForSteps(ctx, rt.service, stepDuration)

		slog.Info("Stopping session...")
		results, err := rt.service.StopSession(context.Background())
		if results == nil {
			return fmt.Errorf("failed to stop session: %w", err)
		}
		if err != nil {
			slog.Warn("Session stopped with errors", "error", err)
		}

		_, info = rt.service.GetSessionStatus()
		out, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

// waitForSteps advances one step per tick until the steps run out or ctx
// is cancelled. Without a duration it only waits for ctx.
func waitForSteps(ctx context.Context, svc service.Service, every time.Duration) {
	if every <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			step, err := svc.Next(ctx)
			if errors.Is(err, service.ErrNoMoreSteps) {
				return
			}
			if err != nil {
				slog.Error("Failed to advance step", "error", err)
				continue
			}
			slog.Info("Moved to step", "step", step)
		}
	}
}

func init() {
	recordCmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
	recordCmd.Flags().String("replay", "", "motion replay file (overrides config)")
	recordCmd.Flags().Bool("archive", false, "bundle the session into a .tar.zst archive")
	recordCmd.Flags().Duration("step-duration", 0, "advance to the next step at this interval")
}
