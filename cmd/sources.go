package cmd

import (
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/audio"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long:  `List the capture sources the microphone level recorder can meter, using the PipeWire backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend := "pipewire"
		if cfg != nil && cfg.Sources.Audio.Backend != "" {
			backend = cfg.Sources.Audio.Backend
		}

		sources, err := audio.ListSources(backend)
		if err != nil {
			return fmt.Errorf("failed to get %s sources: %w", backend, err)
		}

		fmt.Printf("🎵 Audio Sources (%s, %s)\n", backend, goruntime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")
		fmt.Printf("📋 SOURCES (%d found):\n", len(sources))
		for i, source := range sources {
			marker := ""
			if cfg != nil && source == cfg.Sources.Audio.Source {
				marker = "  ← configured"
			}
			fmt.Printf("  %d. %s%s\n", i+1, source, marker)
		}

		fmt.Printf("\n🔌 BACKENDS:")
		for _, b := range audio.GetAvailableBackends() {
			fmt.Printf(" %s", b)
		}
		fmt.Println()

		fmt.Printf("\n💡 Usage:\n")
		fmt.Printf("  • Configure in sources.audio.source, e.g. \"alsa_input.usb-Mic:capture_FL\"\n")
		fmt.Printf("  • Leave it empty to meter the default input\n\n")
		return nil
	},
}
