package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View, validate and select configuration profiles.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := cfg.YAML()
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every profile of the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := config.ValidateConfigurationFormat(cfgFile)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(root.Configs))
		for name := range root.Configs {
			names = append(names, name)
		}
		sort.Strings(names)

		failed := 0
		for _, name := range names {
			resolved, err := root.Resolve(name)
			if err != nil {
				fmt.Printf("✗ %s: %v\n", name, err)
				failed++
				continue
			}
			fmt.Printf("✓ %s (%d recorders, %d steps)\n", name, len(resolved.Configurations), len(resolved.Steps))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d profiles are invalid", failed, len(names))
		}
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use <profile>",
	Short: "Set the active profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.LoadWithProfile(cfgFile, args[0]); err != nil {
			return err
		}
		if err := config.UpdateActiveConfig(cfgFile, args[0]); err != nil {
			return err
		}
		fmt.Printf("Active profile: %s\n", args[0])
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if err := config.SaveRoot(cfgFile, config.DefaultRootConfig(), force); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", cfgFile)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configUseCmd)
	configCmd.AddCommand(configInitCmd)
}
