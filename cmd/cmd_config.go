// cmd_config.go - Config Command
// Hauptfunktionen: ConfigHandler
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hkarakose/SUPIR/supir"
)

// newConfigCmd - Erstellt den config Command
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and print the resolved model config",
		Args:  cobra.NoArgs,
		RunE:  ConfigHandler,
	}

	configCmd.Flags().String("config", "", "Model config file (default $SUPIR_CONFIG)")
	configCmd.Flags().Bool("write", false, "Write the resolved config back to the config file")

	return configCmd
}

// ConfigHandler - Laedt, validiert und gibt die Konfiguration aus
func ConfigHandler(cmd *cobra.Command, _ []string) error {
	path := configPath(cmd)
	cfg, err := supir.LoadConfig(path)
	if err != nil {
		return err
	}

	if write, _ := cmd.Flags().GetBool("write"); write {
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
