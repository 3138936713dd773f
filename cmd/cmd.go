// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hkarakose/SUPIR/envconfig"
	"github.com/hkarakose/SUPIR/logutil"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "supir",
		Short:         "Diffusion-based image restoration tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	// Commands erstellen
	scheduleCmd := newScheduleCmd()
	configCmd := newConfigCmd()
	colorfixCmd := newColorFixCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{scheduleCmd, configCmd, colorfixCmd} {
		switch cmd {
		case colorfixCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["SUPIR_DEBUG"],
				envVars["SUPIR_COLOR_FIX"],
				envVars["SUPIR_COLORFIX_WORKERS"],
			})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["SUPIR_DEBUG"],
				envVars["SUPIR_CONFIG"],
				envVars["SUPIR_AE_DTYPE"],
				envVars["SUPIR_DIFFUSION_DTYPE"],
			})
		}
	}

	rootCmd.AddCommand(
		scheduleCmd,
		configCmd,
		colorfixCmd,
	)

	return rootCmd
}

// configPath - --config Flag oder SUPIR_CONFIG
func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	return envconfig.ConfigPath()
}
