// cmd_schedule.go - Schedule Command
// Hauptfunktionen: ScheduleHandler
package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hkarakose/SUPIR/sampler"
	"github.com/hkarakose/SUPIR/supir"
)

// newScheduleCmd - Erstellt den schedule Command
func newScheduleCmd() *cobra.Command {
	defaults := supir.DefaultOptions()

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the per-step noise, guidance and control schedule",
		Args:  cobra.NoArgs,
		RunE:  ScheduleHandler,
	}

	scheduleCmd.Flags().String("config", "", "Model config file (default $SUPIR_CONFIG)")
	scheduleCmd.Flags().String("sampler", "", "Sampler ("+sampler.RestoreEDMSampler+", "+sampler.RestoreDPMPP2MSampler+")")
	scheduleCmd.Flags().Int("steps", defaults.Steps, "Number of sampling steps")
	scheduleCmd.Flags().Float64("restoration-scale", defaults.RestorationScale, "Restoration guidance strength (0 disables)")
	scheduleCmd.Flags().Float64("s-churn", defaults.SChurn, "Stochastic churn")
	scheduleCmd.Flags().Float64("s-noise", defaults.SNoise, "Churn noise multiplier")
	scheduleCmd.Flags().Float64("guidance", defaults.GuidanceScale, "Classifier-free guidance scale")
	scheduleCmd.Flags().Bool("linear-guidance", defaults.LinearGuidance, "Ramp guidance from --guidance-start to --guidance")
	scheduleCmd.Flags().Float64("guidance-start", defaults.GuidanceScaleStart, "Guidance at the first step when linear")
	scheduleCmd.Flags().Float64("control-scale", defaults.ControlScale, "Control scale")
	scheduleCmd.Flags().Bool("linear-control", defaults.LinearControlScale, "Ramp control from --control-start to --control-scale")
	scheduleCmd.Flags().Float64("control-start", defaults.ControlScaleStart, "Control scale at the first step when linear")

	return scheduleCmd
}

// ScheduleHandler - Plant einen Lauf und gibt die Schritt-Tabelle aus
func ScheduleHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := supir.LoadConfig(configPath(cmd))
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if name, _ := flags.GetString("sampler"); name != "" {
		cfg.Sampler.Target = name
	}

	steps, _ := flags.GetInt("steps")
	restore, _ := flags.GetFloat64("restoration-scale")
	churn, _ := flags.GetFloat64("s-churn")
	noise, _ := flags.GetFloat64("s-noise")

	var req sampler.ScheduleRequest
	req.GuidanceScale, _ = flags.GetFloat64("guidance")
	req.LinearGuidance, _ = flags.GetBool("linear-guidance")
	req.GuidanceScaleStart, _ = flags.GetFloat64("guidance-start")
	req.ControlScale, _ = flags.GetFloat64("control-scale")
	req.LinearControlScale, _ = flags.GetBool("linear-control")
	req.ControlScaleStart, _ = flags.GetFloat64("control-start")

	scfg, control := sampler.Plan(cfg.Sampler, steps, restore, churn, noise, req)
	plan, err := sampler.Preview(scfg, control)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s, %s, %d steps\n\n", scfg.Target, scfg.Discretization.Target, len(plan))
	renderSchedule(cmd.OutOrStdout(), plan)
	return nil
}

// renderSchedule - Gibt die Schritte als Tabelle aus
func renderSchedule(w io.Writer, plan []sampler.StepPlan) {
	format := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

	var data [][]string
	for _, p := range plan {
		data = append(data, []string{
			strconv.Itoa(p.Step),
			format(p.Sigma),
			format(p.Guidance),
			format(p.Control),
			format(p.RestoreWeight),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"STEP", "SIGMA", "GUIDANCE", "CONTROL", "RESTORE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
