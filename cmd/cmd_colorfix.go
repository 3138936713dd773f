// cmd_colorfix.go - Colorfix Command
// Hauptfunktionen: ColorFixHandler
package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/hkarakose/SUPIR/colorfix"
	"github.com/hkarakose/SUPIR/envconfig"
	"github.com/hkarakose/SUPIR/vision"
)

// newColorFixCmd - Erstellt den colorfix Command
func newColorFixCmd() *cobra.Command {
	colorfixCmd := &cobra.Command{
		Use:   "colorfix",
		Short: "Transfer the colors of a reference image onto an image",
		Args:  cobra.NoArgs,
		RunE:  ColorFixHandler,
	}

	colorfixCmd.Flags().String("mode", "", "Color fix mode: Wavelet, AdaIn or None (default $SUPIR_COLOR_FIX or Wavelet)")
	colorfixCmd.Flags().String("input", "", "Image to correct")
	colorfixCmd.Flags().String("reference", "", "Image providing the colors")
	colorfixCmd.Flags().String("output", "", "Output file (.png or .jpg)")
	for _, name := range []string{"input", "reference", "output"} {
		colorfixCmd.MarkFlagRequired(name) //nolint:errcheck
	}

	return colorfixCmd
}

// ColorFixHandler - Fuehrt die Farbkorrektur auf Dateien aus
func ColorFixHandler(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	name, _ := flags.GetString("mode")
	if name == "" {
		name = envconfig.ColorFix()
	}
	if name == "" {
		name = string(colorfix.Wavelet)
	}
	mode, err := colorfix.ParseMode(name)
	if err != nil {
		return err
	}

	inputPath, _ := flags.GetString("input")
	referencePath, _ := flags.GetString("reference")
	outputPath, _ := flags.GetString("output")

	input, err := vision.LoadImage(inputPath)
	if err != nil {
		return fmt.Errorf("%s: %w", inputPath, err)
	}
	reference, err := vision.LoadImage(referencePath)
	if err != nil {
		return fmt.Errorf("%s: %w", referencePath, err)
	}
	// Referenz auf die Groesse der Eingabe bringen
	if reference, err = vision.ResizeImage(reference, input.Width, input.Height); err != nil {
		return err
	}

	content, err := vision.ToTensor(input)
	if err != nil {
		return err
	}
	style, err := vision.ToTensor(reference)
	if err != nil {
		return err
	}

	start := time.Now()
	out, err := colorfix.Apply(cmd.Context(), mode, content, style)
	if err != nil {
		return err
	}
	slog.Debug("color fix", "mode", mode, "width", input.Width, "height", input.Height, "elapsed", time.Since(start))

	imgs, err := vision.FromTensor(out)
	if err != nil {
		return err
	}
	return vision.SaveImage(outputPath, imgs[0])
}
