//go:build darwin

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tsawler/go-metal/checkpoints"
)

var metalCmd = &cobra.Command{
	Use:   "metalcheck <model.onnx>",
	Short: "Check whether go-metal can import an ONNX detection model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modelPath := args[0]
		if _, err := os.Stat(modelPath); err != nil {
			return fmt.Errorf("model not found: %w", err)
		}

		logger.WithField("model", modelPath).Info("importing with go-metal")
		checkpoint, err := checkpoints.NewONNXImporter().ImportFromONNX(modelPath)
		if err != nil {
			return fmt.Errorf("go-metal cannot import %s: %w", modelPath, err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Layers: %d\n", len(checkpoint.ModelSpec.Layers))
		fmt.Fprintf(w, "Weights: %d tensors\n", len(checkpoint.Weights))
		for i, layer := range checkpoint.ModelSpec.Layers {
			fmt.Fprintf(w, "  %d: %s (%v)\n", i+1, layer.Name, layer.Type)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(metalCmd)
}
