package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dudu/facedetect/internal/inference"
	"github.com/dudu/facedetect/internal/inference/onnx"
	"github.com/dudu/facedetect/internal/inference/tflite"
)

var modelInfoCmd = &cobra.Command{
	Use:   "modelinfo [model]",
	Short: "Print the input and output tensors of a model",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.ModelPath
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("model not found: %w", err)
		}

		var (
			info *inference.ModelInfo
			err  error
		)
		if strings.EqualFold(filepath.Ext(path), ".onnx") {
			info, err = onnx.Describe(path, cfg.ORTLibrary)
			defer onnx.Shutdown()
		} else {
			info, err = tflite.Describe(path)
		}
		if err != nil {
			return err
		}

		printModelInfo(cmd.OutOrStdout(), info)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelInfoCmd)
}

func printModelInfo(w io.Writer, info *inference.ModelInfo) {
	fmt.Fprintf(w, "Model: %s\n", info.Path)

	fmt.Fprintf(w, "\nInputs (%d):\n", len(info.Inputs))
	for _, t := range info.Inputs {
		fmt.Fprintf(w, "  %s: shape=%v, type=%s\n", t.Name, t.Shape, t.Type)
	}

	fmt.Fprintf(w, "\nOutputs (%d):\n", len(info.Outputs))
	for _, t := range info.Outputs {
		fmt.Fprintf(w, "  %s: shape=%v, type=%s\n", t.Name, t.Shape, t.Type)
	}

	if len(info.Metadata) == 0 {
		return
	}
	keys := make([]string, 0, len(info.Metadata))
	for k := range info.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "\nMetadata:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, info.Metadata[k])
	}
}
