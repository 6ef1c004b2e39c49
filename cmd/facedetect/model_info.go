package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/dudu/facedetect/internal/inference"
)

func (a *app) modelInfo(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return errors.New("model-info needs exactly one model path")
	}
	modelPath := c.Args().First()
	if _, err := os.Stat(modelPath); err != nil {
		return errors.Wrap(err, "model")
	}

	if err := inference.Initialize(a.config.RuntimeLibrary); err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, inference.Shutdown())
	}()

	info, err := inference.Inspect(modelPath)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Model: %s\n", modelPath)
	if info.Producer != "" {
		fmt.Fprintf(w, "Producer: %s (version %d)\n", info.Producer, info.Version)
	}
	if info.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", info.Description)
	}
	fmt.Fprintf(w, "\nInputs (%d):\n", len(info.Inputs))
	for _, t := range info.Inputs {
		fmt.Fprintf(w, "  %s: shape=%v, type=%s\n", t.Name, t.Dimensions, t.DataType)
	}
	fmt.Fprintf(w, "\nOutputs (%d):\n", len(info.Outputs))
	for _, t := range info.Outputs {
		fmt.Fprintf(w, "  %s: shape=%v, type=%s\n", t.Name, t.Dimensions, t.DataType)
	}
	return nil
}
