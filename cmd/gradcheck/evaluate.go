package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/subcommands"
)

type EvaluateCommand struct {
	net netFlags
}

var _ subcommands.Command = (*EvaluateCommand)(nil)

func (*EvaluateCommand) Name() string {
	return "evaluate"
}

func (*EvaluateCommand) Synopsis() string {
	return "Report the loss and accuracy of a freshly initialized network"
}

func (*EvaluateCommand) Usage() string {
	return ``
}

func (c *EvaluateCommand) SetFlags(f *flag.FlagSet) {
	c.net.register(f)
}

func (c *EvaluateCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *EvaluateCommand) executeErr(ctx context.Context) error {
	net, x, t, err := c.net.build()
	if err != nil {
		return err
	}

	y, err := net.Predict(x)
	if err != nil {
		return fmt.Errorf("while predicting: %w", err)
	}
	rows, cols := y.Dims()

	loss, err := net.Loss(x, t)
	if err != nil {
		return fmt.Errorf("while computing loss: %w", err)
	}

	acc, err := net.Accuracy(x, t)
	if err != nil {
		return fmt.Errorf("while computing accuracy: %w", err)
	}

	log.Printf("scores=(%d, %d) loss=%f accuracy-pct=%.1f", rows, cols, loss, acc*100)
	return nil
}
