// Command gradcheck builds a two-layer network and checks its backprop
// gradient against a central-difference estimate.
//
// To check on a synthetic batch: `go run ./cmd/gradcheck check --hidden-size=50`
//
// To check on a saved batch: `go run ./cmd/gradcheck check --data-file=batch.npz --input-size=784 --output-size=10`
//
// To report loss and accuracy: `go run ./cmd/gradcheck evaluate --data-file=batch.npz`
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&CheckCommand{}, "")
	subcommands.Register(&EvaluateCommand{}, "")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}

type CheckCommand struct {
	net netFlags

	tolerance float64
}

var _ subcommands.Command = (*CheckCommand)(nil)

func (*CheckCommand) Name() string {
	return "check"
}

func (*CheckCommand) Synopsis() string {
	return "Compare the backprop gradient with the numerical gradient"
}

func (*CheckCommand) Usage() string {
	return ``
}

func (c *CheckCommand) SetFlags(f *flag.FlagSet) {
	c.net.register(f)
	f.Float64Var(&c.tolerance, "tolerance", 1e-4, "Largest acceptable relative error between the two gradients")
}

func (c *CheckCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *CheckCommand) executeErr(ctx context.Context) error {
	net, x, t, err := c.net.build()
	if err != nil {
		return err
	}

	batchSize, _ := x.Dims()
	log.Printf("Checking gradients over a batch of %d", batchSize)

	report, err := net.CheckGradient(x, t)
	if err != nil {
		return fmt.Errorf("while checking gradients: %w", err)
	}

	for _, d := range report {
		log.Printf("%s mean-abs-diff=%e max-abs-diff=%e max-rel-error=%e", d.Name, d.MeanAbsDiff, d.MaxAbsDiff, d.MaxRelError)
	}

	if worst := report.MaxRelError(); worst > c.tolerance {
		return fmt.Errorf("relative error %e exceeds tolerance %e", worst, c.tolerance)
	}
	log.Printf("Gradients agree within %e", c.tolerance)
	return nil
}
