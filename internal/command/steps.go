package command

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/scenario"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/steps"
	"github.com/spf13/cobra"
)

type StepsCommand struct {
	cobraCmd *cobra.Command
	out      io.Writer
}

func NewStepsCmd() *cobra.Command {
	cmd := StepsCommand{out: os.Stdout}
	cobraCmd := &cobra.Command{
		Use:     "steps",
		Aliases: []string{"s"},
		Short:   "Lists the available steps",
		Long:    "Lists every registered step phrase with its expression and timeout.",
		Example: "	skr-scenarios steps                                Lists the step phrases.",

		RunE: func(_ *cobra.Command, _ []string) error { return cmd.Run() },
	}
	cmd.cobraCmd = cobraCmd

	return cobraCmd
}

func (cmd *StepsCommand) Run() error {
	registry := scenario.NewRegistry(scenario.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err := steps.Register(registry, &steps.Env{}); err != nil {
		return fmt.Errorf("while registering steps: %w", err)
	}
	w := tabwriter.NewWriter(cmd.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHRASE\tTIMEOUT\tEXPRESSION")
	for _, def := range registry.Definitions() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", def.Phrase, def.Timeout, def.Expression())
	}
	return w.Flush()
}
