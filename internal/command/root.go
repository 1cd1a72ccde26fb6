package command

import (
	"github.com/spf13/cobra"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "skr-scenarios",
		Short:        "SKR scenarios",
		Long:         "Runs behavior-driven SKR provisioning scenarios against a Kyma Environment Broker landscape.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolP("help", "h", false, "Option that displays help for the CLI.")
	cmd.AddCommand(
		NewRunCmd(),
		NewStepsCmd(),
	)

	return cmd
}
