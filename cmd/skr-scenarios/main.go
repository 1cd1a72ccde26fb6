package main

import (
	"os"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/command"
)

func main() {
	cmd := command.New()

	err := cmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
