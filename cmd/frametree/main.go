// Command frametree addresses and populates datasets held in data stores.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ArcanaFramework/frametree-flywheel/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
