// soundwatch listens to a microphone and reports when a registered sound
// pattern is heard.
package main

import (
	"log/slog"
	"os"

	"github.com/GriffinCanCode/soundwatch/cmd/server/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
