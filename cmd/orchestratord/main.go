// orchestratord is the server process: it wires the full orchestration
// core via internal/app and serves the Orchestrator API over HTTP,
// replacing the teacher's combined server+worker container entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/taskforge/orchestrator/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize orchestratord: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Start()

	addr := a.Cfg.HTTPAddr
	a.Log.Info("orchestratord listening", "addr", addr)
	if err := a.Run(addr); err != nil {
		a.Log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
