// orchestratorctl is a thin operator CLI for the Orchestrator API (§4.9),
// grounded on the teacher's cobra+viper command style (internal/cli in the
// atlas retrieval-pack example): one subcommand per operation, talking to
// a running orchestratord over HTTP rather than wiring the core in-process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var serverAddr string

	cmd := &cobra.Command{
		Use:   "orchestratorctl",
		Short: "Operate a running orchestratord instance",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v.SetEnvPrefix("TASKFORGECTL")
			v.AutomaticEnv()
			if serverAddr == "" {
				serverAddr = v.GetString("server")
			}
			if serverAddr == "" {
				serverAddr = "http://localhost:8080"
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&serverAddr, "server", "", "orchestratord base URL (default http://localhost:8080)")
	_ = v.BindPFlag("server", cmd.PersistentFlags().Lookup("server"))

	client := func() *apiClient { return newAPIClient(serverAddr) }

	cmd.AddCommand(
		newInitCmd(client),
		newExecuteCmd(client),
		newStatusCmd(client),
		newPauseCmd(client),
		newResumeCmd(client),
		newCancelCmd(client),
		newInputCmd(client),
		newListCmd(client),
		newStatsCmd(client),
	)
	return cmd
}
