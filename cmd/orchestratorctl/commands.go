package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newInitCmd(client func() *apiClient) *cobra.Command {
	var title, description, taskType string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new task and enqueue its first step",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			err := client().do("POST", "/tasks", map[string]any{
				"title":       title,
				"description": description,
				"type":        taskType,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&taskType, "type", "", "task type")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newExecuteCmd(client func() *apiClient) *cobra.Command {
	return idCommand("execute", "Admit or queue an initialized task", func(c *apiClient, id string) error {
		var out map[string]any
		if err := c.do("POST", "/tasks/"+id+"/execute", nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	}, client)
}

func newStatusCmd(client func() *apiClient) *cobra.Command {
	return idCommand("status", "Get a task's current status", func(c *apiClient, id string) error {
		var out map[string]any
		if err := c.do("GET", "/tasks/"+id+"/status", nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	}, client)
}

func newPauseCmd(client func() *apiClient) *cobra.Command {
	return idCommand("pause", "Pause a running task", func(c *apiClient, id string) error {
		return c.do("POST", "/tasks/"+id+"/pause", nil, nil)
	}, client)
}

func newResumeCmd(client func() *apiClient) *cobra.Command {
	return idCommand("resume", "Resume a paused task", func(c *apiClient, id string) error {
		return c.do("POST", "/tasks/"+id+"/resume", nil, nil)
	}, client)
}

func newCancelCmd(client func() *apiClient) *cobra.Command {
	return idCommand("cancel", "Cancel a task", func(c *apiClient, id string) error {
		return c.do("POST", "/tasks/"+id+"/cancel", nil, nil)
	}, client)
}

func newInputCmd(client func() *apiClient) *cobra.Command {
	var step, jsonInput string
	cmd := &cobra.Command{
		Use:   "input <taskId>",
		Short: "Provide user input for a task waiting on a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input map[string]any
			if jsonInput != "" {
				if err := json.Unmarshal([]byte(jsonInput), &input); err != nil {
					return fmt.Errorf("invalid --data JSON: %w", err)
				}
			}
			return client().do("POST", "/tasks/"+args[0]+"/input/"+step, input, nil)
		},
	}
	cmd.Flags().StringVar(&step, "step", "", "step name awaiting input")
	cmd.Flags().StringVar(&jsonInput, "data", "{}", "JSON object of input data")
	_ = cmd.MarkFlagRequired("step")
	return cmd
}

func newListCmd(client func() *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client().do("GET", "/tasks", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	return cmd
}

func newStatsCmd(client func() *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show orchestration-wide scheduler stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client().do("GET", "/orchestration/stats", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	return cmd
}

func idCommand(use, short string, run func(*apiClient, string) error, client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <taskId>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(client(), args[0])
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
