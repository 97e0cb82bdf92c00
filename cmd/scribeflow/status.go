package main

import "github.com/spf13/cobra"

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var out struct {
			Job jobView `json:"job"`
			Gap string  `json:"gap"`
		}
		if err := call("GET", "/v1/jobs/"+args[0], nil, &out); err != nil {
			return err
		}
		printJob(out.Job, out.Gap)
		return nil
	},
}
