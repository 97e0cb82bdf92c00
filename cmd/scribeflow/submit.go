package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var submitFlags struct {
	agent    string
	priority string
}

var submitCmd = &cobra.Command{
	Use:   "submit <payload-ref>",
	Short: "Submit a dictation for processing",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if submitFlags.agent == "" {
			return errors.New("--agent is required")
		}

		body := map[string]string{
			"payload_ref": args[0],
			"agent":       submitFlags.agent,
			"priority":    submitFlags.priority,
		}
		var j jobView
		if err := call("POST", "/v1/jobs", body, &j); err != nil {
			return err
		}
		printJob(j, "")
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitFlags.agent, "agent", "", "agent kind (clinic_letter, procedure_report, echo_report, task, note, summary)")
	submitCmd.Flags().StringVar(&submitFlags.priority, "priority", "normal", "job priority (high, normal, low)")
}
