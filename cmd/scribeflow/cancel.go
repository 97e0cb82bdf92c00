package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := call("POST", "/v1/jobs/"+args[0]+"/cancel", nil, nil); err != nil {
			return err
		}
		fmt.Printf("job %s cancel requested\n", args[0])
		return nil
	},
}
