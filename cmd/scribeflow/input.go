package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var inputCmd = &cobra.Command{
	Use:   "input <job-id> <supplement>",
	Short: "Supply the information a parked job asked for",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		body := map[string]string{"supplement": args[1]}
		if err := call("POST", "/v1/jobs/"+args[0]+"/input", body, nil); err != nil {
			return err
		}
		fmt.Printf("job %s resumed\n", args[0])
		return nil
	},
}
