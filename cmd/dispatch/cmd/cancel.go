package cmd

import (
	"github.com/cschleiden/go-dispatch/core"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <instance-id>",
	Short: "Cancel a running or suspended instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.dispatcher.CancelInstance(cmd.Context(), &core.CancelInstanceRequest{InstanceID: args[0]})
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), instanceView{
		Outcome:    r.Outcome,
		InstanceID: r.InstanceID,
		Status:     r.Status,
		Error:      errString(r.Err),
	})
}
