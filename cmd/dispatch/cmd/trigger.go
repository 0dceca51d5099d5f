package cmd

import (
	"github.com/cschleiden/go-dispatch/core"
	"github.com/spf13/cobra"
)

var triggerCmd = &cobra.Command{
	Use:     "trigger <activity-type>",
	Short:   "Start every definition triggered by a stimulus",
	Example: `  dispatch trigger Event --payload '{"event":"OrderApproved","orderId":"42"}' --correlation-id 42`,
	Args:    cobra.ExactArgs(1),
	RunE:    runTrigger,
}

var triggerFlags struct {
	payload        string
	correlationID  string
	input          string
	idempotencyKey string
}

func init() {
	triggerCmd.Flags().StringVar(&triggerFlags.payload, "payload", "", "stimulus payload as a JSON object")
	triggerCmd.Flags().StringVar(&triggerFlags.correlationID, "correlation-id", "", "correlation id of started instances")
	triggerCmd.Flags().StringVar(&triggerFlags.input, "input", "", "input variables as a JSON object")
	triggerCmd.Flags().StringVar(&triggerFlags.idempotencyKey, "idempotency-key", "", "start at most one instance per definition for this key")
	rootCmd.AddCommand(triggerCmd)
}

func runTrigger(cmd *cobra.Command, args []string) error {
	p, err := parsePayload(triggerFlags.payload)
	if err != nil {
		return err
	}

	input, err := parsePayload(triggerFlags.input)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.dispatcher.TriggerWorkflows(cmd.Context(), &core.TriggerWorkflowsRequest{
		ActivityTypeName: args[0],
		Payload:          p,
		CorrelationID:    triggerFlags.correlationID,
		Input:            input,
		IdempotencyKey:   triggerFlags.idempotencyKey,
	})
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), newBatchView(r.Outcome, r.StartedInstanceIDs, r.Items))
}
