package cmd

import (
	"github.com/cschleiden/go-dispatch/core"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <definition-id>",
	Short: "Start an instance of a published definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

var startFlags struct {
	version        int
	correlationID  string
	input          string
	idempotencyKey string
}

func init() {
	startCmd.Flags().IntVar(&startFlags.version, "version", 0, "definition version (default: latest published)")
	startCmd.Flags().StringVar(&startFlags.correlationID, "correlation-id", "", "correlation id of the new instance")
	startCmd.Flags().StringVar(&startFlags.input, "input", "", "input variables as a JSON object")
	startCmd.Flags().StringVar(&startFlags.idempotencyKey, "idempotency-key", "", "start at most one instance for this key")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	input, err := parsePayload(startFlags.input)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	policy := core.LatestVersion()
	if startFlags.version > 0 {
		policy = core.SpecificVersion(startFlags.version)
	}

	r, err := a.dispatcher.StartDefinition(cmd.Context(), &core.StartDefinitionRequest{
		DefinitionID:   args[0],
		VersionPolicy:  policy,
		CorrelationID:  startFlags.correlationID,
		Input:          input,
		IdempotencyKey: startFlags.idempotencyKey,
	})
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
