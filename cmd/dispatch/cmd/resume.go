package cmd

import (
	"errors"

	"github.com/cschleiden/go-dispatch/core"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [activity-type]",
	Short: "Resume waiting instances",
	Long: `With an activity type, resume every bookmark matching the stimulus, optionally narrowed by
correlation id or instance. Without one, continue the instance given by --instance, optionally
at the bookmark given by --bookmark.`,
	Example: `  dispatch resume Event --payload '{"event":"OrderShipped"}' --correlation-id 42
  dispatch resume --instance 3f2a... --bookmark 9c1d...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResume,
}

var resumeFlags struct {
	payload       string
	correlationID string
	instanceID    string
	bookmarkID    string
	input         string
}

func init() {
	resumeCmd.Flags().StringVar(&resumeFlags.payload, "payload", "", "stimulus payload as a JSON object")
	resumeCmd.Flags().StringVar(&resumeFlags.correlationID, "correlation-id", "", "only resume instances with this correlation id")
	resumeCmd.Flags().StringVar(&resumeFlags.instanceID, "instance", "", "only resume this instance")
	resumeCmd.Flags().StringVar(&resumeFlags.bookmarkID, "bookmark", "", "bookmark to resume, requires --instance")
	resumeCmd.Flags().StringVar(&resumeFlags.input, "input", "", "input variables as a JSON object")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && resumeFlags.instanceID == "" {
		return errors.New("either an activity type or --instance is required")
	}

	p, err := parsePayload(resumeFlags.payload)
	if err != nil {
		return err
	}

	input, err := parsePayload(resumeFlags.input)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 0 {
		r, err := a.dispatcher.ResumeInstance(cmd.Context(), &core.ResumeInstanceRequest{
			InstanceID: resumeFlags.instanceID,
			BookmarkID: resumeFlags.bookmarkID,
			Input:      input,
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

	r, err := a.dispatcher.ResumeBookmarks(cmd.Context(), &core.ResumeBookmarksRequest{
		ActivityTypeName: args[0],
		Payload:          p,
		CorrelationID:    resumeFlags.correlationID,
		InstanceID:       resumeFlags.instanceID,
		Input:            input,
	})
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), newBatchView(r.Outcome, r.ResumedInstanceIDs, r.Items))
}
