package cmd

import (
	"github.com/cschleiden/go-dispatch/core"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <instance-id>",
	Short: "Show an instance with its bookmarks and execution log",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

type inspectView struct {
	Instance  *core.WorkflowInstance `json:"instance"`
	Bookmarks []*core.Bookmark       `json:"bookmarks"`
	Log       []*core.LogEntry       `json:"log"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	instance, err := a.backend.Instances().Load(ctx, args[0])
	if err != nil {
		return err
	}

	bookmarks, err := a.backend.Bookmarks().FindByInstance(ctx, instance.ID)
	if err != nil {
		return err
	}

	entries, err := a.backend.ExecutionLog().List(ctx, instance.ID)
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), inspectView{Instance: instance, Bookmarks: bookmarks, Log: entries})
}
