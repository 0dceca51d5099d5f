package cmd

import (
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish <definition.yaml>...",
	Short: "Publish workflow definitions",
	Long: `Publish validates each definition file, stores it as the next version and updates the
trigger index so matching stimuli start new instances. With --draft the definitions are stored
unpublished and the trigger index is left untouched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPublish,
}

var publishFlags struct {
	draft bool
}

func init() {
	publishCmd.Flags().BoolVar(&publishFlags.draft, "draft", false, "store unpublished versions")

	rootCmd.AddCommand(publishCmd)
}

type publishView struct {
	ID        string   `json:"id"`
	Version   int      `json:"version"`
	Published bool     `json:"published"`
	Triggers  []string `json:"triggers"`
}

func runPublish(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	views := make([]publishView, 0, len(args))
	for _, path := range args {
		def, err := definition.ParseFile(path)
		if err != nil {
			return err
		}

		save := a.dispatcher.Publish
		if publishFlags.draft {
			save = a.dispatcher.SaveDraft
		}

		published, err := save(cmd.Context(), def)
		if err != nil {
			return err
		}

		v := publishView{ID: published.ID, Version: published.Version, Published: published.IsPublished, Triggers: []string{}}
		for _, t := range published.Triggers {
			v.Triggers = append(v.Triggers, t.ActivityTypeName+"/"+t.ActivityID)
		}

		views = append(views, v)
	}

	return printJSON(cmd.OutOrStdout(), views)
}
