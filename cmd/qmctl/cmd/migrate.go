package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qmdoc/doccontrol/internal/repository"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply pending schema migrations to the document database.

Opening the store already migrates; this command reports the resulting
schema version.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := repository.Migrate(core.Store.DB()); err != nil {
			return err
		}
		version, dirty, err := repository.SchemaVersion(core.Store.DB())
		if err != nil {
			return err
		}
		state := okFmt("clean")
		if dirty {
			state = errFmt("dirty")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s) at %s\n", version, state, cfg.Storage.DatabasePath)
		return nil
	},
}
