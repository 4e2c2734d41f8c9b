package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/qmdoc/doccontrol/internal/export"
	"github.com/qmdoc/doccontrol/internal/repository"
)

func init() {
	exportCmd.Flags().String("out", "register.xlsx", "Output file")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the document register as XLSX",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		path, _ := cmd.Flags().GetString("out")
		svc := core.Service()
		list, err := svc.Search(cmd.Context(), repository.Query{IncludeArchived: true})
		if err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		if err := export.WriteRegister(f, list, svc.Permissions().Types(), time.Now()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d documents to %s\n", okFmt("exported"), len(list), path)
		return nil
	},
}
