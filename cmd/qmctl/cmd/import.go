package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/repository"
)

func init() {
	importCmd.Flags().String("title", "", "Title (default: derived from the file name)")
	importCmd.Flags().String("type", "", "Document type code, e.g. VA or QMH")
	importCmd.Flags().String("owner", "", "Owner id (default: --actor)")
	importCmd.Flags().String("id", "", "Explicit document id")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a file as a new DRAFT document",
	Long: `Import a file as a new DRAFT document at version 1.0.

The id, type and title are derived from names like A01VA004_Cleaning.docx
unless given explicitly.

Examples:
  qmctl import A01VA004_Cleaning.docx
  qmctl import manual.pdf --id QMH01 --type QMH --owner quinn`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		typ, _ := cmd.Flags().GetString("type")
		owner, _ := cmd.Flags().GetString("owner")
		id, _ := cmd.Flags().GetString("id")

		meta := repository.NewDocument{ID: id, Title: title, OwnerID: owner}
		if typ != "" {
			t, err := document.ParseType(typ)
			if err != nil {
				return err
			}
			meta.Type = t
		}
		src, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		res, err := core.Service().Create(cmd.Context(), meta, src, admin())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			return outputJSON(out, res.Document)
		}
		d := res.Document
		fmt.Fprintf(out, "%s %s %q (%s) v%s\n", okFmt("imported"), d.ID, d.Title, d.Type, d.VersionLabel())
		printWarnings(out, res.Warnings)
		return nil
	},
}
