package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/repository"
)

func init() {
	listCmd.Flags().String("text", "", "Match id or title")
	listCmd.Flags().String("status", "", "Only this status")
	listCmd.Flags().String("type", "", "Only this document type")
	listCmd.Flags().Bool("all", false, "Include ARCHIVED and OBSOLETE documents")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the document register",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := repository.Query{}
		q.Text, _ = cmd.Flags().GetString("text")
		q.IncludeArchived, _ = cmd.Flags().GetBool("all")
		if raw, _ := cmd.Flags().GetString("status"); raw != "" {
			st, err := document.ParseStatus(raw)
			if err != nil {
				return err
			}
			q.Status = st
		}
		if raw, _ := cmd.Flags().GetString("type"); raw != "" {
			t, err := document.ParseType(raw)
			if err != nil {
				return err
			}
			q.Type = t
		}

		list, err := core.Service().Search(cmd.Context(), q)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			return outputJSON(out, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No documents.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tVERSION\tOWNER\tTITLE")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.Type, statusLabel(s.Status), s.Version, s.OwnerID, s.Title)
		}
		return w.Flush()
	},
}
