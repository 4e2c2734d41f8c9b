package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(auditCmd)
}

var auditCmd = &cobra.Command{
	Use:   "audit <doc_id>",
	Short: "Print the audit trail of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := core.Service().AuditTrail(cmd.Context(), args[0], admin())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			return outputJSON(out, entries)
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tACTION\tFROM\tTO\tACTOR\tRESULT\tREASON")
		for _, e := range entries {
			reason := e.Reason
			if reason == "" {
				reason = e.Details["denial"]
			}
			if reason == "" {
				reason = e.Details["error"]
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				e.OccurredAt.Local().Format("2006-01-02 15:04"),
				e.Action, dash(string(e.FromStatus)), dash(string(e.ToStatus)),
				e.ActorID, resultLabel(e.Result), strings.ReplaceAll(reason, "\n", " "))
		}
		return w.Flush()
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
