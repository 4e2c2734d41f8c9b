// Package cmd implements the qmctl commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qmdoc/doccontrol/internal/bootstrap"
	"github.com/qmdoc/doccontrol/internal/config"
	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/pkg/logger"
)

var (
	// Version is set at build time
	Version = "0.1.0"

	// Global flags
	outputFormat string
	dbPath       string
	storageRoot  string
	actorID      string

	cfg  *config.Config
	core *bootstrap.Core
)

var rootCmd = &cobra.Command{
	Use:   "qmctl",
	Short: "Administer the QM document store",
	Long: `qmctl works directly on the document database and artifact tree.

It imports documents, lists the register, prints audit trails, exports the
register as XLSX and mints development tokens for the API.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Init(os.Getenv("LOG_LEVEL"))
		var err error
		if cfg, err = config.LoadConfig(); err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Storage.DatabasePath = dbPath
		}
		if storageRoot != "" {
			cfg.Storage.Root = storageRoot
		}
		if !needsStore(cmd) {
			return nil
		}
		core, err = bootstrap.Open(cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if core != nil {
			_ = core.Close()
			core = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: STORAGE_DATABASE_PATH)")
	rootCmd.PersistentFlags().StringVar(&storageRoot, "root", "", "Artifact root (default: STORAGE_ROOT)")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", "qmctl", "Actor recorded in the audit trail")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func needsStore(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "token", "help", "completion":
		return false
	}
	return true
}

// admin is the actor qmctl acts as.
func admin() document.Actor {
	return document.Actor{ID: actorID, Roles: []document.SystemRole{document.SystemAdmin}}
}

func outputJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

var (
	okFmt   = color.New(color.FgGreen).SprintFunc()
	warnFmt = color.New(color.FgYellow).SprintFunc()
	errFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
	dimFmt  = color.New(color.Faint).SprintFunc()
	infoFmt = color.New(color.FgCyan).SprintFunc()
)

// statusLabel colors a status by how far it is from released.
func statusLabel(s document.Status) string {
	switch s {
	case document.StatusPublished:
		return okFmt(string(s))
	case document.StatusInReview, document.StatusApproval:
		return infoFmt(string(s))
	case document.StatusDraft, document.StatusRevision:
		return warnFmt(string(s))
	case document.StatusArchived, document.StatusObsolete:
		return dimFmt(string(s))
	}
	return string(s)
}

func resultLabel(r string) string {
	switch r {
	case document.ResultSuccess:
		return okFmt(r)
	case document.ResultDenied:
		return warnFmt(r)
	case document.ResultFailure:
		return errFmt(r)
	}
	return r
}

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "%s %s\n", warnFmt("warning:"), msg)
	}
}
