package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"askgive/internal"
	"askgive/internal/pipeline"
	"askgive/internal/reference"
	"askgive/internal/sheets"
)

var (
	rosterInput    string
	rosterClean    bool
	rosterSyncURL  string
	referenceInput string
	membersQuery   string
	matchMemberID  string
	matchOut       string
	exportOut      string
)

var rosterImportCmd = &cobra.Command{
	Use:   "roster:import",
	Short: "Import a roster workbook (xlsx, csv, html or pdf)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if strings.TrimSpace(rosterInput) == "" {
			return fmt.Errorf("--input is required")
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		content, err := os.ReadFile(rosterInput)
		if err != nil {
			return err
		}
		clean := cleanFlag(a, rosterClean, cmd.Flags().Changed("clean"))
		res, err := a.Processor.ImportFile(cmd.Context(), internal.SourceCLI, filepath.Base(rosterInput), content, pipeline.ImportOptions{Origin: rosterInput, Clean: clean})
		if err != nil {
			return err
		}
		fmt.Printf("roster imported id=%s parsed=%d members=%d cleaned=%t\n", res.ImportID, res.Parsed, len(res.Members), res.Cleaned)
		return nil
	},
}

var rosterSyncCmd = &cobra.Command{
	Use:   "roster:sync",
	Short: "Import a roster from a Google Sheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		url := firstNonBlank(rosterSyncURL, a.Cfg.SheetURL)
		if err := a.Cfg.Require("SHEET_URL", url); err != nil {
			return err
		}
		clean := cleanFlag(a, rosterClean, cmd.Flags().Changed("clean"))
		res, err := a.Syncer.Sync(cmd.Context(), url, sheets.SyncOptions{Clean: clean})
		if err != nil {
			return err
		}
		fmt.Printf("sheet synced id=%s via=%s members=%d cleaned=%t\n", res.SheetID, res.Via, len(res.Import.Members), res.Import.Cleaned)
		return nil
	},
}

var referenceImportCmd = &cobra.Command{
	Use:   "reference:import",
	Short: "Load the trusted chapter roster used to verify imports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		path := firstNonBlank(referenceInput, a.Cfg.ReferenceRosterPath)
		if err := a.Cfg.Require("REFERENCE_ROSTER_PATH", path); err != nil {
			return err
		}
		members, err := reference.LoadFile(path, a.Cfg.PhoneCountryCode)
		if err != nil {
			return err
		}
		if err := a.DB.ReplaceReferenceMembers(members); err != nil {
			return err
		}
		fmt.Printf("reference roster loaded members=%d\n", len(members))
		return nil
	},
}

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List stored roster members",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		members, err := a.DB.SearchMembers(membersQuery)
		if err != nil {
			return err
		}
		for _, m := range members {
			fmt.Printf("%s\t%s\t%s\tgives=%d asks=%d\n", m.ID, m.Name, m.Company, len(m.Gives), len(m.Asks))
		}
		return nil
	},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Find members whose gives answer a member's asks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if strings.TrimSpace(matchMemberID) == "" {
			return fmt.Errorf("--member is required")
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		matches, err := a.Processor.Match(cmd.Context(), matchMemberID)
		if err != nil {
			return err
		}
		if strings.TrimSpace(matchOut) != "" {
			if err := pipeline.ExportMatchesToXLSX(matches, matchOut); err != nil {
				return err
			}
			fmt.Printf("exported %d matches to %s\n", len(matches), matchOut)
			return nil
		}
		for _, m := range matches {
			fmt.Printf("%3.0f  %s  give=%q ask=%q (%s)\n", m.Score, m.Member, m.Give, m.MatchingAsk, m.Source)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the stored roster to xlsx",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		out := exportOut
		if strings.TrimSpace(out) == "" {
			out = filepath.Join(a.Cfg.OutputDir, "roster.xlsx")
		}
		members, err := a.DB.ListMembers()
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return fmt.Errorf("no members stored")
		}
		if err := pipeline.ExportMembersToXLSX(members, out); err != nil {
			return err
		}
		fmt.Printf("exported %d members to %s\n", len(members), out)
		return nil
	},
}

func init() {
	rosterImportCmd.Flags().StringVar(&rosterInput, "input", "", "roster file path")
	rosterImportCmd.Flags().BoolVar(&rosterClean, "clean", false, "clean with AI and keep only reference members (default: when AI is configured)")

	rosterSyncCmd.Flags().StringVar(&rosterSyncURL, "url", "", "Google Sheet URL (default SHEET_URL)")
	rosterSyncCmd.Flags().BoolVar(&rosterClean, "clean", false, "clean with AI and keep only reference members (default: when AI is configured)")

	referenceImportCmd.Flags().StringVar(&referenceInput, "input", "", "reference roster .yaml or .xlsx (default REFERENCE_ROSTER_PATH)")

	membersCmd.Flags().StringVar(&membersQuery, "q", "", "case-insensitive name filter")

	matchCmd.Flags().StringVar(&matchMemberID, "member", "", "member id")
	matchCmd.Flags().StringVar(&matchOut, "out", "", "write matches to this xlsx path")

	exportCmd.Flags().StringVar(&exportOut, "out", "", "output xlsx path (default OUTPUT_DIR/roster.xlsx)")
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
