package main

import (
	"github.com/nucleus/meno-sync/internal/connector/airtable"
	"github.com/nucleus/meno-sync/internal/connector/http"
	"github.com/nucleus/meno-sync/internal/connector/notion"
	"github.com/nucleus/meno-sync/internal/ledger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	validateCmd.Flags().Bool("probe", false, "Also check both tokens against the live APIs.")

	runsCmd.Flags().Int("limit", 20, "The number of runs to list.")
	runsCmd.Flags().String("run", "", "Show the job results of this run instead of listing runs.")
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the job file and credentials without syncing.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		s := settings(command)
		logger, err := newLogger(s)
		if err != nil {
			return err
		}
		jobs, invalid, err := loadJobs(s.JobsFile)
		if err != nil {
			return err
		}
		for _, e := range invalid {
			logger.WithError(e).Error("Invalid job")
		}
		notionToken, airtableToken, err := s.Tokens()
		if err != nil {
			return err
		}
		if probe, _ := command.Flags().GetBool("probe"); probe {
			if err := probeBackends(command, notionToken, airtableToken, s.NotionBaseURL, s.AirtableBaseURL); err != nil {
				return err
			}
		}
		if len(invalid) > 0 {
			return errors.Errorf("%d of %d jobs are invalid", len(invalid), len(jobs))
		}
		logger.WithField("jobs", len(jobs)).Info("Configuration is valid")
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs from the run ledger.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		s := settings(command)
		if s.LedgerDSN == "" {
			return errors.New("MENO_LEDGER_DSN is not set")
		}
		book, err := ledger.Open(command.Context(), s.LedgerDSN)
		if err != nil {
			return err
		}
		defer book.Close()

		if runID, _ := command.Flags().GetString("run"); runID != "" {
			results, err := book.JobResults(command.Context(), runID)
			if err != nil {
				return err
			}
			return printJSON(results)
		}
		limit, _ := command.Flags().GetInt("limit")
		runs, err := book.Runs(command.Context(), limit)
		if err != nil {
			return err
		}
		return printJSON(runs)
	},
}

func probeBackends(command *cobra.Command, notionToken, airtableToken, notionURL, airtableURL string) error {
	ctx := command.Context()
	source, err := notion.New(&notion.Config{Token: notionToken, BaseURL: notionURL})
	if err != nil {
		return err
	}
	dest, err := airtable.New(&airtable.Config{Token: airtableToken, BaseURL: airtableURL})
	if err != nil {
		return err
	}

	for _, probe := range []func() (*http.ValidationResult, error){
		func() (*http.ValidationResult, error) { return source.ValidateConnection(ctx) },
		func() (*http.ValidationResult, error) { return dest.ValidateConnection(ctx) },
	} {
		result, err := probe()
		if err != nil {
			return err
		}
		if !result.Valid {
			return errors.New(result.Message)
		}
	}
	return nil
}
