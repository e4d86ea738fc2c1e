package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/nucleus/meno-sync/internal/config"
	"github.com/nucleus/meno-sync/internal/connector/airtable"
	"github.com/nucleus/meno-sync/internal/connector/http"
	minioep "github.com/nucleus/meno-sync/internal/connector/minio"
	"github.com/nucleus/meno-sync/internal/connector/notion"
	"github.com/nucleus/meno-sync/internal/ledger"
	"github.com/nucleus/meno-sync/internal/orchestration"
	"github.com/nucleus/meno-sync/pkg/logstore"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	runCmd.Flags().Bool("strict", false, "Exit non-zero when any job fails.")
	runCmd.Flags().Bool("deferred-links", false, "Patch links to tables written later in the run (defaults to MENO_DEFERRED_LINKS).")
	runCmd.Flags().Bool("summary", false, "Print the run summary as JSON.")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every configured job in order.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		s := settings(command)
		if deferred, _ := command.Flags().GetBool("deferred-links"); deferred {
			s.DeferredLinks = true
		}
		logger, err := newLogger(s)
		if err != nil {
			return err
		}

		jobs, invalid, err := loadJobs(s.JobsFile)
		if err != nil {
			return err
		}
		for _, e := range invalid {
			logger.WithError(e).Error("Invalid job, it will be skipped")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runner, closeFn, err := buildRunner(ctx, s, logger)
		if err != nil {
			return err
		}
		defer closeFn()

		summary, err := runner.Run(ctx, jobs)
		if err != nil {
			return errors.Wrap(err, "run interrupted")
		}

		if printSummary, _ := command.Flags().GetBool("summary"); printSummary {
			if err := printJSON(summary); err != nil {
				return err
			}
		}
		strict, _ := command.Flags().GetBool("strict")
		if failed := summary.Failed(); strict && len(failed) > 0 {
			return errors.Errorf("%d of %d jobs failed", len(failed), len(summary.Jobs))
		}
		return nil
	},
}

// buildRunner wires the clients, artifact store and ledger from settings.
func buildRunner(ctx context.Context, s *config.Settings, logger log.FieldLogger) (*orchestration.Runner, func(), error) {
	notionToken, airtableToken, err := s.Tokens()
	if err != nil {
		return nil, nil, err
	}

	source, err := notion.New(&notion.Config{
		Token:     notionToken,
		BaseURL:   s.NotionBaseURL,
		PageDelay: s.NotionPageDelay,
		HTTP:      httpConfig(s),
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "notion client")
	}
	dest, err := airtable.New(&airtable.Config{
		Token:     airtableToken,
		BaseURL:   s.AirtableBaseURL,
		RateLimit: float64(s.AirtableRateLimit),
		HTTP:      httpConfig(s),
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "airtable client")
	}

	artifacts, err := logstore.NewMinioStore(&minioep.Config{
		EndpointURL:     s.MinioEndpoint,
		AccessKeyID:     s.MinioAccessKey,
		SecretAccessKey: s.MinioSecretKey,
		UseSSL:          s.MinioUseSSL,
		Bucket:          s.MinioBucket,
		LocalRoot:       s.ArtifactDir,
	})
	if err != nil {
		return nil, nil, err
	}

	opts := orchestration.Options{
		DeferredLinks: s.DeferredLinks,
		Artifacts:     artifacts,
		Logger:        logger,
	}
	closeFn := func() {
		source.Close()
		dest.Close()
	}
	if s.LedgerDSN != "" {
		book, err := ledger.Open(ctx, s.LedgerDSN)
		if err != nil {
			return nil, nil, err
		}
		opts.Ledger = book
		closeFn = func() {
			source.Close()
			dest.Close()
			book.Close()
		}
	}
	return orchestration.NewRunner(source, dest, opts), closeFn, nil
}

func httpConfig(s *config.Settings) *http.ClientConfig {
	cfg := http.DefaultClientConfig()
	cfg.MaxRetries = s.MaxRetries
	cfg.RetryDelay = s.RetryDelay
	cfg.CoolDown = s.CoolDown
	return cfg
}
