// Command meno-sync copies Notion databases into Airtable tables.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nucleus/meno-sync/internal/config"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().String("jobs", "", "Job file to read (defaults to MENO_JOBS_FILE).")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (defaults to MENO_LOG_LEVEL).")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runsCmd)
}

var rootCmd = &cobra.Command{
	Use:           "meno-sync",
	Short:         "Sync Notion databases into Airtable tables.",
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("meno-sync failed")
		os.Exit(1)
	}
}

// settings loads the environment settings and applies the persistent flags.
func settings(command *cobra.Command) *config.Settings {
	s := config.LoadSettings()
	if jobs, _ := command.Flags().GetString("jobs"); jobs != "" {
		s.JobsFile = jobs
	}
	if level, _ := command.Flags().GetString("log-level"); level != "" {
		s.LogLevel = level
	}
	return s
}

func newLogger(s *config.Settings) (*log.Logger, error) {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	level, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", s.LogLevel)
	}
	logger.SetLevel(level)

	switch s.LogFormat {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return nil, errors.Errorf("invalid log format %q", s.LogFormat)
	}
	return logger, nil
}

// loadJobs reads and validates every job. It returns the jobs along with one
// error per invalid job.
func loadJobs(path string) ([]config.Job, []error, error) {
	jobs, err := config.LoadJobs(path)
	if err != nil {
		return nil, nil, err
	}
	var invalid []error
	for i := range jobs {
		if err := jobs[i].Validate(); err != nil {
			invalid = append(invalid, errors.Wrapf(err, "job %d (%s)", i, jobs[i].TableName))
		}
	}
	return jobs, invalid, nil
}

func printJSON(data any) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
