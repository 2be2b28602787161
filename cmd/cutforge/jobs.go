package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/jobs"
	"github.com/keagan/cutforge/internal/queue"
	"github.com/keagan/cutforge/internal/store"
	"github.com/keagan/cutforge/internal/timeline"
)

var (
	enqueueOwner   string
	enqueueProject string
	enqueueParams  string
	enqueueWait    bool

	listStatus string
	listLimit  int

	projectOwner    string
	projectName     string
	projectSubtitle string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [kind]",
	Short: "Create a job and put it on the queue",
	Long:  "Kinds: export, auto_edit, smart_edit, analyze_video, asset_metadata. Params are a JSON object.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		ctx := cmd.Context()

		kind := jobs.Kind(args[0])
		if !kind.Valid() {
			return fmt.Errorf("unknown job kind %q", args[0])
		}
		params := json.RawMessage(enqueueParams)
		if !json.Valid(params) {
			return fmt.Errorf("--params is not valid JSON")
		}

		db, err := store.Open(cfg.Database, log.Logger)
		if err != nil {
			return err
		}
		defer db.Close()
		broker, err := queue.Dial(cfg.AMQP, log.Logger)
		if err != nil {
			return err
		}
		defer broker.Close()

		job := jobs.NewJob(kind, enqueueOwner, enqueueProject, params)
		if err := jobs.Submit(ctx, db, broker, job); err != nil {
			return err
		}
		log.Info().Str("job_id", job.ID).Str("kind", string(kind)).Msg("job queued")

		if !enqueueWait {
			return printJSON(cmd, job)
		}
		done, err := jobs.WaitForJob(ctx, db, job.ID, cfg.Jobs.PollInterval, cfg.Jobs.PollTimeout)
		if err != nil {
			return err
		}
		if err := printJSON(cmd, done); err != nil {
			return err
		}
		if done.Status == jobs.StatusFailed {
			return fmt.Errorf("job %s failed: %s", done.ID, done.Error)
		}
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		db, err := store.Open(cfg.Database, log.Logger)
		if err != nil {
			return err
		}
		defer db.Close()

		list, err := db.ListJobs(cmd.Context(), jobs.Status(listStatus), listLimit)
		if err != nil {
			return err
		}
		for _, j := range list {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%-14s\t%-10s\t%5.1f%%\t%s\n",
				j.ID, j.Kind, j.Status, j.Progress, j.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get [job id]",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		db, err := store.Open(cfg.Database, log.Logger)
		if err != nil {
			return err
		}
		defer db.Close()

		job, err := db.GetJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, job)
	},
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage stored projects",
}

var projectPutCmd = &cobra.Command{
	Use:   "put [timeline.json] [project id]",
	Short: "Store a timeline as a project so it can be exported",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		tl, err := timeline.Load(args[0])
		if err != nil {
			return err
		}
		p := &jobs.Project{
			ID:       uuid.NewString(),
			OwnerID:  projectOwner,
			Name:     projectName,
			Timeline: tl,
			Output:   timeline.DefaultOutput(),
		}
		if len(args) == 2 {
			p.ID = args[1]
		}
		if projectSubtitle != "" {
			data, err := os.ReadFile(projectSubtitle)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, &p.Subtitles); err != nil {
				return fmt.Errorf("failed to parse subtitles: %w", err)
			}
		}

		db, err := store.Open(cfg.Database, log.Logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}
		if err := db.SaveProject(cmd.Context(), p); err != nil {
			return err
		}
		log.Info().Str("project_id", p.ID).Int("tracks", len(tl.Tracks)).Msg("project stored")
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueOwner, "owner", "cli", "owner id recorded on the job")
	enqueueCmd.Flags().StringVar(&enqueueProject, "project", "", "project id")
	enqueueCmd.Flags().StringVar(&enqueueParams, "params", "{}", "job parameters as JSON")
	enqueueCmd.Flags().BoolVar(&enqueueWait, "wait", false, "poll until the job finishes")

	jobsListCmd.Flags().StringVar(&listStatus, "status", "", "only jobs in this status")
	jobsListCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum jobs to show")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)

	projectPutCmd.Flags().StringVar(&projectOwner, "owner", "cli", "owner id")
	projectPutCmd.Flags().StringVar(&projectName, "name", "", "project name")
	projectPutCmd.Flags().StringVar(&projectSubtitle, "subtitles", "", "subtitles JSON file")
	projectCmd.AddCommand(projectPutCmd)
}
