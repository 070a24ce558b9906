package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/usecase"
)

type pipelineFunc func(context.Context, *session) (usecase.RunResult, error)

func newPipelineCommand(opts *rootOptions, use, short string, run pipelineFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			result, runErr := run(cmd.Context(), s)
			printRunResult(cmd.OutOrStdout(), result)
			return runErr
		},
	}
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	return newPipelineCommand(opts, "run", "Run collection, model survey and alerting once",
		func(ctx context.Context, s *session) (usecase.RunResult, error) { return s.app.Run(ctx) })
}

func newCollectCommand(opts *rootOptions) *cobra.Command {
	return newPipelineCommand(opts, "collect", "Collect resources from every configured source",
		func(ctx context.Context, s *session) (usecase.RunResult, error) { return s.app.Collect(ctx) })
}

func newSurveyCommand(opts *rootOptions) *cobra.Command {
	return newPipelineCommand(opts, "survey", "Record one observation per tracked model",
		func(ctx context.Context, s *session) (usecase.RunResult, error) { return s.app.Survey(ctx) })
}

func newScheduleCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the full cycle on the configured cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			return s.app.Serve(cmd.Context())
		},
	}
}

func newAlertsCommand(opts *rootOptions) *cobra.Command {
	alerts := &cobra.Command{
		Use:   "alerts",
		Short: "Evaluate, list and resolve alerts",
	}

	alerts.AddCommand(newPipelineCommand(opts, "evaluate", "Evaluate alert rules and send notifications",
		func(ctx context.Context, s *session) (usecase.RunResult, error) { return s.app.EvaluateAlerts(ctx) }))

	var (
		status string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored alerts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch domain.AlertStatus(status) {
			case "", domain.AlertActive, domain.AlertResolved:
			default:
				return fmt.Errorf("unknown status %q", status)
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.app.Alerts(cmd.Context(), domain.AlertStatus(status), limit)
			if err != nil {
				return err
			}
			printAlerts(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status (active, resolved)")
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows (0 for all)")

	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark an alert as resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid alert id %q", args[0])
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.app.ResolveAlert(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "alert %d resolved\n", id)
			return nil
		},
	}

	alerts.AddCommand(list, resolve)
	return alerts
}

func newResourcesCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "List the most recently collected resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			list, err := s.app.Resources(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printResources(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows (0 for all)")
	return cmd
}

func newModelsCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List recorded model observations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			list, err := s.app.Observations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printObservations(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows (0 for all)")
	return cmd
}

func printRunResult(w io.Writer, r usecase.RunResult) {
	fmt.Fprintf(w, "run %s: %s in %s\n", r.RunID, r.Status, r.Elapsed.Round(time.Millisecond))
	if r.FailedStage != "" {
		fmt.Fprintf(w, "  aborted at %s: %s\n", r.FailedStage, r.Error)
	}

	if len(r.Sources) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  SOURCE\tFETCHED\tNEW\tDUPLICATE\tFAILED\tERROR")
		for _, s := range r.Sources {
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\t%s\n", s.Source, s.Fetched, s.Inserted, s.Duplicates, s.Failed, s.FetchError)
		}
		_ = tw.Flush()
		fmt.Fprintf(w, "  collected: %d\n", r.Collected)
	}
	if r.Survey.Recorded > 0 || len(r.Survey.Failed) > 0 {
		fmt.Fprintf(w, "  models recorded: %d, failed: %d\n", r.Survey.Recorded, len(r.Survey.Failed))
	}
	for _, a := range r.Alerts {
		fmt.Fprintf(w, "  alert [%s] %s\n", a.Type, a.Message)
	}
	if r.NotifyError != "" {
		fmt.Fprintf(w, "  notification failed: %s\n", r.NotifyError)
	}
}

func printResources(w io.Writer, list []domain.Resource) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No resources found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOLLECTED\tSOURCE\tTYPE\tTITLE\tURL")
	for _, r := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CollectedAt.Local().Format("2006-01-02 15:04"), r.Source, r.ResourceType, r.Title, r.URL)
	}
	_ = tw.Flush()
}

func printObservations(w io.Writer, list []domain.ModelObservation) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No observations found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECKED\tMODEL\tVERSION\tPERFORMANCE\tCHANGES")
	for _, o := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			o.CheckedAt.Local().Format("2006-01-02 15:04"), o.ModelName, o.Version, o.PerformanceSummary, o.ChangesSummary)
	}
	_ = tw.Flush()
}

func printAlerts(w io.Writer, list []domain.Alert) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No alerts found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tTYPE\tMESSAGE")
	for _, a := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			a.ID, a.CreatedAt.Local().Format("2006-01-02 15:04"), a.Status, a.Type, a.Message)
	}
	_ = tw.Flush()
}
