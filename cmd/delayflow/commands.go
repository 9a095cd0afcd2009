package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"delayflow/internal/api"
	"delayflow/internal/config"
	"delayflow/internal/domain"
	"delayflow/internal/worker"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "delayflow",
		Short:         "Delayed task scheduler",
		Long:          "Record tasks that become due after a fixed delay and run them once due.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "Processing pending tasks...")
			return runProcess(cmd, a)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", config.DefaultConfigFile, "path to the JSON config file")
	flags.String("store", "", "task store: json or sqlite")
	flags.String("tasks-file", "", "JSON task file (json store)")
	flags.String("db", "", "SQLite DB path (sqlite store)")
	flags.String("handler", "", "handler for tasks that do not name one")
	flags.String("cron", "", "cron spec for watch and serve passes, e.g. \"@every 5m\"")
	for key, flag := range map[string]string{
		"store":      "store",
		"tasks_file": "tasks-file",
		"db_path":    "db",
		"handler":    "handler",
		"cron":       "cron",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		newAddCmd(a),
		newListCmd(a),
		newProcessCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
	)
	return root
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> [data]",
		Short: "Add a task due after the configured delay",
		Long: `Add a task due after the configured delay.

data is a JSON object passed to the handler. Anything that is not a JSON
object is stored as {"description": data}.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data map[string]any
			if len(args) == 2 {
				data = parseData(args[1])
			}
			t, err := a.svc.Add(cmd.Context(), args[0], data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task '%s' added. Scheduled for: %s\n", t.Name, domain.FormatTime(t.ScheduledFor))
			return nil
		},
	}
}

func parseData(raw string) map[string]any {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil || data == nil {
		return map[string]any{"description": raw}
	}
	return data
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [status]",
		Short: "List tasks, optionally only those with the given status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := a.svc.List(cmd.Context(), "")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(all) == 0 {
				fmt.Fprintln(out, "No tasks found.")
				return nil
			}

			shown := all
			if len(args) == 1 {
				if shown, err = a.svc.List(cmd.Context(), domain.Status(args[0])); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Tasks (showing %d of %d)\n", len(shown), len(all))
			renderTasks(out, shown)
			return nil
		},
	}
}

func renderTasks(w io.Writer, tasks []domain.Task) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Name", "Status", "Created", "Scheduled For", "Completed"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for i, t := range tasks {
		completed := ""
		if t.CompletedAt != nil {
			completed = domain.FormatTime(*t.CompletedAt)
		}
		table.Append([]string{
			fmt.Sprint(i + 1),
			t.Name,
			string(t.Status),
			domain.FormatTime(t.CreatedAt),
			domain.FormatTime(t.ScheduledFor),
			completed,
		})
	}
	table.Render()
}

func newProcessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Run every task that is due and prune old completed tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, a)
		},
	}
}

func runProcess(cmd *cobra.Command, a *app) error {
	res, err := a.svc.Process(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if res.Total == 0 {
		fmt.Fprintln(out, "No tasks to process.")
		return nil
	}
	for _, w := range res.Waiting {
		fmt.Fprintf(out, "Task '%s' scheduled in %s\n", w.Name, w.Remaining.Round(time.Second))
	}
	fmt.Fprintf(out, "Processed %d task(s).\n", res.Executed)
	if res.Failed > 0 {
		fmt.Fprintf(out, "Failed %d task(s); they stay pending.\n", res.Failed)
	}
	if res.Removed > 0 {
		fmt.Fprintf(out, "Cleaned up %d old task(s).\n", res.Removed)
	}
	return nil
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run passes on the configured cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := worker.NewRunner(a.svc, a.cfg.Cron, a.logger)
			if err != nil {
				return err
			}
			return r.Run(ctx)
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run passes on the cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := worker.NewRunner(a.svc, a.cfg.Cron, a.logger)
			if err != nil {
				return err
			}
			runDone := make(chan error, 1)
			go func() { runDone <- r.Run(ctx) }()

			srv := &http.Server{Addr: a.cfg.Addr, Handler: api.NewServer(a.svc, a.logger)}
			srvErr := make(chan error, 1)
			go func() {
				a.logger.Info().Str("addr", a.cfg.Addr).Msg("HTTP server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					srvErr <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err = <-srvErr:
				stop()
			}
			a.logger.Info().Msg("shutting down")
			ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelTimeout()
			_ = srv.Shutdown(ctxTimeout)
			<-runDone
			return errors.Wrap(err, "http server")
		},
	}
	cmd.Flags().String("addr", "", "HTTP bind address")
	_ = a.v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}
