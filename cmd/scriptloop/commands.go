package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	runner "go-scriptloop/internal/agents/runner/actor"
	"go-scriptloop/internal/api"
	"go-scriptloop/internal/loop"
	"go-scriptloop/internal/repl"
	"go-scriptloop/internal/store"
	"go-scriptloop/pkg/models"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scriptloop",
		Short: "Generate, run and judge Python or R scripts until one does the job",
		Long: `scriptloop asks a language model for a script, runs it, asks the model whether
the output satisfies the task and retries with the feedback until it does or
the attempt budget runs out. Runs that run out of attempts are checkpointed and
can be resumed with a larger budget.`,
		SilenceUsage: true,
		RunE:         runRepl,
	}
	root.PersistentFlags().String("config", "scriptloop.yaml", "path to the YAML config file")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("debug", false, "log prompts, reasoning, code and results")

	root.AddCommand(
		&cobra.Command{
			Use:   "repl",
			Short: "Start the interactive shell (default)",
			RunE:  runRepl,
		},
		&cobra.Command{
			Use:   "resume",
			Short: "Resume the saved session without the shell",
			RunE:  runResume,
		},
		newExamplesCmd(),
		newServeCmd(),
	)
	return root
}

func runRepl(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := setupApp(cmd, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	shell := repl.New(repl.Deps{
		Loop:     app.controller,
		Reasoner: app.reasoner,
		Sessions: app.sessions,
		Examples: app.examples,
	}, cmd.InOrStdin(), cmd.OutOrStdout())
	return shell.Run(ctx)
}

func runResume(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := setupApp(cmd, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	session, ok := app.sessions.Load()
	if !ok {
		return fmt.Errorf("no saved session in %s", app.sessions.Path())
	}
	outcome, err := app.controller.Resume(ctx, session)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outcome.Success() {
		fmt.Fprintf(out, "Success after %d attempt(s). Script saved to %s\n", outcome.Iterations, outcome.ScriptPath)
		return nil
	}
	fmt.Fprintf(out, "Failed after %d attempts: %s\n", outcome.Iterations, outcome.Summary)
	return nil
}

func newExamplesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examples [task]",
		Short: "List stored examples, or the ones relevant to a task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			examples := store.NewExampleStore(cfg.ExamplesFile).Load()
			if len(args) == 1 {
				lang, _ := cmd.Flags().GetString("language")
				examples = store.Relevant(examples, args[0], models.ParseLanguage(lang), store.DefaultRelevantLimit)
			}
			out := cmd.OutOrStdout()
			if len(examples) == 0 {
				fmt.Fprintln(out, "No examples.")
				return nil
			}
			for i, ex := range examples {
				fmt.Fprintf(out, "%d. [%s] %s\n", i+1, ex.Language, ex.Task)
			}
			return nil
		},
	}
	cmd.Flags().String("language", string(models.Python), "language to match when a task is given")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept runs over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runs := api.NewRegistry()
			app, err := setupApp(cmd, prometheus.DefaultRegisterer, loop.WithObserver(runs.Progress))
			if err != nil {
				return err
			}
			addr := app.cfg.Server.Addr
			if flag, _ := cmd.Flags().GetString("addr"); flag != "" {
				addr = flag
			}

			system := actor.NewActorSystem()
			pid := system.Root.Spawn(actor.PropsFromProducer(runner.New(ctx, app.controller, app.examples, runs)))
			server := api.New(system.Root, pid, runs, app.sessions, app.examples, addr)

			errs := make(chan error, 1)
			go func() {
				errs <- server.Start()
			}()

			select {
			case err := <-errs:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}
			stop()
			log.Info().Msg("shutting down gracefully")

			shutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := server.Stop(shutdown); err != nil {
				log.Error().Err(err).Msg("server forced to shutdown")
			}
			system.Root.Stop(pid)

			log.Info().Msg("server exiting")
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address, overrides server.addr")
	return cmd
}
