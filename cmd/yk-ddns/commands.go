package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ddns/internal/server"
	"github.com/yuriy-kovalchuk/yk-ddns/internal/task"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Reconcile records until interrupted (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts)
		},
	}
}

func runDaemon(cmd *cobra.Command, opts *rootOptions) error {
	log := ctrl.Log.WithName("setup")
	log.Info("starting yk-ddns", "version", Version)

	cfg, err := loadConfig(opts, log)
	if err != nil {
		return err
	}
	tasks, err := buildTasks(cfg, ctrl.Log)
	if err != nil {
		return err
	}
	sched := newScheduler(tasks, ctrl.Log)

	ctx, cancel := context.WithCancel(ctrl.SetupSignalHandler())
	defer cancel()

	srvDone := make(chan struct{})
	if cfg.Server.Address != "" {
		srv := server.New(ctrl.Log.WithName("server"), cfg.Server.Address, map[string]healthz.Checker{
			"tasks": sched.Check,
		})
		go func() {
			defer close(srvDone)
			if err := srv.Start(ctx); err != nil {
				log.Error(err, "health and metrics server failed")
			}
		}()
	} else {
		close(srvDone)
	}

	err = sched.Run(ctx)
	cancel()
	<-srvDone
	if err != nil {
		return fmt.Errorf("all tasks stopped: %w", err)
	}
	log.Info("shut down")
	return nil
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one reconciliation cycle per target and print the records",
		Long: `Run a single cycle for every configured target, exactly as the daemon
would, then print the local and remote state of every record. Providers
are written to when the records are out of date.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := ctrl.Log.WithName("setup")
			cfg, err := loadConfig(opts, log)
			if err != nil {
				return err
			}
			tasks, err := buildTasks(cfg, ctrl.Log)
			if err != nil {
				return err
			}

			cycleErr := newScheduler(tasks, ctrl.Log).Once(cmd.Context())
			printBoards(cmd, tasks)
			if cycleErr != nil {
				return fmt.Errorf("cycle failed: %w", cycleErr)
			}
			return nil
		},
	}
}

func printBoards(cmd *cobra.Command, tasks []*task.Task) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TARGET\tNAME\tTYPE\tSOURCE\tLOCAL\tREMOTE")
	fmt.Fprintln(w, "------\t----\t----\t------\t-----\t------")
	for _, t := range tasks {
		for _, b := range t.Snapshot() {
			remote := "-"
			if b.Remote != nil {
				remote = b.Remote.Value
			}
			local := b.Local.Value
			if local == "" {
				local = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.Name(),
				dns.JoinHostname(b.Config.Name, b.Local.Domain),
				b.Config.Type,
				b.Config.Source,
				local,
				remote,
			)
		}
	}
	w.Flush()
}

func newProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the supported DNS providers",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range dns.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
