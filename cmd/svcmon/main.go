package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createSweepCommand(globalFlags),
		createServeCommand(globalFlags),
		createStatusCommand(globalFlags),
		createCheckCommand(globalFlags),
		createCronCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "svcmon",
		Short: "Service liveness monitor with automatic restart",
		Long: `svcmon checks that configured services are running, restarts the ones
that are not through the service manager, and suppresses services that
stay down for a cooldown window.

Examples:
  svcmon sweep                      # one pass, meant for cron
  svcmon serve                      # long-lived loop with status API
  svcmon status                     # show suppressed processes
  svcmon check --process=apache2 --pidfile=/var/run/apache2.pid`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (default "+defaultConfigHint+")")
	return root
}

func createSweepCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &SweepFlags{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one supervision sweep",
		Long: `Run exactly one sweep over every configured service and exit.
A sweep already holding the lock makes this command exit non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return runSweep(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print the sweep report as JSON")
	addAPIFlags(cmd, &f.APIFlags, "ask the daemon at this URL for a sweep instead (e.g. http://host:8080/api)")
	return cmd
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the supervision loop",
		Long: `Run sweeps on the configured interval until SIGINT or SIGTERM, with the
optional metrics endpoint and status API. Changes to the config file or the
services INI file are picked up without a restart.

Examples:
  svcmon serve
  svcmon serve /etc/svcmon/svcmon.toml
  svcmon serve --daemonize --pidfile=/var/run/svcmon.pid --logfile=/var/log/svcmon.out`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				f.ConfigPath = args[0]
			}
			return runServe(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&f.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&f.LogFile, "logfile", "", "redirect daemon stdout/stderr to file")
	return cmd
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show suppressed processes and their remaining cooldown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return runStatus(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print as JSON")
	addAPIFlags(cmd, &f.APIFlags, "read cooldown from the daemon at this URL (e.g. http://host:8080/api)")
	return cmd
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags, usage string) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", usage)
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&f.APIInsecure, "api-insecure", false, "skip TLS verification")
}

func createCheckCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &CheckFlags{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the liveness check once",
		Long: `Report whether a process is running, using its pidfile when given.
Nothing is restarted and the cooldown record is not touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return runCheck(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Process, "process", "", "process name (required)")
	cmd.Flags().StringVar(&f.PIDFile, "pidfile", "", "pidfile of the process")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print as JSON")
	if err := cmd.MarkFlagRequired("process"); err != nil {
		panic(err)
	}
	return cmd
}

func createCronCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &CronFlags{}
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Print a crontab entry that runs svcmon sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return runCron(cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Binary, "binary", "", "svcmon path in the entry (default: this executable)")
	cmd.Flags().StringVar(&f.Schedule, "schedule", defaultCronSchedule, "cron schedule expression")
	return cmd
}
