package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mira/internal/chat"
	"mira/internal/config"
	"mira/internal/daemon"
	"mira/internal/logging"
	"mira/internal/rules"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitConfirm  = 2
)

var (
	flagConfig       string
	flagHealthCheck  bool
	flagPlan         string
	flagSyncLiveOnce bool
)

func main() {
	root := &cobra.Command{
		Use:   "mira",
		Short: "Local-first agent that turns course email into a daily plan",
		Long: `mira watches your mail accounts, extracts deadlines and tasks,
and keeps a stress-aware schedule on its managed calendar. Run it with no
flags to start the daemon with a local chat prompt on stdin.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().StringVar(&flagConfig, "config", "", "path to config.yaml (default ~/.mira/config.yaml)")
	root.Flags().BoolVar(&flagHealthCheck, "health-check", false, "verify the database and exit")
	root.Flags().StringVar(&flagPlan, "plan", "", "run one chat command and exit")
	root.Flags().BoolVar(&flagSyncLiveOnce, "sync-live-once", false, "run one sync pass against live mailboxes and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("mira: ")+err.Error())
		os.Exit(exitFailed)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if err := logging.Configure(cfg.LogDir, logging.ParseLevel(cfg.LogLevel)); err != nil {
		return err
	}
	defer func() { _ = logging.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := daemon.Options{}
	interactive := !flagHealthCheck && flagPlan == "" && !flagSyncLiveOnce
	if interactive {
		opts.Transport = chat.NewStdioTransport(os.Stdin, os.Stdout)
	}

	d, err := daemon.New(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	switch {
	case flagHealthCheck:
		if err := d.HealthCheck(ctx); err != nil {
			return err
		}
		fmt.Println(green("ok"))
		return nil

	case flagPlan != "":
		resp, err := d.HandleCommand(ctx, flagPlan)
		if err != nil {
			return err
		}
		switch resp.Decision {
		case rules.Approved:
			fmt.Println(green(resp.Text))
		case rules.RequiresConfirmation:
			fmt.Println(yellow(resp.Text))
			os.Exit(exitConfirm)
		default:
			fmt.Println(red(resp.Text))
			os.Exit(exitFailed)
		}
		return nil

	case flagSyncLiveOnce:
		res, err := d.SyncOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("fetched %d, stored %d\n", res.Fetched, res.Stored)
		for _, failure := range res.Failures {
			fmt.Println(yellow(failure.AccountID) + ": " + failure.Reason)
		}
		return nil
	}

	fmt.Println(gray("mira daemon starting; type /help for commands"))
	return d.Run(ctx)
}
