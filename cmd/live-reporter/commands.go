package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/hochfrequenz/live-reporter/internal/config"
	"github.com/hochfrequenz/live-reporter/internal/fixture"
	"github.com/hochfrequenz/live-reporter/internal/follow"
	"github.com/hochfrequenz/live-reporter/internal/hostlink"
	"github.com/hochfrequenz/live-reporter/internal/journal"
	"github.com/hochfrequenz/live-reporter/internal/notify"
	"github.com/hochfrequenz/live-reporter/internal/protocol"
	"github.com/hochfrequenz/live-reporter/internal/reporter"
	"github.com/hochfrequenz/live-reporter/internal/schedule"
	"github.com/hochfrequenz/live-reporter/tui"
	"github.com/hochfrequenz/live-reporter/web/api"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	servePort     int
	serveFollow   string
	serveJournal  bool
	tuiFollow     string
	tuiFixture    string
	tuiLogFile    string
	replayJournal string
	replayConnect string
)

func init() {
	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept host runners and serve the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveFollow, "follow", "", "also ingest envelopes appended to this JSONL file")
	serveCmd.Flags().BoolVar(&serveJournal, "journal", false, "record envelopes to the journal (overrides config)")
	rootCmd.AddCommand(serveCmd)

	// tui command
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Render a run in the terminal",
		RunE:  runTUI,
	}
	tuiCmd.Flags().StringVar(&tuiFollow, "follow", "", "follow envelopes appended to this JSONL file")
	tuiCmd.Flags().StringVar(&tuiFixture, "fixture", "", "load a run from a fixture file")
	tuiCmd.Flags().StringVar(&tuiLogFile, "log", "", "write logs to this file")
	rootCmd.AddCommand(tuiCmd)

	// replay command
	replayCmd := &cobra.Command{
		Use:   "replay [FILE]",
		Short: "Replay a recorded run and print the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReplay,
	}
	replayCmd.Flags().StringVar(&replayJournal, "journal", "", "replay this run id from the journal")
	replayCmd.Flags().StringVar(&replayConnect, "connect", "", "stream to a running server instead, e.g. ws://127.0.0.1:8080/ws/host")
	rootCmd.AddCommand(replayCmd)

	// journal command
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and prune the event journal",
	}
	journalCmd.AddCommand(&cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE:  runJournalRuns,
	})
	journalCmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete entries older than the retention",
		RunE:  runJournalPrune,
	})
	rootCmd.AddCommand(journalCmd)

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("live-reporter", version)
		},
	})
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Web.Port = servePort
	}
	if serveJournal {
		cfg.Journal.Enabled = true
	}

	ctx, stop := signalContext()
	defer stop()

	loop := reporter.NewLoop(reporter.OptionsFromConfig(cfg.Reporter))
	session := loop.Session()

	hosts := hostlink.NewServer(hostlink.ServerConfig{
		HeartbeatInterval: cfg.HostLink.HeartbeatInterval.Duration,
		HeartbeatTimeout:  cfg.HostLink.HeartbeatTimeout.Duration,
	}, loop)
	defer hosts.CloseAll()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := api.NewServer(loop, addr)
	server.Mount(cfg.HostLink.Path, hosts.HandleWebSocket, hosts.Registry())

	session.AddOutbound(hosts)
	session.AddOutbound(server)
	session.Subscribe(server.PublishView)
	if cfg.Notifications.Desktop || cfg.Notifications.SlackWebhook != "" {
		watcher := notify.NewRunWatcher(notify.NewMultiNotifier(
			notify.NewDesktopNotifier(cfg.Notifications.Desktop),
			notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
		))
		session.Subscribe(watcher.Observe)
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Journal.Enabled {
		store, err := journal.New(cfg.Journal.DatabasePath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer store.Close()
		session.SetRecorder(store)

		pruner, err := journal.NewPruner(store, cfg.Journal.PruneCron, cfg.Journal.Retention.Duration)
		if err != nil {
			return err
		}
		g.Go(func() error { return pruner.Run(ctx) })
		log.Printf("[journal] Recording to %s", cfg.Journal.DatabasePath)
	}

	if serveFollow != "" {
		tailer, err := startFollow(ctx, serveFollow, cfg, loop)
		if err != nil {
			return err
		}
		defer tailer.Stop()
	}

	g.Go(func() error { return loop.Run(ctx) })
	g.Go(func() error { return hosts.HeartbeatLoop(ctx) })
	g.Go(func() error { return server.Start(ctx) })

	fmt.Printf("Serving at http://%s (hosts connect to ws://%s%s)\n", addr, addr, cfg.HostLink.Path)
	err = g.Wait()
	loop.Close()
	return err
}

func startFollow(ctx context.Context, path string, cfg *config.Config, loop *reporter.Loop) (*follow.Tailer, error) {
	tailer, err := follow.New(path, func(env protocol.EnvelopeRaw) {
		if err := loop.Submit(ctx, env); err != nil {
			log.Printf("[follow] Dropped %s: %v", env.Type, err)
		}
	})
	if err != nil {
		return nil, err
	}
	tailer.SetDebounce(cfg.Follow.Debounce.Duration)
	if err := tailer.Start(ctx); err != nil {
		return nil, err
	}
	return tailer, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Log lines would corrupt the alt screen
	if tuiLogFile != "" {
		f, err := tea.LogToFile(tuiLogFile, "live-reporter")
		if err != nil {
			return err
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	ctx, stop := signalContext()
	defer stop()

	loop := reporter.NewLoop(reporter.OptionsFromConfig(cfg.Reporter))
	views := make(chan *reporter.View, 1)
	loop.Session().Subscribe(func(v *reporter.View) {
		// Keep only the newest view
		select {
		case <-views:
		default:
		}
		views <- v
	})
	go loop.Run(ctx)
	defer loop.Close()

	if tuiFixture != "" {
		envs, err := fixture.Load(tuiFixture)
		if err != nil {
			return err
		}
		for _, env := range envs {
			if err := loop.Submit(ctx, env); err != nil {
				return err
			}
		}
	}
	if tuiFollow != "" {
		tailer, err := startFollow(ctx, tuiFollow, cfg, loop)
		if err != nil {
			return err
		}
		defer tailer.Stop()
	}

	model := tui.NewModel(tui.ModelConfig{Source: loop, Views: views})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	envs, err := replayEnvelopes(args)
	if err != nil {
		return err
	}

	if replayConnect != "" {
		ctx, stop := signalContext()
		defer stop()

		client, err := hostlink.NewClient(hostlink.ClientConfig{ServerURL: replayConnect})
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.StreamWithReconnect(ctx, envs); err != nil {
			return err
		}
		fmt.Printf("Streamed %d envelopes to %s\n", len(envs), replayConnect)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	session := reporter.New(reporter.OptionsFromConfig(cfg.Reporter), schedule.NewManual(time.Now()))
	for _, env := range envs {
		session.Handle(env)
	}
	printView(os.Stdout, session.View())
	return nil
}

func replayEnvelopes(args []string) ([]protocol.EnvelopeRaw, error) {
	if replayJournal != "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		store, err := journal.New(cfg.Journal.DatabasePath)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		entries, err := store.Envelopes(replayJournal)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("no envelopes recorded for run %q", replayJournal)
		}
		envs := make([]protocol.EnvelopeRaw, len(entries))
		for i, e := range entries {
			envs[i] = e.Envelope
		}
		return envs, nil
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("need a FILE or --journal RUN_ID")
	}
	return fixture.Load(args[0])
}

func printView(out io.Writer, v *reporter.View) {
	s := v.Summary
	if v.Run.ID != "" {
		fmt.Fprintf(out, "Run %s\n", v.Run.ID)
	}
	fmt.Fprintf(out, "Records: %d (%d events), passed %d, failed %d, warned %d, pending %d\n\n",
		s.Total, s.Events, s.Passed, s.Failed, s.Warned, s.Pending)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTATE\tCOMMAND\tMESSAGE")
	for _, r := range v.Rows() {
		n := r.Node
		number := ""
		if n.Number > 0 {
			number = fmt.Sprint(n.Number)
		}
		name := n.Method
		if name == "" {
			name = n.Name
		}
		indent := fmt.Sprintf("%*s", r.Depth*2, "")
		msg := n.Message
		if n.DuplicateCount > 1 {
			msg = fmt.Sprintf("%s (x%d)", msg, n.DuplicateCount)
		}
		if n.HiddenCount > 0 {
			msg = fmt.Sprintf("%s [+%d hidden]", msg, n.HiddenCount)
		}
		fmt.Fprintf(w, "%s\t%s\t%s%s\t%s\n", number, n.State, indent, name, msg)
	}
	w.Flush()

	if len(v.Diagnostics) > 0 {
		fmt.Fprintf(out, "\n%s:\n", english.Plural(len(v.Diagnostics), "diagnostic", ""))
		for _, d := range v.Diagnostics {
			fmt.Fprintf(out, "  %s\n", d)
		}
	}
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := journal.New(cfg.Journal.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tENVELOPES\tFIRST\tLAST")
	for _, r := range runs {
		runID := r.RunID
		if runID == "" {
			runID = "(none)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", runID, humanize.Comma(int64(r.Envelopes)),
			r.First.Format(time.RFC3339), humanize.Time(r.Last))
	}
	return w.Flush()
}

func runJournalPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := journal.New(cfg.Journal.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	pruner, err := journal.NewPruner(store, cfg.Journal.PruneCron, cfg.Journal.Retention.Duration)
	if err != nil {
		return err
	}
	n, err := pruner.PruneNow()
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %s entries older than %s\n", humanize.Comma(n), cfg.Journal.Retention.Duration)
	return nil
}
