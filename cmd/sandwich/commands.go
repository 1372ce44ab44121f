package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sandwich/internal/domain"
	"sandwich/internal/events"
	"sandwich/internal/metrics"
	"sandwich/internal/server"
	"sandwich/internal/service"
	"sandwich/internal/taxonomy"
	"sandwich/internal/tui"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// history adapts a possibly nil bus to the server's event feed.
func history(bus *events.Bus) server.EventHistory {
	if bus == nil {
		return nil
	}
	return bus
}

func forageCmd(g *globalFlags) *cobra.Command {
	var (
		maxArtifacts int
		maxDuration  time.Duration
		patience     int
		serve        bool
		metricsAddr  string
	)

	cmd := &cobra.Command{
		Use:   "forage",
		Short: "Run the foraging loop until patience, limits or a signal stop it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			repo, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			if _, err := taxonomy.Install(ctx, repo); err != nil {
				return err
			}
			pub, bus, err := a.newEvents()
			if err != nil {
				return err
			}
			m := metrics.New()
			forager, err := a.newForager(ctx, repo, pub, m)
			if err != nil {
				return err
			}

			limits := a.limits()
			if cmd.Flags().Changed("max-artifacts") {
				limits.MaxArtifacts = maxArtifacts
			}
			if cmd.Flags().Changed("max-duration") {
				limits.MaxDuration = maxDuration
			}
			if cmd.Flags().Changed("patience") {
				limits.Patience = patience
			}
			if metricsAddr == "" {
				metricsAddr = a.cfg.Server.MetricsAddr
			}

			// Side servers stop once the run has finished.
			srvCtx, stopServers := context.WithCancel(context.Background())
			eg, srvCtx := errgroup.WithContext(srvCtx)
			if serve {
				srv := server.New(server.Config{Addr: a.cfg.Server.Addr, DebugMode: a.cfg.Server.Debug}, repo, history(bus), m, a.log)
				eg.Go(func() error { return srv.Run(srvCtx) })
			} else if metricsAddr != "" {
				eg.Go(func() error { return serveMetrics(srvCtx, metricsAddr, m) })
			}

			rep, runErr := forager.Run(ctx, limits)
			stopServers()
			if err := eg.Wait(); err != nil {
				a.log.WithError(err).Warn("server stopped with error")
			}
			printReport(cmd, rep)
			return runErr
		},
	}

	cmd.Flags().IntVar(&maxArtifacts, "max-artifacts", 0, "Stop after this many accepted artifacts (0 = no limit)")
	cmd.Flags().DurationVar(&maxDuration, "max-duration", 0, "Stop starting new cycles after this long (0 = no limit)")
	cmd.Flags().IntVarP(&patience, "patience", "p", 0, "Consecutive non-accepted cycles tolerated")
	cmd.Flags().BoolVar(&serve, "serve", false, "Serve the HTTP API while foraging")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printReport(cmd *cobra.Command, rep service.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %s after %d cycles in %s\n",
		rep.RunID, rep.Reason, rep.Cycles, rep.Ended.Sub(rep.Started).Round(time.Millisecond))
	fmt.Fprintf(out, "accepted %d, patience left %d\n", rep.Accepted, rep.Patience)
	for _, o := range domain.Outcomes() {
		if n := rep.Outcomes[o]; n > 0 {
			fmt.Fprintf(out, "  %-15s %d\n", o, n)
		}
	}
	if rep.Err != nil {
		fmt.Fprintf(out, "error: %v\n", rep.Err)
	}
}

func serveCmd(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only corpus API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			repo, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			m := metrics.New()
			if n, err := repo.CountArtifacts(ctx); err == nil {
				m.SetCorpusSize(n)
			}
			srv := server.New(server.Config{Addr: addr, DebugMode: a.cfg.Server.Debug}, repo, nil, m, a.log)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	return cmd
}

func browseCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse the corpus in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g)
			if err != nil {
				return err
			}
			defer a.close()

			repo, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			p := tea.NewProgram(tui.New(repo), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}

func seedCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install the seed structural types",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g)
			if err != nil {
				return err
			}
			defer a.close()

			repo, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			n, err := taxonomy.Install(cmd.Context(), repo)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %d structural types\n", n)
			return nil
		},
	}
}

func statsCmd(g *globalFlags) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate corpus statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			grouping := domain.Grouping(group)
			switch grouping {
			case domain.GroupByStructuralType, domain.GroupByOutcome, domain.GroupByDay, domain.GroupBySource:
			default:
				return fmt.Errorf("unknown group %q", group)
			}

			a, err := setup(g)
			if err != nil {
				return err
			}
			defer a.close()

			repo, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := repo.Stats(cmd.Context(), grouping)
			if err != nil {
				return err
			}
			if grouping != domain.GroupByDay {
				sort.SliceStable(rows, func(i, j int) bool { return rows[i].Count > rows[j].Count })
			}
			fmt.Fprintln(cmd.OutOrStdout(), statsTable(group, rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&group, "group", "g", string(domain.GroupByStructuralType),
		"Grouping: structural_type, outcome, day or source")
	return cmd
}

func statsTable(group string, rows []domain.StatRow) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(group, "count", "aggregate", "compat", "contain", "specific", "nontrivial", "novelty")
	for _, r := range rows {
		s := r.MeanScores
		t.Row(r.Key, strconv.Itoa(r.Count), f(r.MeanAggregate),
			f(s.BoundCompatibility), f(s.Containment), f(s.Specificity), f(s.NonTriviality), f(s.Novelty))
	}
	return t.String()
}
