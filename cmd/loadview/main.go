package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"code.cloudfoundry.org/bytefmt"

	"github.com/loadview/loadview/internal/config"
	"github.com/loadview/loadview/internal/render"
	"github.com/loadview/loadview/internal/result"
	"github.com/loadview/loadview/internal/server"
	"github.com/loadview/loadview/internal/store"
	"github.com/loadview/loadview/internal/summary"
	"github.com/loadview/loadview/internal/util"
	"github.com/loadview/loadview/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "plot":
			cfg, args := parseCommand("plot", os.Args[2:])
			if len(args) != 1 {
				fatalf("usage: loadview plot [--config <path>] <run-file>")
			}
			plotRun(cfg, args[0])
			return
		case "summary":
			cfg, args := parseCommand("summary", os.Args[2:])
			if len(args) != 1 {
				fatalf("usage: loadview summary [--config <path>] <run-file>")
			}
			printSummary(cfg, args[0])
			return
		case "import":
			cfg, args := parseCommand("import", os.Args[2:])
			if len(args) != 1 {
				fatalf("usage: loadview import [--config <path>] <run-file>")
			}
			importRun(cfg, args[0])
			return
		case "list":
			cfg, _ := parseCommand("list", os.Args[2:])
			listRuns(cfg)
			return
		case "delete":
			cfg, args := parseCommand("delete", os.Args[2:])
			if len(args) != 1 {
				fatalf("usage: loadview delete [--config <path>] <run-id>")
			}
			deleteRun(cfg, args[0])
			return
		case "serve":
			cfg, _ := parseCommand("serve", os.Args[2:])
			serve(cfg)
			return
		case "help", "-h", "--help":
			printHelp()
			return
		case "version", "-v", "--version":
			fmt.Println(version.Version)
			return
		}
	}
	printHelp()
	os.Exit(2)
}

// parseCommand parses the shared --config flag of a subcommand and
// returns the loaded config plus the remaining positional arguments.
func parseCommand(name string, args []string) (*config.Config, []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)
	if *configPath == "" {
		return config.Default(), fs.Args()
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fatalf("config invalid: %v", err)
	}
	return cfg, fs.Args()
}

func plotRun(cfg *config.Config, path string) {
	run, err := result.LoadRunFile(path)
	if err != nil {
		fatalf("load run: %v", err)
	}
	base := strings.TrimSuffix(path, ".json")
	written, err := render.New(cfg.Plot).WriteCharts(result.Derive(run), base)
	if err != nil {
		fatalf("render: %v", err)
	}
	for _, file := range written {
		fmt.Println(file)
	}
}

func printSummary(cfg *config.Config, path string) {
	run, err := result.LoadRunFile(path)
	if err != nil {
		fatalf("load run: %v", err)
	}
	sum := summary.Summarize(result.Derive(run))

	fmt.Printf("%s, %d streams over %s\n", run.GeneratedBy, run.Streams(), run.Duration)
	printThroughput("download", sum.Download)
	printThroughput("upload", sum.Upload)
	printThroughput("both", sum.Both)
	printLatency("latency", sum.Latency)
	if sum.PeerLatency != nil {
		printLatency("peer latency", *sum.PeerLatency)
	}
}

func printThroughput(name string, stats *summary.ThroughputStats) {
	if stats == nil {
		return
	}
	fmt.Printf("%s: avg %.2f Mbps, trimmed mean %.2f Mbps, peak %.2f Mbps, %s transferred\n",
		name, stats.AvgMbps, stats.TrimmedMeanMbps, stats.PeakMbps,
		bytefmt.ByteSize(uint64(stats.Bytes)))
}

func printLatency(name string, stats summary.LatencyStats) {
	if stats.Samples == 0 {
		fmt.Printf("%s: no samples (%d lost)\n", name, stats.Lost)
		return
	}
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	fmt.Printf("%s: mean %.1f ms, p50 %.1f ms, p99 %.1f ms, jitter %.1f ms (%d samples, %d lost)\n",
		name, ms(stats.Mean), ms(stats.P50), ms(stats.P99), ms(stats.Jitter),
		stats.Samples, stats.Lost)
}

func importRun(cfg *config.Config, path string) {
	run, err := result.LoadRunFile(path)
	if err != nil {
		fatalf("load run: %v", err)
	}
	st := openStore(cfg)
	defer st.Close()

	id, err := st.Put(run, summary.Summarize(result.Derive(run)))
	if err != nil {
		fatalf("import: %v", err)
	}
	fmt.Println(id)
}

func listRuns(cfg *config.Config) {
	st := openStore(cfg)
	defer st.Close()

	infos, err := st.List()
	if err != nil {
		fatalf("list: %v", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tIMPORTED\tDURATION\tSTREAMS\tDOWN\tUP\tLATENCY\tLOST")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%d\n",
			info.ID,
			info.ImportedAt.Format(time.DateTime),
			info.Duration,
			info.Streams,
			mbpsOrDash(info.DownloadMbps),
			mbpsOrDash(info.UploadMbps),
			msOrDash(info.LatencyMs),
			info.LossCount)
	}
	w.Flush()
}

func mbpsOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f Mbps", *v)
}

func msOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f ms", *v)
}

func deleteRun(cfg *config.Config, id string) {
	st := openStore(cfg)
	defer st.Close()

	if err := st.Delete(id); err != nil {
		fatalf("delete: %v", err)
	}
}

func serve(cfg *config.Config) {
	logger := util.NewLoggerAt(util.ParseLevel(cfg.Log.Level))
	st := openStore(cfg)
	defer st.Close()

	srv := server.New(cfg.Server, st, render.New(cfg.Plot), logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-sigCh:
		logger.Info("shutdown requested")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
	}
}

func openStore(cfg *config.Config) *store.Store {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		fatalf("open store: %v", err)
	}
	return st
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printHelp() {
	fmt.Print(`loadview - derive charts and summaries from probe run files

Usage:
  loadview plot [--config <path>] <run-file>     Render charts next to the run file
  loadview summary [--config <path>] <run-file>  Print a throughput and latency summary
  loadview import [--config <path>] <run-file>   Archive a run, print its id
  loadview list [--config <path>]                List archived runs
  loadview delete [--config <path>] <run-id>     Remove an archived run
  loadview serve [--config <path>]               Serve archived runs over HTTP
  loadview help                                  Show this help
  loadview version                               Print version
`)
}
