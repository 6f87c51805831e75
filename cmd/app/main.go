package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"SignalDesk/internal/di"
	"SignalDesk/internal/usecase"
	"SignalDesk/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path, empty for built-in defaults")
	once := flag.Bool("once", false, "evaluate every instrument once, print the results and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if *once {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if failed := printResults(os.Stdout, app.RunOnce(ctx)); failed {
			os.Exit(1)
		}
		return
	}

	log.Printf("env=%s instruments=%d interval=%s", cfg.Environment, len(cfg.Instruments), cfg.Monitor.Interval)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

// printResults writes one line per instrument and reports whether every
// instrument failed.
func printResults(w io.Writer, results []usecase.InstrumentResult) bool {
	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			fmt.Fprintf(w, "%-10s ERROR %v\n", r.Instrument.Symbol, r.Err)
			continue
		}
		res := r.Evaluation.Result
		fmt.Fprintf(w, "%-10s %-12s strength=%-2d score=%+d price=%s",
			r.Instrument.Symbol, res.Direction, res.Strength, res.Score, r.Evaluation.Snapshot.Price.StringFixed(4))
		if res.HasLevels() {
			fmt.Fprintf(w, " sl=%s tp=%s", res.StopLoss.StringFixed(4), res.TakeProfit.StringFixed(4))
		}
		if r.Evaluation.Alerted {
			fmt.Fprint(w, " [alert]")
		}
		fmt.Fprintln(w)
	}
	return len(results) > 0 && failures == len(results)
}
