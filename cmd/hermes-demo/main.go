// Command hermes-demo is a small interactive driver that wires up a
// real hermes reactivity engine end to end: a sqlite-backed Engine,
// a Change Bus, and one writable view over a "tasks" table, ticked on
// an interval in the background while a REPL accepts commands in the
// foreground.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tomellm/hermes/pkg/container"
	"github.com/tomellm/hermes/pkg/engine"
	"github.com/tomellm/hermes/pkg/messenger"
	"github.com/tomellm/hermes/pkg/metrics"
)

var cli struct {
	DB       string        `help:"Path to the sqlite database file." default:"hermes-demo.db"`
	Interval time.Duration `help:"Tick interval for the reactivity engine." default:"200ms"`
	Debug    bool          `help:"Enable debug-level logging."`
}

type task struct {
	ID   int64
	Text string
}

func main() {
	kong.Parse(&cli, kong.Description("Interactive driver for the hermes reactive view cache."))

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hermes-demo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := logrus.New()
	if cli.Debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	eng, err := engine.NewSQLiteEngine(cli.DB)
	if err != nil {
		return fmt.Errorf("open sqlite engine: %w", err)
	}
	defer eng.Close()

	ctx := context.Background()
	if err := eng.Execute(ctx, engine.Statement{
		SQL: `CREATE TABLE IF NOT EXISTS "tasks" (id INTEGER PRIMARY KEY, text TEXT NOT NULL)`,
	}); err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}

	sink := metrics.NoopSink{}
	bus, err := messenger.New(ctx, eng, sink, logger)
	if err != nil {
		return fmt.Errorf("start change bus: %w", err)
	}

	tasks := messenger.New[task](bus, messenger.NewBuilder().
		Name("tasks").
		Writable(true).
		AutomaticRequery(true).
		StoredQuery(engine.Statement{SQL: `SELECT id, text FROM "tasks" ORDER BY id`}),
		func(r engine.Row) task {
			return task{ID: r["id"].(int64), Text: r["text"].(string)}
		})

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "hermes> ",
		HistoryFile: "/tmp/hermes-demo-history",
		EOFPrompt:   "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		ticker := time.NewTicker(cli.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				bus.Tick()
				tasks.Tick()
			}
		}
	})

	group.Go(func() error {
		defer cancel()
		return repl(rl, tasks)
	})

	return group.Wait()
}

func repl(rl *readline.Instance, tasks *container.Container[task]) error {
	fmt.Println(`hermes-demo: type "add <text>", "list", or "exit"`)
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}
		switch {
		case line == "exit":
			return nil
		case line == "list":
			printTasks(tasks)
		case len(line) > 4 && line[:4] == "add ":
			tasks.Execute(engine.Statement{
				SQL:  `INSERT INTO "tasks" (text) VALUES (?)`,
				Args: []any{line[4:]},
			})
		default:
			fmt.Println(`unknown command, try "add <text>", "list", or "exit"`)
		}
	}
}

func printTasks(tasks *container.Container[task]) {
	if tasks.HasChanged() {
		tasks.SetViewed()
	}
	for _, tk := range tasks.Data() {
		fmt.Printf("  [%d] %s\n", tk.ID, tk.Text)
	}
}
