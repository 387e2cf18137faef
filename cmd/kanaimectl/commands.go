package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"kanaime/internal/app"
	"kanaime/internal/config"
	"kanaime/internal/ipc"
	"kanaime/internal/logging"
	"kanaime/internal/store"
)

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// cliLogger keeps CLI runs off the daemon's log file.
func cliLogger() *logging.Logger {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LevelWarn
	cfg.Component = "kanaimectl"
	l, err := logging.New(cfg)
	if err != nil {
		return logging.Discard()
	}
	return l
}

func cmdReplay(w io.Writer, cfgPath string, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	text := fs.String("text", "", "initial document text before the caret")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	showMetrics := fs.Bool("metrics", false, "print session metrics after the result")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError("replay [-text s] [-json] [-metrics] <keys>")
	}

	keys, err := app.ParseKeys(fs.Arg(0))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	rt, err := app.New(ctx, cfg, app.WithLogger(cliLogger()))
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	res := rt.Replay(ctx, *text, keys)

	if *asJSON {
		out := replayJSON(res)
		if *showMetrics {
			out.Metrics = rt.Metrics.Snapshot()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for i, st := range res.Steps {
		mark := "pass"
		if st.Eaten {
			mark = "eat "
		}
		fmt.Fprintf(w, "%3d  %s  %-9s  %q\n", i+1, mark, st.Phase, st.Text)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Text:  %q\n", res.Text)
	fmt.Fprintf(w, "Phase: %s\n", res.Phase)
	if res.State.Buffer != "" {
		fmt.Fprintf(w, "Buffer: %q\n", res.State.Buffer)
	}
	for i, c := range res.State.Candidates {
		sel := " "
		if i == res.State.Selected {
			sel = ">"
		}
		fmt.Fprintf(w, "  %s %d. %s\n", sel, i+1, c)
	}
	if *showMetrics {
		fmt.Fprintln(w)
		return rt.Metrics.Registry().WritePrometheus(w)
	}
	return nil
}

type replayStepJSON struct {
	Eaten bool   `json:"eaten"`
	Phase string `json:"phase"`
	Text  string `json:"text"`
}

type replayOutput struct {
	Steps      []replayStepJSON `json:"steps"`
	Text       string           `json:"text"`
	Phase      string           `json:"phase"`
	Buffer     string           `json:"buffer,omitempty"`
	Candidates []string         `json:"candidates,omitempty"`
	Selected   int              `json:"selected"`
	Metrics    map[string]any   `json:"metrics,omitempty"`
}

func replayJSON(res app.ReplayResult) replayOutput {
	out := replayOutput{
		Text:       res.Text,
		Phase:      res.Phase.String(),
		Buffer:     res.State.Buffer,
		Candidates: res.State.Candidates,
		Selected:   res.State.Selected,
	}
	for _, st := range res.Steps {
		out.Steps = append(out.Steps, replayStepJSON{Eaten: st.Eaten, Phase: st.Phase.String(), Text: st.Text})
	}
	return out
}

func openMemory(cfgPath string) (*store.Store, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Memory.Path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no learning memory at %s", cfg.Memory.Path)
	}
	return store.Open(cfg.Memory.Path)
}

func cmdMemory(w io.Writer, cfgPath, sub string, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	switch sub {
	case "list", "forget", "prune", "stats":
	default:
		return usageError("memory list|forget|prune|stats")
	}

	db, err := openMemory(cfgPath)
	if err != nil {
		return err
	}
	defer db.Close()

	switch sub {
	case "list":
		limit := 20
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return usageError("memory list [n]")
			}
			limit = n
		}
		sels, err := db.List(ctx, limit)
		if err != nil {
			return err
		}
		if len(sels) == 0 {
			fmt.Fprintln(w, "No selections remembered.")
			return nil
		}
		for _, s := range sels {
			fmt.Fprintf(w, "%-12s  %-12s  %4d  %s\n", s.Reading, s.Candidate, s.Count, s.LastUsed.Format(time.RFC3339))
		}

	case "forget":
		if len(args) != 1 {
			return usageError("memory forget <reading>")
		}
		n, err := db.Forget(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Forgot %d selection(s) for %q.\n", n, args[0])

	case "prune":
		if len(args) != 1 {
			return usageError("memory prune <days>")
		}
		days, err := strconv.Atoi(args[0])
		if err != nil || days < 0 {
			return usageError("memory prune <days>")
		}
		n, err := db.Prune(ctx, time.Now().AddDate(0, 0, -days))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Pruned %d selection(s).\n", n)

	case "stats":
		st, err := db.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Readings:   %d\n", st.Readings)
		fmt.Fprintf(w, "Selections: %d\n", st.Selections)
		if st.Selections > 0 {
			fmt.Fprintf(w, "Oldest:     %s\n", st.Oldest.Format(time.RFC3339))
			fmt.Fprintf(w, "Newest:     %s\n", st.Newest.Format(time.RFC3339))
		}
	}
	return nil
}

func cmdConfig(w io.Writer, cfgPath, sub string) error {
	switch sub {
	case "show":
		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return err
		}
		data, err := config.Encode(cfg, "config.toml")
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err

	case "check":
		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Fprintln(w, "Configuration OK.")
		return nil

	default:
		return usageError("config show|check")
	}
}

func cmdEnginePing(w io.Writer, cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	client := ipc.NewClient(cfg.Engine.SocketPath, cfg.EngineTimeout())
	start := time.Now()
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("engine at %s: %w", client.SocketPath(), err)
	}
	fmt.Fprintf(w, "Engine at %s answered in %s.\n", client.SocketPath(), time.Since(start).Round(time.Microsecond))
	return nil
}
