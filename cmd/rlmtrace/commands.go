package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rlmlab/rlmtrace/internal/config"
	"github.com/rlmlab/rlmtrace/internal/engine"
	"github.com/rlmlab/rlmtrace/internal/extract"
	"github.com/rlmlab/rlmtrace/internal/history"
	"github.com/rlmlab/rlmtrace/internal/recorder"
	"github.com/rlmlab/rlmtrace/internal/store"
)

// --- record ---

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Run a question through the RLM runner and record the trace",
	Long: `Run a question through the RLM runner and record the trace.

Examples:
  rlmtrace record --question "What are the top five rows?" --context "csv data..."
  rlmtrace record --question "Summarize the report" --context-file report.pdf
  rlmtrace record --id demo-run-1 --from result.json --question "..."`,
	RunE: func(cmd *cobra.Command, args []string) error {
		question, _ := cmd.Flags().GetString("question")
		runID, _ := cmd.Flags().GetString("id")
		model, _ := cmd.Flags().GetString("model")
		contextText, _ := cmd.Flags().GetString("context")
		contextFiles, _ := cmd.Flags().GetStringSlice("context-file")
		fromPath, _ := cmd.Flags().GetString("from")

		if question == "" {
			return fmt.Errorf("--question is required")
		}
		if runID == "" {
			runID = "run-" + uuid.New().String()
		}
		if !store.ValidRunID(runID) {
			return fmt.Errorf("run id %q: only letters, digits, underscore, and hyphen are allowed", runID)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if model == "" {
			model = cfg.Runner.DefaultModel
		}

		var inputs []recorder.Input
		if contextText != "" {
			inputs = append(inputs, recorder.Input{Name: "context", Value: contextText})
		}
		switch len(contextFiles) {
		case 0:
		case 1:
			in, err := extract.FromFile(contextFiles[0], "context_file")
			if err != nil {
				return err
			}
			inputs = append(inputs, in)
		default:
			in, err := extract.FromFiles(contextFiles, "context_files")
			if err != nil {
				return err
			}
			inputs = append(inputs, in)
		}

		var result engine.RunResult
		source := "live"
		if fromPath != "" {
			source = "cli"
			data, err := os.ReadFile(fromPath)
			if err != nil {
				return fmt.Errorf("reading run result: %w", err)
			}
			if err := json.Unmarshal(data, &result); err != nil {
				return fmt.Errorf("parsing run result %s: %w", fromPath, err)
			}
		} else {
			runner := engine.New(cfg.Runner.BaseURL)
			if !runner.IsRunning(cmd.Context()) {
				printError("RLM runner not reachable at %s", cfg.Runner.BaseURL)
				return fmt.Errorf("runner not running")
			}

			reqInputs := make(map[string]string, len(inputs))
			for _, in := range inputs {
				reqInputs[in.Name] = in.Value
			}

			printStep("Running %s (max %d iterations)...", model, cfg.Runner.MaxIterations)
			result, err = runner.Run(cmd.Context(), engine.Request{
				Model:    model,
				Question: question,
				Inputs:   reqInputs,
				MaxIters: cfg.Runner.MaxIterations,
			})
			if err != nil {
				return fmt.Errorf("running question: %w", err)
			}
		}

		traces := store.New(cfg.Storage.RunsDir)
		t, err := recorder.New(traces).Record(result, runID, model, question, inputs)
		if err != nil {
			return err
		}

		// The trace artifact is the record; a catalog failure only costs
		// the history view.
		if hist, err := history.Open(cfg.Storage.DataDir); err == nil {
			if err := hist.RecordTrace(t, source); err != nil {
				printWarning("trace saved but history update failed: %v", err)
			}
			hist.Close()
		} else {
			printWarning("trace saved but history catalog unavailable: %v", err)
		}

		printSuccess("Recorded trace %s (%d iterations, %d LLM calls)", t.RunID, t.IterationsUsed, t.LLMCallsUsed)
		return nil
	},
}

func init() {
	recordCmd.Flags().String("id", "", "run identifier (default: generated)")
	recordCmd.Flags().String("question", "", "question to ask")
	recordCmd.Flags().String("model", "", "model identifier (default: from config)")
	recordCmd.Flags().String("context", "", "inline context text")
	recordCmd.Flags().StringSlice("context-file", nil, "context file (text, pdf, or html); repeatable")
	recordCmd.Flags().String("from", "", "record a completed run result from a JSON file instead of running live")
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded traces",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		runs := store.New(cfg.Storage.RunsDir).List()
		if len(runs) == 0 {
			fmt.Println("No traces recorded yet.")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("  %s  %s", colorize(colorBold, r.ID), r.Description)
			if r.Model != "" {
				fmt.Printf("  [%s]", r.Model)
			}
			fmt.Println()
			if r.Question != "" {
				fmt.Printf("      %s\n", truncate(r.Question, 100))
			}
		}
		return nil
	},
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print one trace as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		t, err := store.New(cfg.Storage.RunsDir).Load(args[0])
		if err != nil {
			return fmt.Errorf("no trace for run %q", args[0])
		}

		out, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// --- runs (history) ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recording history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		hist, err := history.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening history catalog: %w", err)
		}
		defer hist.Close()

		entries, err := hist.Recent(limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No recordings yet.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("  %s  %s  %s  %d iterations",
				e.RecordedAt.Format("2006-01-02 15:04"),
				colorize(colorBold, e.RunID),
				e.Model, e.Iterations)
			if e.InputTokens > 0 || e.OutputTokens > 0 {
				fmt.Printf("  (%d in / %d out tokens)", e.InputTokens, e.OutputTokens)
			}
			fmt.Printf("  [%s]\n", e.Source)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "maximum entries to show")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back off to a rune start so the cut never splits a multi-byte rune.
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if sp := strings.LastIndex(s[:cut], " "); sp > 0 {
		cut = sp
	}
	return s[:cut] + "…"
}
