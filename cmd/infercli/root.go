// cmd/infercli/root.go
//
// infercli is a thin demonstration harness around the engine library:
// it loads a synthetic model (no real GGUF file required), runs one
// generation and prints the result. It is not part of the module's
// public surface — the library has no CLI dependency (§1).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tinyforge/llminfer/config"
	"github.com/tinyforge/llminfer/engine"
	"github.com/tinyforge/llminfer/internal/modelfile"
)

var (
	prompt       string
	maxNewTokens int
	temperature  float64
	topP         float64
	topK         int
	seed         uint64
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "infercli",
	Short: "Demo harness for the llminfer in-process inference engine",
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one generation against a synthetic (random-weight) model",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg := config.Config{
			ModelPath:            "synthetic://demo",
			MaxContextTokens:     128,
			EnableKVCache:        true,
			KVMaxBytesPerSession: 1 << 22,
			KVMaxBytesTotal:      1 << 26,
			KVMaxSessions:        16,
			LogLevel:             logLevel,
		}

		loader := modelfile.NewSynthetic(modelfile.DefaultSyntheticSpec())
		eng, err := engine.Load(cfg, loader, nil, nil)
		if err != nil {
			logrus.Fatalf("loading engine: %v", err)
		}
		defer eng.Close()

		sess, err := eng.CreateSession(context.Background(), engine.SessionOptions{})
		if err != nil {
			logrus.Fatalf("creating session: %v", err)
		}
		defer sess.Close()

		req := engine.GenerationRequest{
			Prompt:       prompt,
			MaxNewTokens: maxNewTokens,
			Temperature:  temperature,
			TopP:         topP,
			TopK:         topK,
			Seed:         &seed,
		}
		result, err := sess.Generate(context.Background(), req)
		if err != nil {
			logrus.Fatalf("generation failed: %v", err)
		}
		fmt.Printf("finish_reason=%s prompt_tokens=%d completion_tokens=%d ttft_ms=%.2f total_ms=%.2f\n",
			result.Reason, result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Timings.TTFTMillis, result.Timings.TotalMillis)
		fmt.Println(result.Text)
	},
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	generateCmd.Flags().StringVar(&prompt, "prompt", "hello", "Prompt text")
	generateCmd.Flags().IntVar(&maxNewTokens, "max-new-tokens", 16, "Maximum tokens to generate")
	generateCmd.Flags().Float64Var(&temperature, "temperature", 0.7, "Sampling temperature")
	generateCmd.Flags().Float64Var(&topP, "top-p", 0.9, "Nucleus sampling threshold")
	generateCmd.Flags().IntVar(&topK, "top-k", 0, "Top-k cutoff (0 disables)")
	generateCmd.Flags().Uint64Var(&seed, "seed", 42, "Sampler RNG seed")
	generateCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(generateCmd)
}
