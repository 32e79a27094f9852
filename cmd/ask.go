package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"github.com/KaramelBytes/crimescope-cli/internal/engine"
	"github.com/KaramelBytes/crimescope-cli/internal/source"
	"github.com/KaramelBytes/crimescope-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	askProvider string
	askOutput   string
	askStream   bool
	askTimeout  int
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Send a natural-language question about the dataset to the engine",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := currentConfig()
		if err != nil {
			return err
		}
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return engine.ErrEmptyQuestion
		}
		provider := conf.EngineProvider
		if cmd.Flags().Changed("provider") {
			provider = askProvider
		}

		// Chat models need the dataset summary; the query engine owns its data.
		var ds *dataset.Dataset
		if strings.EqualFold(provider, engine.ProviderOllama) {
			ds, err = source.New(source.FromGlobal(conf)).Dataset.Get(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "⚠ Warning: asking without dataset context: %v\n", err)
			}
		}
		rt, err := newRuntime(conf, provider, ds)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		timeout := conf.EngineTimeout()
		if cmd.Flags().Changed("timeout") {
			timeout = secDuration(askTimeout)
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if askStream {
			sr, ok := rt.(engine.StreamRuntime)
			if !ok {
				return fmt.Errorf("provider %s does not support --stream", provider)
			}
			err := sr.AskStream(ctx, question, func(delta string) { fmt.Print(delta) })
			fmt.Println()
			return err
		}

		ans, err := rt.Ask(ctx, question)
		if err != nil {
			return err
		}
		return printAnswer(ans, askOutput)
	},
}

// printAnswer writes text and JSON answers to stdout and images to a file.
func printAnswer(ans *engine.Answer, output string) error {
	switch ans.Kind {
	case engine.KindImage:
		if output == "" {
			output = "answer.png"
		}
		if err := utils.WriteFileAtomic(output, ans.Body, 0o644); err != nil {
			return fmt.Errorf("write image: %w", err)
		}
		fmt.Printf("✓ Wrote chart answer to %s\n", output)
		return nil
	case engine.KindJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, ans.Body, "", "  "); err != nil {
			buf.Reset()
			buf.Write(ans.Body)
		}
		if output != "" {
			if err := utils.WriteFileAtomic(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote answer to %s\n", output)
			return nil
		}
		fmt.Println(buf.String())
		return nil
	}
	if output != "" {
		if err := utils.WriteFileAtomic(output, ans.Body, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Printf("✓ Wrote answer to %s\n", output)
		return nil
	}
	fmt.Println(ans.Text())
	return nil
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askProvider, "provider", "", "engine provider: pandas | ollama (default from config)")
	askCmd.Flags().StringVarP(&askOutput, "output", "o", "", "write the answer to a file (image answers default to answer.png)")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the answer as it is generated (ollama only)")
	askCmd.Flags().IntVar(&askTimeout, "timeout", 0, "seconds to wait for an answer (overrides engine_timeout_sec)")
}
