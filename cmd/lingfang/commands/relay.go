package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Torimasen-tech/lingfang/internal/batch"
	"github.com/Torimasen-tech/lingfang/internal/llm"
)

// relayClient is the replay surface the relay loop needs.
type relayClient interface {
	Relay(ctx context.Context, record []byte) (string, error)
}

// relayClientFactory builds the relay client for a run. Injected so tests
// can substitute a canned endpoint.
type relayClientFactory func(cfg llm.Config) (relayClient, error)

func newRelayClient(cfg llm.Config) (relayClient, error) {
	return llm.New(cfg)
}

// RelayCommand holds configuration and dependencies for the relay command.
type RelayCommand struct {
	provider string
	baseURL  string
	model    string

	newRuntime runtimeFactory
	newClient  relayClientFactory
}

// NewRelayCommand creates the relay command.
func NewRelayCommand() *cobra.Command {
	return newRelayCommandWithDeps(newCommandRuntime, newRelayClient)
}

func newRelayCommandWithDeps(newRuntime runtimeFactory, newClient relayClientFactory) *cobra.Command {
	rc := &RelayCommand{newRuntime: newRuntime, newClient: newClient}

	cmd := &cobra.Command{
		Use:   "relay <requests.jsonl> <results.jsonl>",
		Short: "Replay an exported request file against a live endpoint",
		Long: "Relay executes each exported request record synchronously against the\n" +
			"configured chat endpoint and writes result records in the shape apply\n" +
			"expects, for environments without a batch endpoint. Request bodies are\n" +
			"sent as exported; each record keeps its own embedded model unless\n" +
			"--model overrides it.",
		Args: cobra.ExactArgs(2),
		RunE: rc.run,
	}

	cmd.Flags().StringVar(&rc.provider, "provider", "", "Chat provider: openai, ollama (default from config)")
	cmd.Flags().StringVar(&rc.baseURL, "base-url", "", "Endpoint base URL override (default from config)")
	cmd.Flags().StringVar(&rc.model, "model", "", "Override the model embedded in every request record")

	return cmd
}

func (rc *RelayCommand) run(cmd *cobra.Command, args []string) error {
	rt, err := rc.newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	requestsPath, resultsPath := args[0], args[1]

	llmCfg := rt.cfg.LLMConfig()

	// An empty model keeps the one embedded per record; only an explicit
	// flag overrides.
	llmCfg.Model = ""
	if cmd.Flags().Changed("model") {
		llmCfg.Model = rc.model
	}

	if cmd.Flags().Changed("provider") {
		llmCfg.Provider = rc.provider
	}

	if cmd.Flags().Changed("base-url") {
		llmCfg.BaseURL = rc.baseURL
	}

	records, err := batch.ReadRequests(requestsPath)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		return fmt.Errorf("no request records in %s", requestsPath)
	}

	client, err := rc.newClient(llmCfg)
	if err != nil {
		return err
	}

	progressf(cmd, "starting relay: %d requests provider=%s", len(records), llmCfg.Provider)

	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription("relaying"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(!isQuiet(cmd)),
	)

	outFile, err := os.Create(resultsPath)
	if err != nil {
		return fmt.Errorf("create results: %w", err)
	}

	count, writeErr := relayRecords(cmd.Context(), client, records, outFile, bar)

	closeErr := outFile.Close()
	if writeErr != nil {
		return writeErr
	}

	if closeErr != nil {
		return fmt.Errorf("close results: %w", closeErr)
	}

	_ = bar.Finish()

	fmt.Fprintf(cmd.OutOrStdout(), "Relayed %d requests to %s.\n", count, resultsPath)

	return nil
}

// relayRecords executes each request record and writes its result record. A
// failed record aborts: the output is regenerated whole on rerun, and the
// transport already retried transient faults.
func relayRecords(
	ctx context.Context,
	client relayClient,
	records []batch.OutboundRecord,
	w io.Writer,
	bar *progressbar.ProgressBar,
) (int, error) {
	writer := batch.NewWriter(w)

	for _, rec := range records {
		content, err := client.Relay(ctx, rec.Raw)
		if err != nil {
			return writer.Count(), fmt.Errorf("relay %s (line %d): %w", rec.ID, rec.Line, err)
		}

		err = writer.WriteResult(batch.NewResult(rec.ID, content))
		if err != nil {
			return writer.Count(), err
		}

		_ = bar.Add(1)
	}

	err := writer.Flush()
	if err != nil {
		return writer.Count(), err
	}

	return writer.Count(), nil
}
