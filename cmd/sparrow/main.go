// Command sparrow is a terminal client for a streaming support agent.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	sparrow "github.com/moonshubh/Agent-Sparrow-sub001"
	"github.com/moonshubh/Agent-Sparrow-sub001/config"
	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
)

var (
	// Global flags
	configPath string
	sessionID  string
	transport  string
	verbose    bool

	cfg        *config.Config
	logger     logging.Logger
	syncLogger func()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sparrow",
	Short: "Sparrow - streaming support agent client",
	Long: `sparrow talks to a streaming agent backend, renders the assistant reply
as it arrives and keeps the reasoning panel (lanes, objectives, todos) in sync.

Run without arguments to start an interactive chat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if transport != "" {
			cfg.Backend.Transport = transport
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger, syncLogger, err = cfg.NewLogger()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if syncLogger != nil {
			syncLogger()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, nil)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "sparrow.yaml", "Config file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "", "Resume an existing session")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "", "Override backend transport (sse, ws, openai, anthropic, echo)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func open(ctx context.Context) (*sparrow.Sparrow, error) {
	return sparrow.New(ctx, func(o *sparrow.Options) {
		o.Config = cfg
		o.SessionID = sessionID
		o.Logger = logger
	})
}
