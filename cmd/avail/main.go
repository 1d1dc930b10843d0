package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"availsdk/internal/config"
	"availsdk/internal/infrastructure/logging"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

type rootFlags struct {
	Endpoint string
	LogLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	cfg := new(config.Config)

	root := &cobra.Command{
		Use:     "avail",
		Short:   "Avail chain client",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Long: `Submit transactions to and query an Avail node.

Configuration is read from the environment (AVAIL_ENDPOINT, AVAIL_SEED,
AVAIL_APP_ID, AVAIL_WAIT_FOR, AVAIL_NONCE_MODE, ...). Flags override it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			if flags.Endpoint != "" {
				loaded, err = loaded.WithEndpoint(flags.Endpoint)
				if err != nil {
					return err
				}
			}
			level := loaded.LogLevel
			if flags.LogLevel != "" {
				level = flags.LogLevel
			}
			if _, err := logging.Init(logging.Config{Level: level, Output: cmd.ErrOrStderr(), Service: "avail"}); err != nil {
				slog.Warn("logger init error", "err", err)
			}
			*cfg = loaded
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&flags.Endpoint, "endpoint", "e", "", "Node websocket URL or network name (local, turing, goldberg, couscous)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newSubmitDataCmd(cfg),
		newTransferCmd(cfg),
		newNonceCmd(cfg),
		newBalanceCmd(cfg),
		newAppKeysCmd(cfg),
		newBlockCmd(cfg),
		newDataProofCmd(cfg),
		newCommissionCmd(),
		newMultisigAddressCmd(),
	)
	return root
}

func printJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
