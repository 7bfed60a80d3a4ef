package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"solana-autolink/internal/config"
)

// cli carries state shared by every subcommand.
type cli struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "autolink",
		Short: "Auto-link detected Solana transfers to user wallets",
		Long: `autolink scores detected on-chain transfers against wallet history and
links, escalates or expires them according to per-wallet settings.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.v, c.configFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (default: ./autolink.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("backend", config.BackendMemory, "storage backend (memory, postgres)")
	root.PersistentFlags().String("seed", "", "seed fixture applied at startup")

	_ = c.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = c.v.BindPFlag("storage.backend", root.PersistentFlags().Lookup("backend"))
	_ = c.v.BindPFlag("seed_file", root.PersistentFlags().Lookup("seed"))

	root.AddCommand(
		c.serveCmd(),
		c.processCmd(),
		c.sweepCmd(),
		c.statsCmd(),
		c.linkCmd(),
		c.ignoreCmd(),
		c.migrateCmd(),
	)
	return root
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
