package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/charadev96/dchat/internal/server"
	"github.com/charadev96/dchat/internal/shared/log"
)

var (
	configPath  string
	keyringPath string
	logLevel    string

	cfg server.Config
)

func Execute() error {
	root := newRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dchat",
		Short: "Admit peers into private chat sessions with short-lived pins",
		Long: `dchat lets a host admit requesters into a private session.

The host runs 'dchat serve', hands out pins with 'dchat pin' and decides
requests with 'dchat requests'. A requester registers the host with
'dchat hosts add', then runs 'dchat join' with the pin it was given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = server.LoadConfig(configPath)
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if logLevel != "" {
				level = logLevel
			}
			if err := log.SetLevel(level); err != nil {
				return err
			}
			if keyringPath == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				keyringPath = filepath.Join(dir, ".dchat", "hosts.toml")
			}
			return os.MkdirAll(filepath.Dir(keyringPath), 0o700)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", server.DefaultConfigFileName, "host config file")
	root.PersistentFlags().StringVar(&keyringPath, "keyring", "", "requester keyring (default ~/.dchat/hosts.toml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		keygenCmd(),
		serveCmd(),
		pinCmd(),
		requestsCmd(),
		acceptCmd(),
		rejectCmd(),
		hostsCmd(),
		joinCmd(),
		openCmd(),
	)
	return root
}
