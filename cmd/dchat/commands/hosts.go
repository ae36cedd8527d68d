package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/charadev96/dchat/internal/client/domain"
	"github.com/charadev96/dchat/internal/client/repository"
	"github.com/charadev96/dchat/internal/server/service"
)

func keyring() *repository.TOMLHostRepository {
	return &repository.TOMLHostRepository{FilePath: keyringPath}
}

func hostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Manage the hosts this requester can join",
	}
	cmd.AddCommand(hostsAddCmd(), hostsListCmd(), hostsRemoveCmd())
	return cmd
}

func hostsAddCmd() *cobra.Command {
	var (
		address   string
		requester string
		keyFile   string
		tlsPin    string
	)
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Register a host with the key file and TLS pin it handed out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(keyFile)
			if err != nil {
				return fmt.Errorf("failed to read host key: %w", err)
			}
			key, err := service.DecodePrivateKeyPEM(data)
			if err != nil {
				return fmt.Errorf("%s: %w", keyFile, err)
			}
			entry := domain.HostEntry{
				Address:   address,
				Requester: requester,
				Key:       key,
				TLSPin:    strings.ToLower(strings.TrimSpace(tlsPin)),
			}
			if err := keyring().Set(args[0], entry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s), fingerprint %s\n",
				args[0], address, service.PublicKeyFingerprint(&key.PublicKey))
			return nil
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "", "host public address (host:port)")
	cmd.Flags().StringVarP(&requester, "as", "u", "", "name to present to the host")
	cmd.Flags().StringVarP(&keyFile, "key", "k", "", "host key file")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("as")
	cmd.Flags().StringVarP(&tlsPin, "tls-pin", "p", "", "TLS pin printed by the host's keygen")
	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("tls-pin")
	return cmd
}

func hostsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts, err := keyring().List()
			if err != nil {
				return err
			}
			for _, h := range hosts {
				fp := "no key"
				if h.Key != nil {
					fp = service.PublicKeyFingerprint(&h.Key.PublicKey)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-22s %-12s %s\n", h.ID, h.Address, h.Requester, fp)
			}
			return nil
		},
	}
}

func hostsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Forget a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return keyring().Delete(args[0])
		},
	}
}
