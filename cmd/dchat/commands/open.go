package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charadev96/dchat/internal/server/service"
)

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <host> <link>",
		Short: "Recover the session key from a link issued by a host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := keyring().Get(args[0])
			if err != nil {
				return err
			}
			links := &service.LinkBuilder{Keys: &service.KeyExchangeService{}}
			link, key, err := links.Open(args[1], host.Key)
			if err != nil {
				return err
			}
			defer key.Wipe()
			fmt.Fprintf(cmd.OutOrStdout(), "Room: %s\nKey:  %s\n", link.Token, key.Fingerprint())
			return nil
		},
	}
}
