package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/charadev96/dchat/internal/server"
	"github.com/charadev96/dchat/internal/server/service"
	"github.com/charadev96/dchat/internal/shared/log"
)

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Create the host keys and certificate if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New("keygen")
			keys := &service.KeyExchangeService{GenerateTimeout: cfg.Keys.GenerateTimeout.Duration}
			tmpl, err := server.CertificateTemplate(cfg.Server.Hosts, time.Now().Add(-time.Hour), cfg.Server.CertValidity.Duration)
			if err != nil {
				return err
			}
			m, err := server.EnsureHostKeyPair(cmd.Context(), cfg.Server.KeyPaths(), tmpl, keys, &logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Host key:    %s\nTLS key:     %s\nCertificate: %s\nFingerprint: %s\nTLS pin:     %s\n",
				cfg.Server.KeyFile, cfg.Server.TLSKeyFile, cfg.Server.CertFile,
				service.PublicKeyFingerprint(&m.Key.PublicKey), m.TLSPin())
			fmt.Fprintln(cmd.OutOrStdout(), "Give the host key file and the TLS pin to requesters over a channel you trust.")
			fmt.Fprintln(cmd.OutOrStdout(), "Never hand out the TLS key.")
			return nil
		},
	}
}
