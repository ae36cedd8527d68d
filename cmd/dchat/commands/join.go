package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/charadev96/dchat/internal/client"
	"github.com/charadev96/dchat/internal/server/domain"
	"github.com/charadev96/dchat/internal/server/service"
	"github.com/charadev96/dchat/internal/shared/log"
)

func joinCmd() *cobra.Command {
	var (
		pinValue int
		issuedAt string
		wait     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "join <host>",
		Short: "Ask a host to admit you and wait for its decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issued, err := time.Parse(time.RFC3339Nano, issuedAt)
			if err != nil {
				return fmt.Errorf("invalid --issued-at: %w", err)
			}
			if pinValue == 0 {
				pinValue, err = promptPin()
				if err != nil {
					return err
				}
			}

			logger := log.New("join")
			c := &client.Client{
				Hosts:  keyring(),
				Links:  &service.LinkBuilder{Keys: &service.KeyExchangeService{}},
				Logger: &logger,
			}
			if err := c.DialHost(args[0]); err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			req, err := c.Submit(ctx, domain.Pin{Value: pinValue, IssuedAt: issued})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Request %s is pending, waiting for the host.\n", req.ID)

			req, err = c.Await(ctx, req.ID)
			if errors.Is(err, client.ErrRejected) {
				fmt.Fprintln(cmd.OutOrStdout(), "The host rejected the request.")
				return err
			}
			if err != nil {
				return err
			}

			link, key, err := c.OpenLink(req.Link)
			if err != nil {
				return err
			}
			defer key.Wipe()
			fmt.Fprintf(cmd.OutOrStdout(), "Accepted.\nRoom:    %s\nKey:     %s\nLink:    %s\n",
				link.Token, key.Fingerprint(), link.URI)
			return nil
		},
	}
	cmd.Flags().IntVar(&pinValue, "pin", 0, "pin given by the host (prompted when omitted)")
	cmd.Flags().StringVar(&issuedAt, "issued-at", "", "issue time printed with the pin")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Minute, "how long to wait for a decision")
	cmd.MarkFlagRequired("issued-at")
	return cmd
}

func promptPin() (int, error) {
	prompt := promptui.Prompt{
		Label: "Pin",
		Mask:  '*',
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || !domain.ValidPinValue(n) {
				return errors.New("pin is six digits")
			}
			return nil
		},
	}
	s, err := prompt.Run()
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}
