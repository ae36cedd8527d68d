package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	api "github.com/charadev96/dchat/api/admission"
	"github.com/charadev96/dchat/internal/client"
)

const adminTimeout = 10 * time.Second

func withAdmin(cmd *cobra.Command, fn func(ctx context.Context, a *client.Admin) error) error {
	a, err := client.DialAdmin(cfg.Server.AdminAddr)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := context.WithTimeout(cmd.Context(), adminTimeout)
	defer cancel()
	return fn(ctx, a)
}

func pinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin",
		Short: "Issue a new pin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, a *client.Admin) error {
				pin, err := a.IssuePin(ctx)
				if err != nil {
					return err
				}
				issued := pin.IssuedAt.Format(time.RFC3339Nano)
				fmt.Fprintf(cmd.OutOrStdout(), "Pin:     %06d\nIssued:  %s\nExpires: %s\n",
					pin.Value, issued, pin.ExpiresAt.Local().Format(time.Kitchen))
				fmt.Fprintf(cmd.OutOrStdout(), "\nRequester runs:\n  dchat join <host> --pin %06d --issued-at %s\n",
					pin.Value, issued)
				return nil
			})
		},
	}
}

func acceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <request-id>",
		Short: "Accept a pending request and print its link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, a *client.Admin) error {
				req, err := a.Accept(ctx, args[0])
				if err != nil {
					return err
				}
				printRequest(cmd, req)
				return nil
			})
		},
	}
}

func rejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <request-id>",
		Short: "Reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, a *client.Admin) error {
				req, err := a.Reject(ctx, args[0])
				if err != nil {
					return err
				}
				printRequest(cmd, req)
				return nil
			})
		},
	}
}

func printRequest(cmd *cobra.Command, req api.Request) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s  %s  %s\n",
		req.ID, req.Status, req.Requester, req.CreatedAt.Local().Format(time.Kitchen))
	if req.Link != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", req.Link)
	}
}
