package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	api "github.com/charadev96/dchat/api/admission"
	"github.com/charadev96/dchat/internal/client"
)

func requestsCmd() *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List pending requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return decideInteractively(cmd)
			}
			return withAdmin(cmd, func(ctx context.Context, a *client.Admin) error {
				pending, err := a.ListPending(ctx)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No pending requests.")
					return nil
				}
				for _, req := range pending {
					printRequest(cmd, req)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "accept or reject each pending request in turn")
	return cmd
}

var selectTemplates = &promptui.SelectTemplates{
	Label:    "{{ . }}",
	Active:   "▸ {{ .Requester | cyan }} ({{ .ID }})",
	Inactive: "  {{ .Requester }} ({{ .ID }})",
	Selected: "{{ .Requester | green }}",
}

// decideInteractively lets the host pick pending requests one at a time
// until none are left unskipped or the prompt is interrupted.
func decideInteractively(cmd *cobra.Command) error {
	a, err := client.DialAdmin(cfg.Server.AdminAddr)
	if err != nil {
		return err
	}
	defer a.Close()

	skipped := make(map[string]bool)
	for {
		ctx, cancel := context.WithTimeout(cmd.Context(), adminTimeout)
		pending, err := a.ListPending(ctx)
		cancel()
		if err != nil {
			return err
		}
		pending = slices.DeleteFunc(pending, func(r api.Request) bool { return skipped[r.ID] })
		if len(pending) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pending requests.")
			return nil
		}

		sel := promptui.Select{
			Label:     fmt.Sprintf("%d pending", len(pending)),
			Items:     pending,
			Templates: selectTemplates,
		}
		i, _, err := sel.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return nil
		}
		if err != nil {
			return err
		}

		req := pending[i]
		decision := promptui.Select{
			Label: fmt.Sprintf("%s, pending since %s", req.Requester, req.CreatedAt.Local().Format(time.Kitchen)),
			Items: []string{"Accept", "Reject", "Skip"},
		}
		_, choice, err := decision.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return nil
		}
		if err != nil {
			return err
		}

		var decided api.Request
		ctx, cancel = context.WithTimeout(cmd.Context(), adminTimeout)
		switch choice {
		case "Accept":
			decided, err = a.Accept(ctx, req.ID)
		case "Reject":
			decided, err = a.Reject(ctx, req.ID)
		default:
			cancel()
			skipped[req.ID] = true
			continue
		}
		cancel()
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
			continue
		}
		printRequest(cmd, decided)
	}
}
