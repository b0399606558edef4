package whitelistctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type registerOptions struct {
	token    string
	wait     bool
	timeout  time.Duration
	interval time.Duration
}

// errNotConfirmed is returned when --wait gives up before the membership shows.
var errNotConfirmed = errors.New("membership not confirmed before timeout")

func newRegisterCmd(root *rootOptions) *cobra.Command {
	opts := &registerOptions{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Join the whitelist with a session token",
		Long: `Register the session's identity. Registering again is harmless. With --wait,
poll the membership endpoint until the admission is visible.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRegister(cmd, newClient(root.server), opts)
		},
	}
	cmd.Flags().StringVar(&opts.token, "token", "", "session token (see the token command)")
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "wait until the membership is visible")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "how long --wait polls")
	cmd.Flags().DurationVar(&opts.interval, "interval", time.Second, "poll interval for --wait")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func runRegister(cmd *cobra.Command, c *client, opts *registerOptions) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Registering...")
	res, err := c.Register(cmd.Context(), opts.token)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Code == "capacity_exceeded" {
			return fmt.Errorf("the whitelist is full: %w", err)
		}
		return err
	}
	if res.Created {
		fmt.Fprintf(out, "Admitted %s as member #%d (%d joined)\n", res.Identity, res.Seq, res.Count)
	} else {
		fmt.Fprintf(out, "%s is already a member (#%d)\n", res.Identity, res.Seq)
	}

	if !opts.wait {
		return nil
	}
	if err := waitForMember(cmd.Context(), c, res.Identity, opts.timeout, opts.interval); err != nil {
		return err
	}
	fmt.Fprintln(out, "Thanks for joining!")
	return nil
}

func waitForMember(ctx context.Context, c *client, identity string, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := c.Member(ctx, identity)
		if err == nil && res.Member {
			return nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("%w: %w", errNotConfirmed, err)
			}
			return errNotConfirmed
		case <-ticker.C:
		}
	}
}
