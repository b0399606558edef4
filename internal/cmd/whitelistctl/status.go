package whitelistctl

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show how many identities have joined",
		Long:  `Show the whitelist's fill level. With --token, also report whether the session's identity has joined.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newClient(root.server)
			out := cmd.OutOrStdout()

			if token == "" {
				reg, err := c.Registry(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d have already joined (%d of %d slots left)\n", reg.Count, reg.Remaining, reg.Capacity)
				if reg.Full {
					fmt.Fprintln(out, "The whitelist is full.")
				}
				return nil
			}

			me, err := c.Me(cmd.Context(), token)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d have already joined (%d of %d slots left)\n", me.Count, me.Remaining, me.Capacity)
			if me.Joined {
				fmt.Fprintf(out, "Thanks for joining, %s.\n", me.Identity)
			} else {
				fmt.Fprintf(out, "%s has not joined yet.\n", me.Identity)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "session token (see the token command)")
	return cmd
}
