package whitelistctl

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMemberCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "member <identity>",
		Short: "Check whether an identity has joined",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient(root.server).Member(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.Member {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is a member\n", res.Identity)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not a member\n", res.Identity)
			}
			return nil
		},
	}
}
