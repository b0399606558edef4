// Package whitelistctl implements the whitelist command line client.
package whitelistctl

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

type rootOptions struct {
	server string
}

// NewRootCmd builds the command tree. Each call returns an independent tree so
// tests can execute commands in isolation.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "whitelistctl",
		Short: "Join and inspect a capacity-bounded whitelist",
		Long: `whitelistctl talks to a whitelist server: it mints development session
tokens, shows how many identities have joined, and registers the caller.`,
		SilenceUsage: true,
	}

	server := os.Getenv("WHITELIST_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVarP(&opts.server, "server", "s", server, "whitelist server base URL (env WHITELIST_SERVER)")

	root.AddCommand(
		newTokenCmd(),
		newStatusCmd(opts),
		newMemberCmd(opts),
		newRegisterCmd(opts),
	)
	return root
}
