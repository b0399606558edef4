package whitelistctl

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"whitelist/internal/platform/config"
	"whitelist/internal/session"
	id "whitelist/pkg/domain"
)

type tokenOptions struct {
	address string
	chainID int64
	ttl     time.Duration
}

func newTokenCmd() *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development session token",
		Long: `Mint a session token for an address, signed with the server's
SESSION_SIGNING_KEY, SESSION_ISSUER and SESSION_AUDIENCE settings. Intended for
local development; production sessions come from the wallet connector.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToken(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.address, "address", "", "identity the session belongs to")
	cmd.Flags().Int64Var(&opts.chainID, "chain-id", config.GoerliChainID, "network the session is opened on")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "token lifetime (default SESSION_TTL)")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func runToken(cmd *cobra.Command, opts *tokenOptions) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	address, err := id.ParseIdentity(opts.address)
	if err != nil {
		return err
	}
	ttl := opts.ttl
	if ttl == 0 {
		ttl = cfg.Session.TTL
	}

	tokens := session.NewTokenService(cfg.Session.SigningKey, cfg.Session.Issuer, cfg.Session.Audience)
	token, err := tokens.Issue(address, opts.chainID, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
