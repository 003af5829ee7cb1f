// Command tokengen mints bearer tokens for local development and smoke tests.
//
//	tokengen subject --id <uuid>
//	tokengen verifier --name "Acme Bank" --ttl 1h
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	jwttoken "proofgate/internal/jwt_token"
	"proofgate/pkg/requestcontext"
)

type options struct {
	signingKey string
	issuer     string
	id         string
	name       string
	ttl        time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "tokengen",
		Short:        "Mint proofgate bearer tokens",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.signingKey, "signing-key", envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"), "HS256 signing key")
	root.PersistentFlags().StringVar(&opts.issuer, "issuer", envOr("JWT_ISSUER", "proofgate"), "token issuer")
	root.PersistentFlags().StringVar(&opts.id, "id", "", "caller UUID (random when empty)")
	root.PersistentFlags().StringVar(&opts.name, "name", "", "display name carried in the token")
	root.PersistentFlags().DurationVar(&opts.ttl, "ttl", time.Hour, "token lifetime")

	root.AddCommand(
		newRoleCmd(opts, requestcontext.RoleSubject, "Mint a token for a subject (credential holder)"),
		newRoleCmd(opts, requestcontext.RoleVerifier, "Mint a token for a verifier (relying party)"),
	)
	return root
}

func newRoleCmd(opts *options, role requestcontext.Role, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(role),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, callerID, err := mint(opts, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", role, callerID)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func mint(opts *options, role requestcontext.Role) (string, uuid.UUID, error) {
	callerID := uuid.New()
	if opts.id != "" {
		parsed, err := uuid.Parse(opts.id)
		if err != nil || parsed == uuid.Nil {
			return "", uuid.Nil, fmt.Errorf("--id must be a non-nil UUID")
		}
		callerID = parsed
	}
	if opts.ttl <= 0 {
		return "", uuid.Nil, fmt.Errorf("--ttl must be positive")
	}
	token, err := jwttoken.NewJWTService(opts.signingKey, opts.issuer).
		GenerateAccessToken(callerID, string(role), opts.name, opts.ttl)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("sign token: %w", err)
	}
	return token, callerID, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
