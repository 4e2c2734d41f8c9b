package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/identity"
)

func init() {
	tokenCmd.Flags().String("name", "", "Display name claim")
	tokenCmd.Flags().StringSlice("roles", []string{"USER"}, "System roles (ADMIN, QMB, USER, VIEWER)")
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (default: JWT_TOKEN_TTL)")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development gateway token",
	Long: `Mint an HS256 token signed with JWT_SECRET, as a trusted gateway would.

Examples:
  qmctl token --actor quinn --roles QMB
  curl -H "Authorization: Bearer $(qmctl token --actor alice)" localhost:8080/api/v1/me`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Identity.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set")
		}
		name, _ := cmd.Flags().GetString("name")
		roles, _ := cmd.Flags().GetStringSlice("roles")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if ttl <= 0 {
			ttl = cfg.Identity.TokenTTL
		}
		actor := document.Actor{ID: actorID, Roles: document.NormalizeSystemRoles(roles)}
		if len(actor.Roles) == 0 {
			return fmt.Errorf("no known role in %v", roles)
		}
		tok, err := identity.IssueToken(cfg.Identity.JWTSecret, actor, name, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}
