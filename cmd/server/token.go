package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/utils"
)

var (
	tokenRole string
	tokenTTL  time.Duration
)

// tokenCmd mints an access token for local testing.  Production tokens are
// issued by the identity service with the same secret.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Print a signed development access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			role, ok := model.ParseRole(tokenRole)
			if !ok {
				return fmt.Errorf("unknown role %q", tokenRole)
			}
			tok, err := utils.NewAccessToken(secret, id, string(role), tokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&tokenRole, "role", "r", string(model.RoleStudent), "role claim (STUDENT, CHEF, RECEIVER, ADMIN)")
	cmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	return cmd
}
