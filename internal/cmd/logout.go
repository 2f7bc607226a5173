package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/signonhq/signon/internal/log"
)

var logoutYes bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove cached credentials",
	Long: `Sign out from the identity service and remove the locally cached
credential.

The cached refresh credential is revoked at the identity service when it
advertises a revocation endpoint, then deleted from ~/.signon.

Examples:
  signon logout
  signon logout --yes`,
	RunE: runLogout,
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cache, err := newCredCache()
	if err != nil {
		return err
	}

	creds, ok := cache.Load()
	if !ok {
		fmt.Println("Not signed in.")
		return nil
	}

	if !logoutYes {
		prompt := "Sign out?"
		if creds.Email != "" {
			prompt = fmt.Sprintf("Sign out %s?", creds.Email)
		}
		var confirmed bool
		confirm := huh.NewConfirm().
			Title(prompt).
			Value(&confirmed)
		if err := huh.NewForm(huh.NewGroup(confirm)).Run(); err != nil {
			return fmt.Errorf("confirmation prompt failed: %w", err)
		}
		if !confirmed {
			fmt.Println("Logout cancelled.")
			return nil
		}
	}

	// Best effort: revoke at the service, but the local credential goes
	// away regardless.
	provider, err := buildHostedProvider(ctx, cfg, cache)
	if err == nil {
		if err := provider.SignInWithToken(ctx, creds.RefreshToken); err == nil {
			if err := provider.SignOut(ctx); err != nil {
				log.Default().WithError(err).Warn("revoking credential at identity service failed")
			}
		}
	} else {
		log.Default().WithError(err).Warn("identity service unreachable, removing local credential only")
	}

	if err := cache.Clear(); err != nil {
		return fmt.Errorf("removing cached credential: %w", err)
	}

	if creds.Email != "" {
		fmt.Printf("Signed out %s.\n", creds.Email)
	} else {
		fmt.Println("Signed out.")
	}

	return nil
}

func init() {
	logoutCmd.Flags().BoolVarP(&logoutYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(logoutCmd)
}
