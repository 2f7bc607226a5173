package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/signonhq/signon/internal/log"
	"github.com/signonhq/signon/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session state",
	Long: `Show the current session state without opening the login screen.

When a cached or externally supplied credential exists, signon checks it
against the identity service and reports who you are signed in as.
Without a credential it reports the signed-out state immediately.

Examples:
  signon status
  SIGNON_BOOTSTRAP_TOKEN=<token> signon status`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cache, err := newCredCache()
	if err != nil {
		return err
	}

	bootstrapToken := cfg.BootstrapToken
	if bootstrapToken == "" {
		if creds, ok := cache.Load(); ok {
			bootstrapToken = creds.RefreshToken
		}
	}

	if bootstrapToken == "" {
		fmt.Println("Not signed in.")
		fmt.Println()
		fmt.Println("Use 'signon login' to sign in.")
		return nil
	}

	provider, err := buildHostedProvider(ctx, cfg, cache)
	if err != nil {
		return err
	}

	ctrl := session.New(provider,
		session.WithBootstrapToken(bootstrapToken),
		session.WithCallTimeout(time.Duration(cfg.CallTimeout)),
		session.WithLogger(log.Default()),
	)
	defer ctrl.Close()
	ctrl.Start(ctx)

	// The credential check settles either into an authenticated session
	// or a recorded failure.
	resolved := make(chan session.State, 1)
	unsubscribe := ctrl.Subscribe(func(s session.State) {
		if s.Phase == session.PhaseAuthenticated || s.LastError != "" {
			select {
			case resolved <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	var state session.State
	select {
	case state = <-resolved:
	case <-time.After(time.Duration(cfg.CallTimeout) + time.Second):
		fmt.Println("Not signed in (identity service did not respond).")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	if state.Phase != session.PhaseAuthenticated {
		fmt.Println("Not signed in.")
		if state.LastError != "" {
			fmt.Printf("  %s\n", state.LastError)
		}
		fmt.Println()
		fmt.Println("Use 'signon login' to sign in.")
		return nil
	}

	id := state.Identity
	fmt.Println("Signed in.")
	if id.DisplayName != "" {
		fmt.Printf("  Name:  %s\n", id.DisplayName)
	}
	if id.Email != "" {
		fmt.Printf("  Email: %s\n", id.Email)
	}
	fmt.Printf("  ID:    %s\n", id.ID)

	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
