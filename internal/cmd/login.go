package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/signonhq/signon/internal/idp"
	"github.com/signonhq/signon/internal/idp/idptest"
	"github.com/signonhq/signon/internal/log"
	"github.com/signonhq/signon/internal/session"
	"github.com/signonhq/signon/internal/tui"
)

var loginDemo bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Open the login screen",
	Long: `Open the terminal login screen.

The screen mirrors the identity service's session state. On start,
signon attempts an initial authentication: a cached or externally
supplied bootstrap credential when one exists, an anonymous guest
sign-in otherwise. Press enter on the signed-out screen to sign in
through your identity provider's browser flow.

Examples:
  signon login
  signon login --demo
  SIGNON_BOOTSTRAP_TOKEN=<token> signon login`,
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var provider idp.Provider
	bootstrapToken := cfg.BootstrapToken
	if loginDemo {
		provider = idptest.NewDemo()
	} else {
		cache, err := newCredCache()
		if err != nil {
			return err
		}
		provider, err = buildHostedProvider(ctx, cfg, cache)
		if err != nil {
			return err
		}
		if bootstrapToken == "" {
			if creds, ok := cache.Load(); ok {
				bootstrapToken = creds.RefreshToken
			}
		}
	}

	ctrl := session.New(provider,
		session.WithBootstrapToken(bootstrapToken),
		session.WithCallTimeout(time.Duration(cfg.CallTimeout)),
		session.WithInteractiveTimeout(time.Duration(cfg.InteractiveTimeout)),
		session.WithLogger(log.Default()),
	)
	defer ctrl.Close()
	ctrl.Start(ctx)

	return tui.Run(ctx, ctrl)
}

func init() {
	loginCmd.Flags().BoolVar(&loginDemo, "demo", false, "use a built-in demo identity provider instead of the configured service")
	rootCmd.AddCommand(loginCmd)
}
