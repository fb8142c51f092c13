package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jrsteele09/firestore-auth/credentials"
	"github.com/jrsteele09/firestore-auth/documents"
	fberrors "github.com/jrsteele09/firestore-auth/errors"
	"github.com/jrsteele09/firestore-auth/internal/config"
	"github.com/jrsteele09/firestore-auth/sessions"
	"github.com/jrsteele09/firestore-auth/users"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	credentialsFile string
	userID          string
	refreshToken    string
	accessToken     string
	discover        bool
	verbose         bool
	quiet           bool
}

// app carries what every subcommand needs once the root command has run
type app struct {
	cfg   config.Config
	flags globalFlags
	creds *credentials.Credentials
	out   io.Writer
}

func newRootCmd(cfg config.Config) *cobra.Command {
	a := &app{cfg: cfg}

	root := &cobra.Command{
		Use:           "firestore",
		Short:         "Access Firestore as a service account or as a Firebase user",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			if a.flags.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			if !a.flags.quiet {
				displayAppname(cfg.GetAppName())
			}
			return a.loadCredentials(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.credentialsFile, "credentials", cfg.GetCredentialsFile(), "service account JSON key file")
	pf.StringVar(&a.flags.userID, "user", "", "impersonate this Firebase user instead of the service account")
	pf.StringVar(&a.flags.refreshToken, "refresh-token", "", "resume a user session from a refresh token")
	pf.StringVar(&a.flags.accessToken, "access-token", "", "use an existing Firebase ID token")
	pf.BoolVar(&a.flags.discover, "discover", true, "download the public key sets at startup")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVarP(&a.flags.quiet, "quiet", "q", false, "do not print the banner")

	root.AddCommand(
		a.sessionCmd(),
		a.readCmd(),
		a.writeCmd(),
		a.listCmd(),
		a.queryCmd(),
		a.deleteCmd(),
		a.userInfoCmd(),
		a.userRemoveCmd(),
		a.cookieCmd(),
	)
	return root
}

func (a *app) loadCredentials(ctx context.Context) error {
	keyJSON, err := os.ReadFile(a.flags.credentialsFile)
	if err != nil {
		return fmt.Errorf("%w: %w", fberrors.ErrMalformedCredentials, err)
	}

	if a.flags.discover {
		a.creds, err = credentials.LoadWithDiscovery(ctx, keyJSON)
	} else {
		a.creds, err = credentials.Load(keyJSON)
	}
	return err
}

// session picks a user session when any user flag is set and the service
// account otherwise.
func (a *app) session(ctx context.Context) (sessions.Bearer, error) {
	if a.flags.userID == "" && a.flags.refreshToken == "" && a.flags.accessToken == "" {
		s, err := sessions.NewServiceAccountSession(a.creds)
		if err != nil {
			return nil, err
		}
		return sessions.Synchronized(s), nil
	}

	s, err := a.userSession(ctx)
	if err != nil {
		return nil, err
	}
	return sessions.Synchronized(s), nil
}

func (a *app) userSession(ctx context.Context) (*sessions.UserSession, error) {
	return sessions.NewUserSession(ctx, a.creds, sessions.UserSessionParams{
		UserID:       a.flags.userID,
		AccessToken:  a.flags.accessToken,
		RefreshToken: a.flags.refreshToken,
	})
}

func (a *app) documents() *documents.Client {
	return documents.NewClient(documents.WithBaseURL(a.cfg.GetFirestoreURL()))
}

func (a *app) users() *users.Client {
	return users.NewClient(users.WithIdentityToolkitURL(a.cfg.GetIdentityToolkitURL()))
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	return nil
}
