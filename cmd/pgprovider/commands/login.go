package commands

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Konsultn-Engineering/pgprovider/providers/postgres"
)

// memorySession keeps what a login assigns for the lifetime of the command.
type memorySession struct {
	values map[string]any
}

func (s *memorySession) Assign(key string, value any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[key] = value
}

func (s *memorySession) Destroy() { s.values = nil }

func newLoginCommand(g *globalOptions) *cobra.Command {
	var user, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check database credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			s, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			sess := &memorySession{}
			res := postgres.NewAuthenticator(s.provider).Login(ctx, user, password, sess)
			if !res.Result {
				failColor.Fprintf(cmd.ErrOrStderr(), "✗ login as %s failed\n", user)
				return fmt.Errorf("login: %s", res.Detail)
			}
			successColor.Fprintf(cmd.ErrOrStderr(), "✓ logged in as %s\n", user)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "Database user")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
