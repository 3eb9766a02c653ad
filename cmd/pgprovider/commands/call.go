package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Konsultn-Engineering/pgprovider/connector"
	"github.com/Konsultn-Engineering/pgprovider/providers/postgres"
)

func newCallCommand(g *globalOptions) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:     "call <schema.routine>",
		Short:   "Call a stored routine with named arguments",
		Example: `  pgprovider call crm.fn_save_user --param id=7 --param email=a@b.c`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseParams(params)
			if err != nil {
				return err
			}
			return withConn(cmd, g, connector.Credentials{}, func(ctx context.Context, p *postgres.Provider, conn *connector.Conn) error {
				res, err := p.Func(ctx, conn, args[0], values)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
			})
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "Argument as name=value, with or without the p_ prefix (repeatable)")
	return cmd
}
