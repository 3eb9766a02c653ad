package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Konsultn-Engineering/pgprovider/connector"
	"github.com/Konsultn-Engineering/pgprovider/providers/postgres"
	"github.com/Konsultn-Engineering/pgprovider/schema"
)

func newCompleteCommand(g *globalOptions) *cobra.Command {
	var (
		table string
		limit int
	)
	cmd := &cobra.Command{
		Use:       "complete <action|dataset> <prefix>",
		Short:     "List schema, relation, routine and column names starting with prefix",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{schema.ComponentAction, schema.ComponentDataset},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(cmd, g, connector.Credentials{}, func(ctx context.Context, p *postgres.Provider, conn *connector.Conn) error {
				res, err := p.Complete(ctx, conn, args[0], args[1], table, limit)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "Table (schema.name) whose columns to list")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of candidates")
	return cmd
}
