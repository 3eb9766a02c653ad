package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Konsultn-Engineering/pgprovider/connector"
	"github.com/Konsultn-Engineering/pgprovider/database"
	"github.com/Konsultn-Engineering/pgprovider/providers/postgres"
)

type queryOptions struct {
	params  []string
	control string
	mode    string
	rn      bool
	first   bool
}

func newQueryCommand(g *globalOptions) *cobra.Command {
	o := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a select template",
		Long: "Run a select template with :name parameters. A control descriptor adds\n" +
			"filters, sorting, paging, row locating and tree output.",
		Example: `  pgprovider query "select * from users where org = :org" --param org=5 \
    --control '{"filters":[{"field":"age","value":">18"}],"range":{"chunk_start":0,"amount":20}}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, g, o, args[0])
		},
	}
	cmd.Flags().StringArrayVar(&o.params, "param", nil, "Parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&o.control, "control", "", "Control descriptor as JSON or a path to a JSON file")
	cmd.Flags().StringVar(&o.mode, "mode", string(database.RowModeArray), "Row mode (array, object)")
	cmd.Flags().BoolVar(&o.rn, "rn", false, "Add the _rn row number column")
	cmd.Flags().BoolVar(&o.first, "first", false, "Return only the first row")
	return cmd
}

func runQuery(cmd *cobra.Command, g *globalOptions, o *queryOptions, sql string) error {
	mode := database.RowMode(o.mode)
	if mode != database.RowModeArray && mode != database.RowModeObject {
		return fmt.Errorf("unknown row mode %q", o.mode)
	}
	params, err := parseParams(o.params)
	if err != nil {
		return err
	}
	control, err := readControl(g.fs, o.control)
	if err != nil {
		return err
	}
	opts := postgres.QueryOptions{RowMode: mode, ReturnRN: o.rn, ReturnFirst: o.first}

	return withConn(cmd, g, connector.Credentials{}, func(ctx context.Context, p *postgres.Provider, conn *connector.Conn) error {
		res, err := p.Query(ctx, conn, sql, params, opts, control)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
	})
}
