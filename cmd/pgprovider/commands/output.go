package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/gertd/go-pluralize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Konsultn-Engineering/pgprovider/connector"
	"github.com/Konsultn-Engineering/pgprovider/providers/postgres"
	"github.com/Konsultn-Engineering/pgprovider/query"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	failColor    = color.New(color.FgRed, color.Bold)
	dimColor     = color.New(color.Faint)

	plural = pluralize.NewClient()
)

// parseParams turns repeated key=value flags into query parameters. Values
// stay strings; the server casts them to the parameter types.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

// readControl decodes a control descriptor given inline as JSON or as the
// path of a JSON file. An empty arg means no control.
func readControl(fs afero.Fs, arg string) (*query.Control, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, nil
	}
	data := []byte(arg)
	if !strings.HasPrefix(arg, "{") {
		var err error
		if data, err = afero.ReadFile(fs, arg); err != nil {
			return nil, fmt.Errorf("read control: %w", err)
		}
	}
	var c query.Control
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode control: %w", err)
	}
	return &c, nil
}

func rowCount(res *postgres.Result) int {
	if rows := res.Arrays(); rows != nil {
		return len(rows)
	}
	return len(res.Objects())
}

// printResult writes res as JSON to out and a summary line to status.
func printResult(out, status io.Writer, res *postgres.Result) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	successColor.Fprintf(status, "✓ %s", plural.Pluralize("row", rowCount(res), true))
	if res.Located != nil {
		dimColor.Fprintf(status, " (located at %d)", *res.Located)
	}
	fmt.Fprintln(status)
	return nil
}

// withConn opens the provider, connects and hands the session to fn. An
// interrupt cancels ctx, which stops the running statement.
func withConn(cmd *cobra.Command, g *globalOptions, creds connector.Credentials, fn func(ctx context.Context, p *postgres.Provider, conn *connector.Conn) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	conn, err := s.provider.Connect(ctx, creds, postgres.ConnectOptions{Place: "{applicationName}"})
	if err != nil {
		return err
	}
	defer func() {
		if err := s.provider.Release(context.WithoutCancel(ctx), conn); err != nil {
			s.logger.Warn("release", "error", err)
		}
	}()
	return fn(ctx, s.provider, conn)
}
