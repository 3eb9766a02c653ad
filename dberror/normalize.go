package dberror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Konsultn-Engineering/pgprovider/schema"
)

// SQLSTATE codes with dedicated handling.
const (
	CodeUniqueViolation     = "23505"
	CodeNotNullViolation    = "23502"
	CodeForeignKeyViolation = "23503"
	CodeCheckViolation      = "23514"
	CodeExclusionViolation  = "23P01"
	CodeRaiseException      = "P0001"
)

// Metadata resolves commented table descriptions. A nil table means the
// catalog does not know it.
type Metadata interface {
	Table(ctx context.Context, schemaName, table string) (*schema.Table, error)
}

var (
	keyValueRe   = regexp.MustCompile(`\((.*?)\)=\((.*?)\)`)
	keyTailRe    = regexp.MustCompile(`\)=\((.*)\)`)
	quotedNameRe = regexp.MustCompile(`"(.*?)"`)
)

// Normalizer turns database errors into user facing messages.
type Normalizer struct {
	catalog  Catalog
	meta     Metadata
	extended bool
	logger   *slog.Logger
}

type NormalizerOption func(*Normalizer)

func WithMetadata(m Metadata) NormalizerOption {
	return func(n *Normalizer) { n.meta = m }
}

// WithExtendedInfo appends the technical object name to every resolved
// label, as in "Users(public.users)".
func WithExtendedInfo(on bool) NormalizerOption {
	return func(n *Normalizer) { n.extended = on }
}

func WithNormalizerLogger(l *slog.Logger) NormalizerOption {
	return func(n *Normalizer) { n.logger = l }
}

func NewNormalizer(catalog Catalog, opts ...NormalizerOption) *Normalizer {
	if catalog == nil {
		catalog = NewStaticCatalog()
	}
	n := &Normalizer{catalog: catalog, logger: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// errParse marks a database report whose shape the normalizer did not expect.
var errParse = errors.New("unexpected message format")

// errMetadata marks a failed label lookup.
var errMetadata = errors.New("metadata lookup failed")

// Normalize returns the message to show for err. It never fails: reports it
// cannot take apart come back as a note carrying the original text.
func (n *Normalizer) Normalize(ctx context.Context, err error) (msg string) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err.Error()
	}

	defer func() {
		if r := recover(); r != nil {
			msg = parseFailure(fmt.Sprint(r), pgErr.Message)
		}
	}()

	msg, err = n.normalize(ctx, pgErr)
	switch {
	case errors.Is(err, errMetadata):
		n.logger.WarnContext(ctx, "database message labels unavailable", "code", pgErr.Code, "error", err)
		return pgErr.Message
	case err != nil:
		return parseFailure(err.Error(), pgErr.Message)
	case msg == "":
		return pgErr.Message
	}
	return msg
}

func parseFailure(reason, message string) string {
	return fmt.Sprintf("error [%s] while parsing database message: %s", reason, message)
}

func (n *Normalizer) normalize(ctx context.Context, e *pgconn.PgError) (string, error) {
	object := e.SchemaName + "." + e.TableName

	switch e.Code {
	case CodeUniqueViolation:
		m := keyValueRe.FindStringSubmatch(e.Detail)
		if m == nil {
			return "", fmt.Errorf("%w: detail %q", errParse, e.Detail)
		}
		table, err := n.tableLabel(ctx, e.SchemaName, e.TableName)
		if err != nil {
			return "", err
		}
		cols, err := n.columnsLabel(ctx, e.SchemaName, e.TableName, m[1])
		if err != nil {
			return "", err
		}
		replaces := []string{table, cols, m[2], object + "." + e.ConstraintName}
		return n.lookup(object+"."+e.ConstraintName, "unique_violation", replaces), nil

	case CodeNotNullViolation:
		table, err := n.tableLabel(ctx, e.SchemaName, e.TableName)
		if err != nil {
			return "", err
		}
		col, err := n.columnsLabel(ctx, e.SchemaName, e.TableName, e.ColumnName)
		if err != nil {
			return "", err
		}
		return n.lookup(object+"."+e.ColumnName+"#notnull", "not_null_violation", []string{table, col}), nil

	case CodeForeignKeyViolation:
		return n.foreignKey(ctx, e)

	case CodeCheckViolation:
		fq := object + "." + e.ConstraintName
		return n.lookup(fq, "check_violation", []string{fq}), nil

	case CodeExclusionViolation:
		fq := object + "." + e.ConstraintName
		return n.lookup(fq, "exclusion_violation", []string{fq}), nil

	case CodeRaiseException:
		return n.raised(e.Message), nil
	}
	return e.Message, nil
}

// foreignKey tells the two directions apart by the verbs of the message:
// "update or delete on ..." when the row is still referenced and
// "insert or update on ..." when the referenced row is missing.
func (n *Normalizer) foreignKey(ctx context.Context, e *pgconn.PgError) (string, error) {
	object := e.SchemaName + "." + e.TableName
	fq := object + "." + e.ConstraintName
	lower := strings.ToLower(e.Message)

	table, err := n.tableLabel(ctx, e.SchemaName, e.TableName)
	if err != nil {
		return "", err
	}

	var direction string
	switch {
	case strings.Contains(lower, "update") && strings.Contains(lower, "delete"):
		direction = "ud"
	case strings.Contains(lower, "insert") && strings.Contains(lower, "update"):
		direction = "iu"
	}

	var msg string
	switch direction {
	case "ud":
		value := keyTailRe.FindStringSubmatch(e.Detail)
		parent := quotedNameRe.FindStringSubmatch(e.Message)
		if value == nil || parent == nil {
			return "", fmt.Errorf("%w: detail %q", errParse, e.Detail)
		}
		parentLabel, err := n.tableLabel(ctx, "", parent[1])
		if err != nil {
			return "", err
		}
		replaces := []string{parentLabel, table, value[1], fq}
		msg = n.lookup(fq+"#ud", "foreign_key_violation#ud", replaces)
	case "iu":
		kv := keyValueRe.FindStringSubmatch(e.Detail)
		parent := quotedNameRe.FindStringSubmatch(e.Detail)
		if kv == nil || parent == nil {
			return "", fmt.Errorf("%w: detail %q", errParse, e.Detail)
		}
		parentLabel, err := n.tableLabel(ctx, "", parent[1])
		if err != nil {
			return "", err
		}
		cols, err := n.columnsLabel(ctx, e.SchemaName, e.TableName, kv[1])
		if err != nil {
			return "", err
		}
		replaces := []string{table, cols, parentLabel, kv[2], fq}
		msg = n.lookup(fq+"#iu", "foreign_key_violation#iu", replaces)
	}
	if msg != "" {
		return msg, nil
	}
	return n.lookup(fq, "foreign_key_violation", []string{e.Detail}), nil
}

// raised resolves a message raised from PL/pgSQL. A body of the form
// {"msgcode": ..., "namespace": ..., "replaces": [...]} goes through the
// catalog; anything else is shown as is.
func (n *Normalizer) raised(message string) string {
	var payload struct {
		MsgCode   string `json:"msgcode"`
		Namespace string `json:"namespace"`
		Replaces  []any  `json:"replaces"`
	}
	if err := json.Unmarshal([]byte(message), &payload); err != nil || payload.MsgCode == "" {
		return message
	}
	replaces := make([]string, len(payload.Replaces))
	for i, r := range payload.Replaces {
		replaces[i] = fmt.Sprint(r)
	}
	if msg, ok := n.catalog.Message(payload.MsgCode, payload.Namespace, replaces); ok {
		return msg
	}
	return message
}

// lookup tries the object specific message first and the generic one next.
func (n *Normalizer) lookup(objectCode, commonCode string, replaces []string) string {
	if msg, ok := n.catalog.Message(objectCode, NamespaceObject, replaces); ok {
		return msg
	}
	msg, _ := n.catalog.Message(commonCode, NamespaceCommon, replaces)
	return msg
}

func (n *Normalizer) table(ctx context.Context, schemaName, table string) (*schema.Table, error) {
	if n.meta == nil {
		return nil, nil
	}
	t, err := n.meta.Table(ctx, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %w", errMetadata, schemaName, table, err)
	}
	return t, nil
}

func (n *Normalizer) tableLabel(ctx context.Context, schemaName, table string) (string, error) {
	t, err := n.table(ctx, schemaName, table)
	if err != nil {
		return "", err
	}
	if t == nil || t.Comment == "" {
		if schemaName == "" {
			return table, nil
		}
		return schemaName + "." + table, nil
	}
	if n.extended {
		return t.Comment + "(" + t.Schema + "." + table + ")", nil
	}
	return t.Comment, nil
}

// columnsLabel maps a comma separated column list to column comments.
func (n *Normalizer) columnsLabel(ctx context.Context, schemaName, table, columns string) (string, error) {
	t, err := n.table(ctx, schemaName, table)
	if err != nil {
		return "", err
	}
	if t == nil {
		return columns, nil
	}
	names := strings.Split(columns, ",")
	for i, name := range names {
		name = strings.TrimSpace(name)
		names[i] = name
		comment, ok := t.Column(name)
		if !ok {
			continue
		}
		if n.extended {
			names[i] = comment + "(" + name + ")"
		} else {
			names[i] = comment
		}
	}
	return strings.Join(names, ","), nil
}
