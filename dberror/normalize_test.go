package dberror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/Konsultn-Engineering/pgprovider/schema"
)

type fakeMeta map[string]*schema.Table

func (m fakeMeta) Table(_ context.Context, schemaName, table string) (*schema.Table, error) {
	return m[schemaName+"."+table], nil
}

type failingMeta struct{}

func (failingMeta) Table(context.Context, string, string) (*schema.Table, error) {
	return nil, errors.New("connection refused")
}

type panickingMeta struct{}

func (panickingMeta) Table(context.Context, string, string) (*schema.Table, error) {
	panic("boom")
}

var users = fakeMeta{
	"public.t": {
		Schema:  "public",
		Name:    "t",
		Comment: "Users",
		Columns: []schema.ColumnComment{{Name: "email", Comment: "E-mail"}, {Name: "id"}},
	},
}

func uniqueViolation() *pgconn.PgError {
	return &pgconn.PgError{
		Code:           CodeUniqueViolation,
		Message:        `duplicate key value violates unique constraint "c"`,
		Detail:         "Key (email)=(a@b.c) already exists.",
		SchemaName:     "public",
		TableName:      "t",
		ConstraintName: "c",
	}
}

func TestNormalizeUniqueViolation(t *testing.T) {
	ctx := context.Background()

	n := NewNormalizer(nil, WithMetadata(users))
	assert.Equal(t, "Record in Users with E-mail = a@b.c already exists", n.Normalize(ctx, uniqueViolation()))

	n = NewNormalizer(nil, WithMetadata(users), WithExtendedInfo(true))
	assert.Equal(t, "Record in Users(public.t) with E-mail(email) = a@b.c already exists", n.Normalize(ctx, uniqueViolation()))

	cat := NewStaticCatalog()
	cat.Add(NamespaceObject, "public.t.c", "E-mail {2} is already taken")
	n = NewNormalizer(cat, WithMetadata(users))
	assert.Equal(t, "E-mail a@b.c is already taken", n.Normalize(ctx, uniqueViolation()))
}

func TestNormalizeMultiColumnKey(t *testing.T) {
	e := uniqueViolation()
	e.Detail = "Key (id, email)=(7, a@b.c) already exists."

	n := NewNormalizer(nil, WithMetadata(users))
	assert.Equal(t, "Record in Users with id,E-mail = 7, a@b.c already exists", n.Normalize(context.Background(), e))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "NotNull",
			err: &pgconn.PgError{
				Code: CodeNotNullViolation, Message: "null value", SchemaName: "public", TableName: "t", ColumnName: "email",
			},
			want: "Field E-mail of Users must be filled in",
		},
		{
			name: "ForeignKeyStillReferenced",
			err: &pgconn.PgError{
				Code:           CodeForeignKeyViolation,
				Message:        `update or delete on table "roles" violates foreign key constraint "fk_r" on table "user_roles"`,
				Detail:         `Key (id)=(2) is still referenced from table "user_roles".`,
				SchemaName:     "public",
				TableName:      "user_roles",
				ConstraintName: "fk_r",
			},
			want: "Record of roles with key 2 is still referenced from public.user_roles",
		},
		{
			name: "ForeignKeyParentMissing",
			err: &pgconn.PgError{
				Code:           CodeForeignKeyViolation,
				Message:        `insert or update on table "user_roles" violates foreign key constraint "fk_r"`,
				Detail:         `Key (role_id)=(800) is not present in table "roles".`,
				SchemaName:     "public",
				TableName:      "user_roles",
				ConstraintName: "fk_r",
			},
			want: "Value 800 of role_id in public.user_roles is not present in roles",
		},
		{
			name: "ForeignKeyUnknownDirection",
			err: &pgconn.PgError{
				Code: CodeForeignKeyViolation, Message: "fk violated", Detail: "some detail",
				SchemaName: "public", TableName: "t", ConstraintName: "fk",
			},
			want: "Foreign key violation: some detail",
		},
		{
			name: "Check",
			err: &pgconn.PgError{
				Code: CodeCheckViolation, Message: "check", SchemaName: "public", TableName: "t", ConstraintName: "chk_age",
			},
			want: "Check constraint public.t.chk_age is violated",
		},
		{
			name: "Exclusion",
			err: &pgconn.PgError{
				Code: CodeExclusionViolation, Message: "excl", SchemaName: "public", TableName: "t", ConstraintName: "no_overlap",
			},
			want: "Exclusion constraint public.t.no_overlap is violated",
		},
		{
			name: "RaisedPayload",
			err: &pgconn.PgError{
				Code: CodeRaiseException, Message: `{"msgcode":"limit","namespace":"app","replaces":[5,"daily"]}`,
			},
			want: "Amount 5 exceeds the daily limit",
		},
		{
			name: "RaisedUnknownCode",
			err: &pgconn.PgError{
				Code: CodeRaiseException, Message: `{"msgcode":"nope","namespace":"app"}`,
			},
			want: `{"msgcode":"nope","namespace":"app"}`,
		},
		{
			name: "RaisedPlain",
			err:  &pgconn.PgError{Code: CodeRaiseException, Message: "Period is closed"},
			want: "Period is closed",
		},
		{
			name: "OtherCode",
			err:  &pgconn.PgError{Code: "42P01", Message: `relation "x" does not exist`},
			want: `relation "x" does not exist`,
		},
		{
			name: "Wrapped",
			err:  fmt.Errorf("query: %w", &pgconn.PgError{Code: "42601", Message: "syntax error"}),
			want: "syntax error",
		},
		{
			name: "NotADatabaseError",
			err:  errors.New("dial tcp: refused"),
			want: "dial tcp: refused",
		},
		{
			name: "UnparsableDetail",
			err:  &pgconn.PgError{Code: CodeUniqueViolation, Message: "dup", Detail: "garbage", SchemaName: "public", TableName: "t"},
			want: `error [unexpected message format: detail "garbage"] while parsing database message: dup`,
		},
	}

	cat := NewStaticCatalog()
	cat.Add("app", "limit", "Amount {0} exceeds the {1} limit")
	n := NewNormalizer(cat, WithMetadata(users))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(context.Background(), tt.err))
		})
	}
}

func TestNormalizeWithoutMetadata(t *testing.T) {
	n := NewNormalizer(nil)
	assert.Equal(t, "Record in public.t with email = a@b.c already exists", n.Normalize(context.Background(), uniqueViolation()))
}

func TestNormalizeMetadataFailure(t *testing.T) {
	n := NewNormalizer(nil, WithMetadata(failingMeta{}))
	assert.Equal(t, `duplicate key value violates unique constraint "c"`, n.Normalize(context.Background(), uniqueViolation()))
}

func TestNormalizeRecoversPanics(t *testing.T) {
	n := NewNormalizer(nil, WithMetadata(panickingMeta{}))
	assert.Equal(t, `error [boom] while parsing database message: duplicate key value violates unique constraint "c"`,
		n.Normalize(context.Background(), uniqueViolation()))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "a 1 b 2 {2}", Format("a {0} b {1} {2}", []string{"1", "2"}))
	assert.Equal(t, "plain", Format("plain", nil))
}
