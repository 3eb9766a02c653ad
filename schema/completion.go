package schema

import "strings"

// Completion components.
const (
	ComponentAction  = "action"
	ComponentDataset = "dataset"
)

// CompletionStatement returns a :name template listing candidates for an
// editor prefix. The template binds :prefix, :limit and :tableName. It is
// empty when the component has nothing to offer for the prefix.
//
//	"pub"             schemas
//	"public.us"       tables, views and routines of a schema
//	"public.users.na" columns of a table and the tables they reference
func CompletionStatement(component, prefix, table string) string {
	if !strings.Contains(prefix, ".") {
		return completeSchemas
	}
	switch component {
	case ComponentAction:
		return completeRoutines
	case ComponentDataset:
		switch {
		case table != "":
			return completeTableColumns
		case strings.Count(prefix, ".") >= 2:
			return completeColumnRefs
		default:
			return completeRelations
		}
	}
	return ""
}

const completeSchemas = `select t.schema_name as name, null as description, 'schema' as meta
  from information_schema.schemata t
 where t.schema_name like :prefix||'%'
 order by 1 asc, 3 asc
 limit :limit`

const completeRoutines = `select * from (
  select r.routine_schema||'.'||r.routine_name as name, null as description, r.routine_type as meta
    from information_schema.routines r
   where r.routine_schema = split_part(:prefix,'.',1)
     and r.routine_name like split_part(:prefix,'.',2)||'%'
  ) as f
 order by 1 asc, 3 asc
 limit :limit`

const completeTableColumns = `select c.column_name as name, 'column' as meta, c.udt_name as datatype
  from information_schema.columns c
 where c.table_schema = split_part(:tableName,'.',1)
   and c.table_name = split_part(:tableName,'.',2)`

const completeColumnRefs = `select * from (
  select t.table_schema||'.'||t.table_name||'.'||t.column_name as name,
         null as description,
         'column('||t.data_type||')' as meta
    from information_schema.columns t
   where t.table_schema = split_part(:prefix,'.',1)
     and t.table_name = split_part(:prefix,'.',2)
     and t.column_name like split_part(:prefix,'.',3)||'%'
  union all
  select :prefix||' -> '||(t6.nspname||'.'||t4.relname)::text as name,
         null as description,
         'reference table' as meta
    from pg_catalog.pg_namespace t1,
         pg_catalog.pg_class t2,
         pg_catalog.pg_constraint t3,
         pg_catalog.pg_class t4,
         pg_catalog.pg_namespace t6,
         pg_catalog.pg_attribute t5
   where t1.nspname = split_part(:prefix,'.',1)
     and t2.relnamespace = t1.oid
     and t2.relname = split_part(:prefix,'.',2)
     and t3.conrelid = t2.oid
     and t4.oid = t3.confrelid
     and t6.oid = t4.relnamespace
     and t5.attrelid = t2.oid
     and t5.attnum = any(t3.conkey)
     and t5.attname = split_part(:prefix,'.',3)::name
  ) as f
 order by 1 asc, 3 asc
 limit :limit`

const completeRelations = `select * from (
  select t.table_schema||'.'||t.table_name as name, null as description, t.table_type as meta
    from information_schema.tables t
   where t.table_schema = split_part(:prefix,'.',1)
     and t.table_name like split_part(:prefix,'.',2)||'%'
     and t.table_type in ('BASE TABLE','VIEW')
  union all
  select r.routine_schema||'.'||r.routine_name as name, null as description, r.routine_type as meta
    from information_schema.routines r
   where r.routine_schema = split_part(:prefix,'.',1)
     and r.routine_name like split_part(:prefix,'.',2)||'%'
  ) as f
 order by 1 asc, 3 asc
 limit :limit`
