package pgops

import (
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"github.com/pgops-mcp/pgops/internal/ident"
	"github.com/pgops-mcp/pgops/internal/policy"
)

// psql builds statements with $1..$n placeholders. Where-clause fragments use
// ? placeholders and are rewritten at ToSql time.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// dataTools is the DML catalogue. Table and column names are validated as
// identifiers, values always travel as bound parameters, and every statement
// carries RETURNING * so callers see the affected rows.
func dataTools() []*ToolDefinition {
	schemaArg := ArgSpec{Name: "schema", Type: ArgString, Description: "Schema name (defaults to 'public')"}
	whereArg := ArgSpec{Name: "where_clause", Type: ArgString, Required: true, Description: "WHERE condition with ? placeholders for values"}
	whereParamsArg := ArgSpec{Name: "where_params", Type: ArgArray, Description: "Values bound to the ? placeholders in where_clause"}

	return []*ToolDefinition{
		{
			Name:        "insert_data",
			Description: "Insert a single row into a table",
			Class:       policy.ClassWrite,
			Args: []ArgSpec{
				{Name: "table_name", Type: ArgString, Required: true, Description: "Table name"},
				{Name: "data", Type: ArgObject, Required: true, Description: "Column name to value mapping"},
				schemaArg,
			},
			Build: func(args Args) ([]Statement, error) {
				schema := args.String("schema", "public")
				table := args.String("table_name", "")
				if err := checkIdents("schema", schema, "table_name", table); err != nil {
					return nil, err
				}
				data := args.Object("data")
				if len(data) == 0 {
					return nil, fmt.Errorf("data must not be empty")
				}
				cols, err := sortedColumns("data", data)
				if err != nil {
					return nil, err
				}
				values := make([]any, len(cols))
				for i, c := range cols {
					values[i] = data[c]
				}
				sqlText, params, err := psql.Insert(ident.Qualify(schema, table)).
					Columns(cols...).
					Values(values...).
					Suffix("RETURNING *").
					ToSql()
				if err != nil {
					return nil, err
				}
				return []Statement{{SQL: sqlText, Params: params, WantRows: true}}, nil
			},
		},
		{
			Name:        "bulk_insert",
			Description: "Insert multiple rows into a table in a single statement",
			Class:       policy.ClassWrite,
			Args: []ArgSpec{
				{Name: "table_name", Type: ArgString, Required: true, Description: "Table name"},
				{Name: "data", Type: ArgArray, Required: true, Description: "Array of column-to-value objects, all with the same keys"},
				schemaArg,
			},
			Build: buildBulkInsert,
		},
		{
			Name:        "update_data",
			Description: "Update rows matching a condition",
			Class:       policy.ClassWrite,
			Args: []ArgSpec{
				{Name: "table_name", Type: ArgString, Required: true, Description: "Table name"},
				{Name: "data", Type: ArgObject, Required: true, Description: "Column name to new value mapping"},
				whereArg,
				whereParamsArg,
				schemaArg,
			},
			Build: func(args Args) ([]Statement, error) {
				schema := args.String("schema", "public")
				table := args.String("table_name", "")
				if err := checkIdents("schema", schema, "table_name", table); err != nil {
					return nil, err
				}
				data := args.Object("data")
				if len(data) == 0 {
					return nil, fmt.Errorf("data must not be empty")
				}
				where := args.String("where_clause", "")
				if err := checkClause("where_clause", where); err != nil {
					return nil, err
				}
				cols, err := sortedColumns("data", data)
				if err != nil {
					return nil, err
				}
				b := psql.Update(ident.Qualify(schema, table))
				for _, c := range cols {
					b = b.Set(c, data[c])
				}
				sqlText, params, err := b.
					Where(sq.Expr(where, args.Array("where_params")...)).
					Suffix("RETURNING *").
					ToSql()
				if err != nil {
					return nil, err
				}
				return []Statement{{SQL: sqlText, Params: params, WantRows: true}}, nil
			},
		},
		{
			Name:        "delete_data",
			Description: "Delete rows matching a condition",
			Class:       policy.ClassWrite,
			Args: []ArgSpec{
				{Name: "table_name", Type: ArgString, Required: true, Description: "Table name"},
				whereArg,
				whereParamsArg,
				schemaArg,
			},
			Build: func(args Args) ([]Statement, error) {
				schema := args.String("schema", "public")
				table := args.String("table_name", "")
				if err := checkIdents("schema", schema, "table_name", table); err != nil {
					return nil, err
				}
				where := args.String("where_clause", "")
				if err := checkClause("where_clause", where); err != nil {
					return nil, err
				}
				sqlText, params, err := psql.Delete(ident.Qualify(schema, table)).
					Where(sq.Expr(where, args.Array("where_params")...)).
					Suffix("RETURNING *").
					ToSql()
				if err != nil {
					return nil, err
				}
				return []Statement{{SQL: sqlText, Params: params, WantRows: true}}, nil
			},
		},
	}
}

func buildBulkInsert(args Args) ([]Statement, error) {
	schema := args.String("schema", "public")
	table := args.String("table_name", "")
	if err := checkIdents("schema", schema, "table_name", table); err != nil {
		return nil, err
	}
	rows := args.Array("data")
	if len(rows) == 0 {
		return nil, fmt.Errorf("data must not be empty")
	}

	first, ok := rows[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("data[0] must be an object")
	}
	cols, err := sortedColumns("data[0]", first)
	if err != nil {
		return nil, err
	}

	b := psql.Insert(ident.Qualify(schema, table)).Columns(cols...)
	for i, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("data[%d] must be an object", i)
		}
		if len(row) != len(cols) {
			return nil, fmt.Errorf("data[%d] has %d keys, expected %d", i, len(row), len(cols))
		}
		values := make([]any, len(cols))
		for j, c := range cols {
			v, present := row[c]
			if !present {
				return nil, fmt.Errorf("data[%d] is missing key %q", i, c)
			}
			values[j] = v
		}
		b = b.Values(values...)
	}

	sqlText, params, err := b.Suffix("RETURNING *").ToSql()
	if err != nil {
		return nil, err
	}
	return []Statement{{SQL: sqlText, Params: params, WantRows: true}}, nil
}

// sortedColumns validates the keys of a data object as identifiers and
// returns them in deterministic order.
func sortedColumns(field string, data map[string]any) ([]string, error) {
	cols := make([]string, 0, len(data))
	for c := range data {
		if err := ident.Check(fmt.Sprintf("%s key", field), c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols, nil
}
