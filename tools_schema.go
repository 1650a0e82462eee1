package pgops

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pgops-mcp/pgops/internal/ident"
	"github.com/pgops-mcp/pgops/internal/policy"
)

// clauseRe allow-lists DDL fragment text (column types, constraint clauses,
// ALTER actions, WHERE clauses): word characters and the operator set such
// fragments legitimately need, including containment (@>), concatenation
// (||), regex match (~), and JSON path (#>>) operators. Nothing in the set
// can terminate or comment out a statement; those are rejected separately.
var clauseRe = regexp.MustCompile(`^[A-Za-z0-9_$ ,()'"\[\].=<>!?%+*/:@|~#&^-]+$`)

// checkClause validates a caller-supplied SQL fragment that cannot be
// parameter-bound (DDL text, WHERE clauses). Statement terminators and
// comment introducers are rejected outright; everything else must come from
// the allow-listed character set.
func checkClause(field, s string) error {
	if s == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if strings.ContainsAny(s, ";") {
		return fmt.Errorf("%s must not contain a statement terminator", field)
	}
	if strings.Contains(s, "--") || strings.Contains(s, "/*") {
		return fmt.Errorf("%s must not contain SQL comments", field)
	}
	if !clauseRe.MatchString(s) {
		return fmt.Errorf("%s contains characters outside the allowed set", field)
	}
	return nil
}

// schemaTools is the DDL catalogue. Identifiers are validated against the
// allow-listed character set before interpolation; free-text fragments go
// through checkClause.
func schemaTools() []*ToolDefinition {
	schemaArg := ArgSpec{Name: "schema", Type: ArgString, Description: "Schema name (defaults to 'public')"}

	return []*ToolDefinition{
		{
			Name:        "create_table",
			Description: "Create a new table",
			Class:       policy.ClassWrite,
			Args: []ArgSpec{
				{Name: "table_name", Type: ArgString, Required: true, Description: "Name of the table"},
				{Name: "columns", Type: ArgArray, Required: true, Description: "Column definitions: objects with name, type, and optional constraints"},
				schemaArg,
			},
			Build: buildCreateTable,
		},
		{
			Name:        "drop_table",
			Description: "Drop a table",
			Class:       policy.ClassWrite,
			Args: []ArgSpec{
				{Name: "table_name", Type: ArgString, Required: true, Description: "Table name"},
				schemaArg,
				{Name: "cascade", Type: ArgBool, Description: "Drop dependent objects too"},
			},
			Build: func(args Args) ([]Statement, error) {
				schema := args.String("schema", "public")
				table := args.String("table_name", "")
				if err := checkIdents("schema", schema, "table_name", table); err != nil {
					return nil, err
				}
				sql := "DROP TABLE " + ident.Qualify(schema, table)
				if args.Bool("cascade", false) {
					sql += " CASCADE"
				}
				return []Statement{{SQL: sql}}, nil
			},
		},
		{
			Name:        "alter_table",
			Description: "Alter a table structure (e.g. action \"ADD COLUMN name VARCHAR(100)\")",
			Class:       policy.ClassWrite,
			Args: []ArgSpec{
				{Name: "table_name", Type: ArgString, Required: true, Description: "Table name"},
				{Name: "action", Type: ArgString, Required: true, Description: "ALTER TABLE action"},
				schemaArg,
			},
			Build: func(args Args) ([]Statement, error) {
				schema := args.String("schema", "public")
				table := args.String("table_name", "")
				action := args.String("action", "")
				if err := checkIdents("schema", schema, "table_name", table); err != nil {
					return nil, err
				}
				if err := checkClause("action", action); err != nil {
					return nil, err
				}
				return []Statement{{SQL: fmt.Sprintf("ALTER TABLE %s %s", ident.Qualify(schema, table), action)}}, nil
			},
		},
		{
			Name:        "create_index",
			Description: "Create an index on a table",
			Class:       policy.ClassWrite,
			Args: []ArgSpec{
				{Name: "index_name", Type: ArgString, Required: true, Description: "Index name"},
				{Name: "table_name", Type: ArgString, Required: true, Description: "Table name"},
				{Name: "columns", Type: ArgArray, Required: true, Description: "Column names to index"},
				schemaArg,
				{Name: "unique", Type: ArgBool, Description: "Create a unique index"},
			},
			Build: func(args Args) ([]Statement, error) {
				schema := args.String("schema", "public")
				table := args.String("table_name", "")
				index := args.String("index_name", "")
				if err := checkIdents("schema", schema, "table_name", table, "index_name", index); err != nil {
					return nil, err
				}
				cols, err := identList("columns", args.Array("columns"))
				if err != nil {
					return nil, err
				}
				unique := ""
				if args.Bool("unique", false) {
					unique = "UNIQUE "
				}
				sql := fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
					unique, index, ident.Qualify(schema, table), strings.Join(cols, ", "))
				return []Statement{{SQL: sql}}, nil
			},
		},
		{
			Name:        "drop_index",
			Description: "Drop an index",
			Class:       policy.ClassWrite,
			Args: []ArgSpec{
				{Name: "index_name", Type: ArgString, Required: true, Description: "Index name"},
				schemaArg,
				{Name: "cascade", Type: ArgBool, Description: "Drop dependent objects too"},
			},
			Build: func(args Args) ([]Statement, error) {
				schema := args.String("schema", "public")
				index := args.String("index_name", "")
				if err := checkIdents("schema", schema, "index_name", index); err != nil {
					return nil, err
				}
				sql := "DROP INDEX " + ident.Qualify(schema, index)
				if args.Bool("cascade", false) {
					sql += " CASCADE"
				}
				return []Statement{{SQL: sql}}, nil
			},
		},
		{
			Name:        "get_table_ddl",
			Description: "Generate a CREATE TABLE statement for an existing table",
			Class:       policy.ClassRead,
			Args: []ArgSpec{
				{Name: "table_name", Type: ArgString, Required: true, Description: "Table name"},
				schemaArg,
			},
			Build: func(args Args) ([]Statement, error) {
				schema := args.String("schema", "public")
				table := args.String("table_name", "")
				if err := checkIdents("schema", schema, "table_name", table); err != nil {
					return nil, err
				}
				p := []any{schema, table}
				return []Statement{
					{SQL: listColumnsSQL, Params: p, WantRows: true},
					{SQL: "SELECT $1::text AS schema, $2::text AS name;", Params: p, WantRows: true},
				}, nil
			},
			Normalize: normalizeTableDDL,
		},
	}
}

func buildCreateTable(args Args) ([]Statement, error) {
	schema := args.String("schema", "public")
	table := args.String("table_name", "")
	if err := checkIdents("schema", schema, "table_name", table); err != nil {
		return nil, err
	}
	columns := args.Array("columns")
	if len(columns) == 0 {
		return nil, fmt.Errorf("columns must not be empty")
	}

	defs := make([]string, 0, len(columns))
	for i, c := range columns {
		col, ok := c.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("columns[%d] must be an object with name and type", i)
		}
		name, _ := col["name"].(string)
		typ, _ := col["type"].(string)
		if err := ident.Check(fmt.Sprintf("columns[%d].name", i), name); err != nil {
			return nil, err
		}
		if err := checkClause(fmt.Sprintf("columns[%d].type", i), typ); err != nil {
			return nil, err
		}
		def := name + " " + typ
		if constraints, _ := col["constraints"].(string); constraints != "" {
			if err := checkClause(fmt.Sprintf("columns[%d].constraints", i), constraints); err != nil {
				return nil, err
			}
			def += " " + constraints
		}
		defs = append(defs, def)
	}

	sql := fmt.Sprintf("CREATE TABLE %s (%s)", ident.Qualify(schema, table), strings.Join(defs, ", "))
	return []Statement{{SQL: sql}}, nil
}

// normalizeTableDDL reconstructs a CREATE TABLE statement from the
// information_schema column rows. Reapplying the returned DDL against an
// empty schema reproduces an equivalent table structure.
func normalizeTableDDL(batch []*StatementResult) (*Result, error) {
	rows := batch[0].Rows
	if len(rows) == 0 {
		return nil, fmt.Errorf("table not found or has no columns")
	}

	qualified := "unknown"
	if len(batch) > 1 && len(batch[1].Rows) > 0 {
		qualified = fmt.Sprintf("%v.%v", batch[1].Rows[0]["schema"], batch[1].Rows[0]["name"])
	}

	defs := make([]string, 0, len(rows))
	for _, row := range rows {
		colDef := fmt.Sprintf("%v %v", row["column_name"], row["data_type"])
		if maxLen := row["character_maximum_length"]; maxLen != nil {
			colDef += fmt.Sprintf("(%v)", maxLen)
		}
		if row["is_nullable"] == "NO" {
			colDef += " NOT NULL"
		}
		if def := row["column_default"]; def != nil && def != "" {
			colDef += fmt.Sprintf(" DEFAULT %v", def)
		}
		defs = append(defs, colDef)
	}

	ddl := "CREATE TABLE " + qualified + " (\n  " + strings.Join(defs, ",\n  ") + "\n);"
	return &Result{
		RowCount: len(rows),
		Data:     map[string]any{"ddl": ddl, "table": qualified},
	}, nil
}

// checkIdents validates field/value pairs as SQL identifiers.
func checkIdents(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := ident.Check(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// identList validates every element of a string array argument.
func identList(field string, values []any) ([]string, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%s must not be empty", field)
	}
	out := make([]string, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", field, i)
		}
		if err := ident.Check(fmt.Sprintf("%s[%d]", field, i), s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
