package pgops

import (
	"fmt"
	"strings"

	"github.com/pgops-mcp/pgops/internal/ident"
	"github.com/pgops-mcp/pgops/internal/policy"
)

const listUsersSQL = `
SELECT
    rolname AS username,
    rolsuper AS is_superuser,
    rolcreatedb AS can_create_db,
    rolcreaterole AS can_create_role,
    rolcanlogin AS can_login,
    rolconnlimit AS connection_limit,
    rolvaliduntil AS valid_until
FROM pg_roles
WHERE rolname NOT LIKE 'pg\_%'
ORDER BY rolname;
`

const listPermissionsSQL = `
SELECT
    grantee,
    table_schema,
    table_name,
    privilege_type,
    is_grantable
FROM information_schema.table_privileges
WHERE grantee = $1
ORDER BY table_schema, table_name, privilege_type;
`

// allowedPrivileges is the GRANT/REVOKE privilege allow-list. Keys are upper
// case; input is folded before lookup.
var allowedPrivileges = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"TRUNCATE": true, "REFERENCES": true, "TRIGGER": true,
	"CREATE": true, "CONNECT": true, "TEMPORARY": true,
	"EXECUTE": true, "USAGE": true, "ALL": true, "ALL PRIVILEGES": true,
}

var allowedObjectTypes = map[string]string{
	"table":    "TABLE",
	"sequence": "SEQUENCE",
	"database": "DATABASE",
	"schema":   "SCHEMA",
	"function": "FUNCTION",
}

// quoteLiteral embeds s as a SQL string literal, doubling single quotes.
// Used only where the wire protocol cannot bind the value (CREATE ROLE
// PASSWORD).
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func userTools() []*ToolDefinition {
	return []*ToolDefinition{
		{
			Name:        "list_users",
			Description: "List database users and their role attributes",
			Class:       policy.ClassRead,
			Build:       singleRead(listUsersSQL),
		},
		{
			Name:        "create_user",
			Description: "Create a new database user",
			Class:       policy.ClassAdmin,
			Args: []ArgSpec{
				{Name: "username", Type: ArgString, Required: true, Description: "Name of the role to create"},
				{Name: "password", Type: ArgString, Required: true, Description: "Password for the new role"},
				{Name: "can_login", Type: ArgBool, Description: "Whether the role can log in (default true)"},
				{Name: "can_create_db", Type: ArgBool, Description: "Whether the role may create databases"},
				{Name: "can_create_role", Type: ArgBool, Description: "Whether the role may create other roles"},
			},
			Build: func(args Args) ([]Statement, error) {
				username := args.String("username", "")
				if err := ident.Check("username", username); err != nil {
					return nil, err
				}
				password := args.String("password", "")
				if password == "" {
					return nil, fmt.Errorf("password must not be empty")
				}

				opts := []string{"PASSWORD " + quoteLiteral(password)}
				if args.Bool("can_login", true) {
					opts = append(opts, "LOGIN")
				} else {
					opts = append(opts, "NOLOGIN")
				}
				if args.Bool("can_create_db", false) {
					opts = append(opts, "CREATEDB")
				}
				if args.Bool("can_create_role", false) {
					opts = append(opts, "CREATEROLE")
				}
				sql := fmt.Sprintf("CREATE ROLE %s WITH %s", username, strings.Join(opts, " "))
				return []Statement{{SQL: sql}}, nil
			},
			Normalize: func([]*StatementResult) (*Result, error) {
				return messageResult("role created"), nil
			},
		},
		{
			Name:        "grant_permissions",
			Description: "Grant privileges on a database object to a role",
			Class:       policy.ClassAdmin,
			Args:        grantArgs(),
			Build:       buildGrantRevoke("GRANT", "TO"),
			Normalize: func([]*StatementResult) (*Result, error) {
				return messageResult("privileges granted"), nil
			},
		},
		{
			Name:        "revoke_permissions",
			Description: "Revoke privileges on a database object from a role",
			Class:       policy.ClassAdmin,
			Args:        grantArgs(),
			Build:       buildGrantRevoke("REVOKE", "FROM"),
			Normalize: func([]*StatementResult) (*Result, error) {
				return messageResult("privileges revoked"), nil
			},
		},
		{
			Name:        "list_permissions",
			Description: "List table privileges granted to a role",
			Class:       policy.ClassRead,
			Args: []ArgSpec{
				{Name: "username", Type: ArgString, Required: true, Description: "Role to inspect"},
			},
			Build: func(args Args) ([]Statement, error) {
				return []Statement{{
					SQL:      listPermissionsSQL,
					Params:   []any{args.String("username", "")},
					WantRows: true,
				}}, nil
			},
		},
	}
}

func grantArgs() []ArgSpec {
	return []ArgSpec{
		{Name: "username", Type: ArgString, Required: true, Description: "Role receiving or losing the privileges"},
		{Name: "privileges", Type: ArgArray, Required: true, Description: "Privileges, e.g. [\"SELECT\", \"INSERT\"] or [\"ALL\"]"},
		{Name: "object_name", Type: ArgString, Required: true, Description: "Name of the object"},
		{Name: "object_type", Type: ArgString, Description: "Object type: table, sequence, database, schema, or function (defaults to table)"},
		{Name: "schema", Type: ArgString, Description: "Schema of the object (defaults to 'public', ignored for databases and schemas)"},
	}
}

// buildGrantRevoke returns the Build function shared by grant_permissions and
// revoke_permissions. verb is GRANT or REVOKE; direction is TO or FROM.
func buildGrantRevoke(verb, direction string) func(Args) ([]Statement, error) {
	return func(args Args) ([]Statement, error) {
		username := args.String("username", "")
		object := args.String("object_name", "")
		if err := checkIdents("username", username, "object_name", object); err != nil {
			return nil, err
		}

		objectType, ok := allowedObjectTypes[strings.ToLower(args.String("object_type", "table"))]
		if !ok {
			return nil, fmt.Errorf("object_type must be one of: table, sequence, database, schema, function")
		}

		rawPrivs := args.Array("privileges")
		if len(rawPrivs) == 0 {
			return nil, fmt.Errorf("privileges must not be empty")
		}
		privs := make([]string, 0, len(rawPrivs))
		for i, p := range rawPrivs {
			s, ok := p.(string)
			if !ok {
				return nil, fmt.Errorf("privileges[%d] must be a string", i)
			}
			s = strings.ToUpper(strings.TrimSpace(s))
			if !allowedPrivileges[s] {
				return nil, fmt.Errorf("privileges[%d]: %q is not an allowed privilege", i, s)
			}
			privs = append(privs, s)
		}

		target := object
		switch objectType {
		case "TABLE", "SEQUENCE", "FUNCTION":
			schema := args.String("schema", "public")
			if err := ident.Check("schema", schema); err != nil {
				return nil, err
			}
			target = ident.Qualify(schema, object)
		}

		sql := fmt.Sprintf("%s %s ON %s %s %s %s",
			verb, strings.Join(privs, ", "), objectType, target, direction, username)
		return []Statement{{SQL: sql}}, nil
	}
}
