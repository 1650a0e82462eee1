// Package ident validates SQL identifiers against an allow-listed character
// set before they are interpolated into statement text. Values are always
// bound parameters; identifiers (table, column, index, schema, role names)
// cannot be bound, so this check is what prevents structural injection.
package ident

import (
	"fmt"
	"regexp"
)

// PostgreSQL identifier limit (NAMEDATALEN - 1).
const maxLen = 63

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// Valid reports whether name is a safe, unquoted SQL identifier.
func Valid(name string) bool {
	return len(name) > 0 && len(name) <= maxLen && identRe.MatchString(name)
}

// Check returns a descriptive error naming the offending field when name is
// not a valid identifier.
func Check(field, name string) error {
	if name == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if len(name) > maxLen {
		return fmt.Errorf("%s %q exceeds %d characters", field, name, maxLen)
	}
	if !identRe.MatchString(name) {
		return fmt.Errorf("%s %q contains characters outside [A-Za-z0-9_$] (identifiers are never interpolated from free text)", field, name)
	}
	return nil
}

// Qualify joins a validated schema and object name into schema.name.
// Both parts must have passed Check; Qualify panics otherwise, as an
// internal contract violation.
func Qualify(schema, name string) string {
	if !Valid(schema) || !Valid(name) {
		panic(fmt.Sprintf("ident: Qualify called with unvalidated identifier %q.%q", schema, name))
	}
	return schema + "." + name
}
