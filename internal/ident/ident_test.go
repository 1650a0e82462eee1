package ident

import (
	"strings"
	"testing"
)

func TestValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"simple", "users", true},
		{"underscore prefix", "_private", true},
		{"mixed case", "UserAccounts", true},
		{"digits and dollar", "t1$partition", true},
		{"max length", strings.Repeat("a", 63), true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 64), false},
		{"leading digit", "1users", false},
		{"space", "user accounts", false},
		{"semicolon injection", "users; DROP TABLE users", false},
		{"comment injection", "users--", false},
		{"quote breakout", `users"`, false},
		{"dot", "public.users", false},
		{"parenthesis", "users()", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.input); got != tt.want {
				t.Errorf("Valid(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCheckNamesField(t *testing.T) {
	err := Check("table_name", "users; DROP TABLE users")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "table_name") {
		t.Errorf("error %q does not name the offending field", err)
	}

	if err := Check("table_name", "users"); err != nil {
		t.Errorf("Check on valid identifier: %v", err)
	}
}

func TestQualify(t *testing.T) {
	if got := Qualify("public", "users"); got != "public.users" {
		t.Errorf("Qualify = %q, want public.users", got)
	}
}

func TestQualifyPanicsOnUnvalidatedInput(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Qualify("public", "users; DROP TABLE users")
}
