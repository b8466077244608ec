package authroles

// Package authroles decides admin privilege from identity-provider claims.

import (
	"errors"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/storefront-admin/internal/ports"
)

var (
	_ ports.PrivilegeMatcher = GroupMatcher{}
	_ ports.PrivilegeMatcher = (*ExpressionMatcher)(nil)
)

// DefaultGroupsClaim is the claim GroupMatcher reads when Claim is empty.
const DefaultGroupsClaim = "groups"

// GroupMatcher grants admin when a groups claim contains one of AdminGroups.
// The claim may be a list of strings or a single string.
type GroupMatcher struct {
	Claim       string
	AdminGroups []string
}

func (m GroupMatcher) IsAdmin(claims map[string]any) (bool, error) {
	claim := m.Claim
	if claim == "" {
		claim = DefaultGroupsClaim
	}
	for _, g := range stringValues(claims[claim]) {
		for _, admin := range m.AdminGroups {
			if admin != "" && strings.EqualFold(g, admin) {
				return true, nil
			}
		}
	}
	return false, nil
}

func stringValues(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ExpressionMatcher grants admin when a JMESPath expression evaluates truthy against the claims,
// e.g. `contains(groups, 'storefront-admins') || role == 'owner'`.
type ExpressionMatcher struct {
	expr string
}

// NewExpressionMatcher compiles expr once to reject syntax errors at startup.
func NewExpressionMatcher(expr string) (*ExpressionMatcher, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("admin expression is required")
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("compile admin expression: %w", err)
	}
	return &ExpressionMatcher{expr: expr}, nil
}

func (m *ExpressionMatcher) IsAdmin(claims map[string]any) (bool, error) {
	out, err := jmespath.Search(m.expr, claims)
	if err != nil {
		return false, fmt.Errorf("evaluate admin expression: %w", err)
	}
	return truthy(out), nil
}

// truthy follows JMESPath truthiness: false, null, empty strings, lists and objects are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
