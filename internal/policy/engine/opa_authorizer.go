package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	layoutdomain "layoutaria/internal/layout/domain"
	userdomain "layoutaria/internal/user/domain"
)

const decisionQuery = "data.layoutaria.layouts.decision"

// DefaultLayoutPolicy grants read on public layouts, and read and write to the
// owner and to admins.
const DefaultLayoutPolicy = `package layoutaria.layouts

default allow_read := false

default allow_write := false

is_admin if input.actor.role == "admin"

is_owner if {
	input.actor.id != ""
	input.actor.id == input.layout.owner_id
}

allow_read if input.layout.is_public

allow_read if is_owner

allow_read if is_admin

allow_write if is_owner

allow_write if is_admin

decision := {"read": allow_read, "write": allow_write}
`

var errNoDecision = errors.New("policy query returned no decision")

// OPAAuthorizer evaluates layout access with an OPA Rego policy compiled once at start.
type OPAAuthorizer struct {
	query  rego.PreparedEvalQuery
	logger *slog.Logger
}

// NewOPAAuthorizer compiles policy, or DefaultLayoutPolicy when policy is
// empty. The policy must define data.layoutaria.layouts.decision as an object
// with boolean "read" and "write".
func NewOPAAuthorizer(ctx context.Context, policy string, logger *slog.Logger) (*OPAAuthorizer, error) {
	if policy == "" {
		policy = DefaultLayoutPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	compiler, err := ast.CompileModules(map[string]string{"layouts.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile layout policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(decisionQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare layout policy: %w", err)
	}
	return &OPAAuthorizer{query: pq, logger: logger}, nil
}

// LoadPolicyFile reads a Rego policy from path. An empty path yields the built-in policy.
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return DefaultLayoutPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read layout policy: %w", err)
	}
	return string(b), nil
}

// Authorize evaluates the policy for actor and layout. Errors deny.
func (a *OPAAuthorizer) Authorize(ctx context.Context, actor userdomain.Actor, layout *layoutdomain.Layout) (Decision, error) {
	rs, err := a.query.Eval(ctx, rego.EvalInput(buildInput(actor, layout)))
	if err != nil {
		a.logger.ErrorContext(ctx, "policy: evaluation failed", "layout_id", layout.ID, "error", err)
		return Decision{}, fmt.Errorf("eval layout policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, errNoDecision
	}
	obj, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, errNoDecision
	}
	read, _ := obj["read"].(bool)
	write, _ := obj["write"].(bool)
	return Decision{Read: read, Write: write}, nil
}

// HealthCheck evaluates the compiled policy against a minimal input. Returns nil on success.
func (a *OPAAuthorizer) HealthCheck(ctx context.Context) error {
	_, err := a.Authorize(ctx, userdomain.Actor{}, &layoutdomain.Layout{ID: "health", IsPublic: true})
	return err
}

func buildInput(actor userdomain.Actor, layout *layoutdomain.Layout) map[string]interface{} {
	return map[string]interface{}{
		"actor": map[string]interface{}{
			"id":   actor.ID,
			"role": string(actor.Role),
		},
		"layout": map[string]interface{}{
			"id":        layout.ID,
			"owner_id":  layout.OwnerID,
			"is_public": layout.IsPublic,
		},
	}
}
