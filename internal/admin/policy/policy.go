// Package policy authorises operator commands with an in-process OPA Rego policy.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Operator commands, without the leading slash.
const (
	CommandStartRSVP = "start_rsvp"
	CommandStats     = "stats"
	CommandExport    = "export"
	CommandPromote   = "promote"
)

const query = "data.rsvpbot.admin.allow"

// Default admin policy: a command is allowed only for a configured operator chat and only when it
// is one of the known operator commands.
const defaultRegoPolicy = `package rsvpbot.admin

default allow := false

commands := {"start_rsvp", "stats", "export", "promote"}

operator if {
	some id in input.admins
	id == input.chat_id
}

allow if {
	operator
	input.command in commands
}
`

// Authorizer evaluates the admin policy for the configured operator chats.
type Authorizer struct {
	prepared rego.PreparedEvalQuery
	admins   []interface{}
	ids      map[int64]struct{}
}

// NewAuthorizer compiles the admin policy once and binds it to adminIDs. An empty list denies every command.
func NewAuthorizer(ctx context.Context, adminIDs []int64) (*Authorizer, error) {
	compiler, err := compile()
	if err != nil {
		return nil, err
	}
	prepared, err := rego.New(rego.Query(query), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare admin policy: %w", err)
	}
	a := &Authorizer{
		prepared: prepared,
		admins:   make([]interface{}, 0, len(adminIDs)),
		ids:      make(map[int64]struct{}, len(adminIDs)),
	}
	for _, id := range adminIDs {
		a.admins = append(a.admins, strconv.FormatInt(id, 10))
		a.ids[id] = struct{}{}
	}
	return a, nil
}

func compile() (*ast.Compiler, error) {
	compiler, err := ast.CompileModules(map[string]string{"admin.rego": defaultRegoPolicy})
	if err != nil {
		return nil, fmt.Errorf("compile admin policy: %w", err)
	}
	return compiler, nil
}

// IsOperator reports whether chatID is one of the configured operator chats.
func (a *Authorizer) IsOperator(chatID int64) bool {
	if a == nil {
		return false
	}
	_, ok := a.ids[chatID]
	return ok
}

// Allow reports whether chatID may run command. A nil Authorizer denies everything.
func (a *Authorizer) Allow(ctx context.Context, chatID int64, command string) (bool, error) {
	if a == nil {
		return false, nil
	}
	return a.eval(ctx, a.prepared, chatID, command)
}

func (a *Authorizer) eval(ctx context.Context, q rego.PreparedEvalQuery, chatID int64, command string) (bool, error) {
	input := map[string]interface{}{
		"chat_id": strconv.FormatInt(chatID, 10),
		"command": command,
		"admins":  a.admins,
	}
	rs, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval admin policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, errors.New("admin policy: allow is not a boolean")
	}
	return allowed, nil
}

// HealthCheck compiles the admin policy from scratch and evaluates it for a probe operator.
// Does not touch the configured operator list. Returns nil on success.
func (a *Authorizer) HealthCheck(ctx context.Context) error {
	compiler, err := compile()
	if err != nil {
		return err
	}
	q, err := rego.New(rego.Query(query), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("prepare admin policy: %w", err)
	}
	probe := &Authorizer{admins: []interface{}{"1"}}
	allowed, err := probe.eval(ctx, q, 1, CommandStats)
	if err != nil {
		return err
	}
	if !allowed {
		return errors.New("admin policy: probe operator was denied")
	}
	return nil
}
