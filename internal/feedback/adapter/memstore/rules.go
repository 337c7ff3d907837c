package memstore

import (
	"fmt"
	"time"

	"feedback-sync/internal/feedback/domain/model"

	"github.com/google/cel-go/cel"
)

// Default rules: a user may only listen to and create their own records.
const (
	DefaultReadRule  = `auth != null && request.query.userId == auth.uid`
	DefaultWriteRule = `auth != null && request.resource.data.userId == auth.uid`
)

// Rules are CEL expressions evaluated against auth and request. auth is null
// for anonymous calls and {"uid": ...} otherwise. For reads request carries
// path and query (field -> value of the equality filters); for writes it
// carries path, time and resource.data. Evaluation errors deny.
type Rules struct {
	read  cel.Program
	write cel.Program
}

func newRulesEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("auth", cel.DynType),
		cel.Variable("request", cel.DynType),
	)
}

// NewRules compiles the read and write expressions.
func NewRules(readExpr, writeExpr string) (*Rules, error) {
	env, err := newRulesEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	read, err := compile(env, readExpr)
	if err != nil {
		return nil, fmt.Errorf("read rule: %w", err)
	}
	write, err := compile(env, writeExpr)
	if err != nil {
		return nil, fmt.Errorf("write rule: %w", err)
	}
	return &Rules{read: read, write: write}, nil
}

// DefaultRules compiles DefaultReadRule and DefaultWriteRule.
func DefaultRules() *Rules {
	r, err := NewRules(DefaultReadRule, DefaultWriteRule)
	if err != nil {
		panic(err)
	}
	return r
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return prg, nil
}

// AllowRead decides whether uid may listen to q.
func (r *Rules) AllowRead(uid string, q model.Query) (bool, error) {
	filters := make(map[string]interface{}, len(q.Filters))
	for _, f := range q.Filters {
		filters[f.Field] = f.Value
	}
	return eval(r.read, uid, map[string]interface{}{
		"path":  q.Collection,
		"query": filters,
	})
}

// AllowWrite decides whether uid may create a document with data in collection.
func (r *Rules) AllowWrite(uid, collection string, data map[string]interface{}, now time.Time) (bool, error) {
	return eval(r.write, uid, map[string]interface{}{
		"path":     collection,
		"time":     now,
		"resource": map[string]interface{}{"data": resolveTimestamps(data, now)},
	})
}

func eval(prg cel.Program, uid string, request map[string]interface{}) (bool, error) {
	var auth interface{}
	if uid != "" {
		auth = map[string]interface{}{"uid": uid}
	}
	out, _, err := prg.Eval(map[string]interface{}{
		"auth":    auth,
		"request": request,
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean value")
	}
	return allowed, nil
}

// resolveTimestamps copies data with every ServerTimestamp sentinel replaced by now.
func resolveTimestamps(data map[string]interface{}, now time.Time) map[string]interface{} {
	out := model.CloneData(data)
	for _, field := range model.ServerTimestampFields(data) {
		out[field] = now
	}
	return out
}
