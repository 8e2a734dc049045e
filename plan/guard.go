package plan

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/zero-day-ai/goap/state"
)

// guardEnv is the shared CEL environment for guard expressions. Guards
// see a single variable, `state`, holding the live world state as a map
// of scalars.
var (
	guardEnvOnce sync.Once
	guardEnv     *cel.Env
	guardEnvErr  error
)

func sharedGuardEnv() (*cel.Env, error) {
	guardEnvOnce.Do(func() {
		guardEnv, guardEnvErr = cel.NewEnv(
			cel.Variable("state", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return guardEnv, guardEnvErr
}

// guardProgram is a compiled guard expression.
type guardProgram struct {
	prog cel.Program
}

// compileGuard compiles a guard expression and verifies it produces a
// boolean.
func compileGuard(expr string) (*guardProgram, error) {
	env, err := sharedGuardEnv()
	if err != nil {
		return nil, fmt.Errorf("create guard environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("guard must evaluate to bool, got %s", ast.OutputType())
	}

	prog, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return &guardProgram{prog: prog}, nil
}

// eval runs the guard against a world state.
func (g *guardProgram) eval(s state.State) (bool, error) {
	out, _, err := g.prog.Eval(map[string]any{"state": s.Map()})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("guard returned non-bool %T", out.Value())
	}
	return b, nil
}
