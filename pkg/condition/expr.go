package condition

import (
	"fmt"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// exprEnvShape is the variable set expressions compile against. Keep in sync with StepContext.Env.
var exprEnvShape = (&domain.StepContext{}).Env()

// Compile checks an expression source without evaluating it. Catalog validation uses it
// to reject broken expressions at load time.
func Compile(source string) error {
	_, err := expr.Compile(source, expr.Env(exprEnvShape), expr.AsBool())
	if err != nil {
		return fmt.Errorf("compile condition %q: %w", source, err)
	}
	return nil
}

func (e *Evaluator) evaluateExpr(cond domain.Condition, ctx *domain.StepContext) bool {
	source, ok := cond.Value.(string)
	if !ok || source == "" {
		e.logger.Warn("expression condition without source, evaluating as false")
		return false
	}

	program, err := e.program(source)
	if err != nil {
		e.logger.Warn("expression condition failed to compile, evaluating as false", "expr", source, "err", err)
		return false
	}

	output, err := expr.Run(program, ctx.Env())
	if err != nil {
		e.logger.Warn("expression condition failed, evaluating as false", "expr", source, "err", err)
		return false
	}
	result, ok := output.(bool)
	if !ok {
		return false
	}
	return result
}

func (e *Evaluator) program(source string) (*vm.Program, error) {
	e.mu.RLock()
	p, ok := e.programs[source]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := expr.Compile(source, expr.Env(exprEnvShape), expr.AsBool())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[source] = p
	e.mu.Unlock()
	return p, nil
}
