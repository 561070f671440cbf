package actions

import (
	"github.com/catalystworks/catalyst/pkg/ai"
	"github.com/catalystworks/catalyst/pkg/engine"
)

// RegisterBuiltins registers the standard action set on exec. load
// resolves playbook identifiers for invoke; provider may be nil, in
// which case the ai action reports a configuration fault when used.
func RegisterBuiltins(exec *engine.Executor, load LoadFunc, provider ai.Provider) error {
	builtins := []engine.Action{
		NewBranch(exec),
		NewIterate(exec),
		NewInvoke(exec, load),
		NewFail(nil),
		NewShell(nil),
		NewHTTP(nil),
		NewLog(nil),
		NewAI(provider),
	}
	for _, a := range builtins {
		if err := exec.Register(a); err != nil {
			return err
		}
	}
	return nil
}
