package ir

import "fmt"

// ValidationError represents a structural error found in a linked stage.
type ValidationError struct {
	Message string
	// Function is set when the error is inside a function.
	Function *FunctionHandle
	// Statement is the index of the offending top-level statement within
	// the function body, -1 if not applicable.
	Statement int
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Function != nil {
		if e.Statement >= 0 {
			return fmt.Sprintf("function %d, statement %d: %s", *e.Function, e.Statement, e.Message)
		}
		return fmt.Sprintf("function %d: %s", *e.Function, e.Message)
	}
	return e.Message
}

// validator checks the internal consistency of a linked stage.
type validator struct {
	stage  *LinkedStage
	errors []ValidationError
}

// ValidateStage checks that every handle in the linked stage resolves and
// that every call names a known function. Combining must produce a stage
// that passes; a failure here is a linker bug, not a user error.
func ValidateStage(stage *LinkedStage) []ValidationError {
	v := &validator{stage: stage}
	v.validateVariables()
	v.validateBlocks()
	v.validateFunctions()
	return v.errors
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, ValidationError{
		Message:   fmt.Sprintf(format, args...),
		Statement: -1,
	})
}

func (v *validator) addErrorInFunction(fn FunctionHandle, stmt int, format string, args ...any) {
	handle := fn
	v.errors = append(v.errors, ValidationError{
		Message:   fmt.Sprintf(format, args...),
		Function:  &handle,
		Statement: stmt,
	})
}

func (v *validator) isValidType(h TypeHandle) bool {
	_, ok := v.stage.Types.Lookup(h)
	return ok
}

func (v *validator) isValidVariable(h VariableHandle) bool {
	return int(h) < len(v.stage.Variables)
}

func (v *validator) validateVariables() {
	for i, vr := range v.stage.Variables {
		if !v.isValidType(vr.Type) {
			v.addError("variable %q (%d) has invalid type handle %d", vr.Name, i, vr.Type)
		}
		if vr.InBlock && int(vr.Block) >= len(v.stage.Blocks) {
			v.addError("variable %q (%d) references invalid block %d", vr.Name, i, vr.Block)
		}
	}
}

func (v *validator) validateBlocks() {
	for i, b := range v.stage.Blocks {
		if b.Name == "" {
			v.addError("interface block %d has no name", i)
		}
		for _, m := range b.Members {
			if !v.isValidType(m.Type) {
				v.addError("block %q member %q has invalid type handle %d", b.Name, m.Name, m.Type)
			}
		}
	}
}

func (v *validator) validateFunctions() {
	for i := range v.stage.Functions {
		fn := &v.stage.Functions[i]
		handle := FunctionHandle(i)
		for _, p := range fn.Params {
			if !v.isValidType(p.Type) {
				v.addErrorInFunction(handle, -1, "parameter %q has invalid type handle %d", p.Name, p.Type)
			}
		}
		if fn.Result != nil && !v.isValidType(*fn.Result) {
			v.addErrorInFunction(handle, -1, "result has invalid type handle %d", *fn.Result)
		}
		v.validateBody(handle, fn.Body)
	}
}

func (v *validator) validateBody(fn FunctionHandle, body Block) {
	for si := range body {
		stmt := si
		VisitStatements(body[si:si+1], func(kind StatementKind) {
			switch s := kind.(type) {
			case StmtAssign:
				if !v.isValidVariable(s.Target) {
					v.addErrorInFunction(fn, stmt, "assignment target handle %d out of range", s.Target)
				}
				for _, src := range s.Sources {
					if !v.isValidVariable(src) {
						v.addErrorInFunction(fn, stmt, "assignment source handle %d out of range", src)
					}
				}
			case StmtCall:
				if _, _, ok := v.stage.Function(s.Callee); !ok {
					v.addErrorInFunction(fn, stmt, "call to undefined function %q", s.Callee)
				}
				for _, arg := range s.Args {
					if !v.isValidVariable(arg) {
						v.addErrorInFunction(fn, stmt, "call argument handle %d out of range", arg)
					}
				}
			case StmtIf:
				if !v.isValidVariable(s.Condition) {
					v.addErrorInFunction(fn, stmt, "condition handle %d out of range", s.Condition)
				}
			}
		})
	}
}
