package ir

// Statement represents a statement in a function body.
// The linker does not execute code; bodies carry only the structure needed
// for cross-unit analysis: which variables are read and written, which
// functions are called, and which vertex streams are emitted.
type Statement struct {
	Kind StatementKind
}

// StatementKind represents the different kinds of statements.
type StatementKind interface {
	statementKind()
}

// Block represents a sequence of statements executed in order.
type Block []Statement

// StmtAssign writes to a variable, reading zero or more sources.
// TargetIndex is the static array index written, -1 for whole-variable or
// dynamically-indexed writes.
type StmtAssign struct {
	Target      VariableHandle
	TargetIndex int32
	Sources     []VariableHandle
}

func (StmtAssign) statementKind() {}

// StmtCall calls a function by name with variable arguments.
// Callees resolve by name so calls can cross translation units; combining
// pulls the definition into the linked stage.
type StmtCall struct {
	Callee string
	Args   []VariableHandle
}

func (StmtCall) statementKind() {}

// StmtIf conditionally executes one of two blocks.
type StmtIf struct {
	Condition VariableHandle
	Accept    Block
	Reject    Block
}

func (StmtIf) statementKind() {}

// StmtLoop executes a block repeatedly.
type StmtLoop struct {
	Body Block
}

func (StmtLoop) statementKind() {}

// StmtReturn returns from the function.
type StmtReturn struct{}

func (StmtReturn) statementKind() {}

// StmtDiscard aborts the current fragment.
type StmtDiscard struct{}

func (StmtDiscard) statementKind() {}

// StmtBarrier synchronizes invocations within a work group or patch.
type StmtBarrier struct{}

func (StmtBarrier) statementKind() {}

// StmtEmitVertex emits a vertex on a geometry shader output stream.
type StmtEmitVertex struct {
	Stream int32
}

func (StmtEmitVertex) statementKind() {}

// StmtEndPrimitive completes the current output primitive on a stream.
type StmtEndPrimitive struct {
	Stream int32
}

func (StmtEndPrimitive) statementKind() {}
