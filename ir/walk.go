package ir

// Traversal helpers over function bodies. These replace per-query visitor
// classes: each query is a plain recursive walk over the statement union.

// VisitStatements calls fn for every statement in the block, recursing into
// nested blocks in execution order.
func VisitStatements(b Block, fn func(StatementKind)) {
	for _, s := range b {
		fn(s.Kind)
		switch kind := s.Kind.(type) {
		case StmtIf:
			VisitStatements(kind.Accept, fn)
			VisitStatements(kind.Reject, fn)
		case StmtLoop:
			VisitStatements(kind.Body, fn)
		}
	}
}

// WritesVariable reports whether any statement in the block assigns to the
// variable.
func WritesVariable(b Block, v VariableHandle) bool {
	found := false
	VisitStatements(b, func(kind StatementKind) {
		if assign, ok := kind.(StmtAssign); ok && assign.Target == v {
			found = true
		}
	})
	return found
}

// MaxIndexWritten returns the highest static array index assigned to the
// variable, or -1 if it is never indexed (or only written whole).
func MaxIndexWritten(b Block, v VariableHandle) int32 {
	max := int32(-1)
	VisitStatements(b, func(kind StatementKind) {
		if assign, ok := kind.(StmtAssign); ok && assign.Target == v {
			if assign.TargetIndex > max {
				max = assign.TargetIndex
			}
		}
	})
	return max
}

// VisitReferences calls fn for every variable handle referenced in the
// block, reads and writes alike. Handles may repeat.
func VisitReferences(b Block, fn func(VariableHandle)) {
	VisitStatements(b, func(kind StatementKind) {
		switch s := kind.(type) {
		case StmtAssign:
			fn(s.Target)
			for _, src := range s.Sources {
				fn(src)
			}
		case StmtCall:
			for _, arg := range s.Args {
				fn(arg)
			}
		case StmtIf:
			fn(s.Condition)
		}
	})
}

// VisitCalls calls fn for every callee name in the block.
func VisitCalls(b Block, fn func(string)) {
	VisitStatements(b, func(kind StatementKind) {
		if call, ok := kind.(StmtCall); ok {
			fn(call.Callee)
		}
	})
}

// RemapVariables returns a copy of the block with every variable handle
// rewritten through f. Used when cloning function bodies between arenas.
func RemapVariables(b Block, f func(VariableHandle) VariableHandle) Block {
	if b == nil {
		return nil
	}
	out := make(Block, len(b))
	for i, s := range b {
		switch kind := s.Kind.(type) {
		case StmtAssign:
			sources := make([]VariableHandle, len(kind.Sources))
			for j, src := range kind.Sources {
				sources[j] = f(src)
			}
			out[i] = Statement{Kind: StmtAssign{
				Target:      f(kind.Target),
				TargetIndex: kind.TargetIndex,
				Sources:     sources,
			}}
		case StmtCall:
			args := make([]VariableHandle, len(kind.Args))
			for j, arg := range kind.Args {
				args[j] = f(arg)
			}
			out[i] = Statement{Kind: StmtCall{Callee: kind.Callee, Args: args}}
		case StmtIf:
			out[i] = Statement{Kind: StmtIf{
				Condition: f(kind.Condition),
				Accept:    RemapVariables(kind.Accept, f),
				Reject:    RemapVariables(kind.Reject, f),
			}}
		case StmtLoop:
			out[i] = Statement{Kind: StmtLoop{Body: RemapVariables(kind.Body, f)}}
		default:
			out[i] = s
		}
	}
	return out
}

// EmissionInfo summarizes geometry shader output activity in a block.
type EmissionInfo struct {
	// MaxStream is the highest stream emitted to, -1 if nothing is emitted.
	MaxStream int32
	// UsesNonZeroStream is set when any emission targets a stream above 0.
	UsesNonZeroStream bool
	// UsesEndPrimitive is set when any primitive is explicitly ended.
	UsesEndPrimitive bool
}

// ScanEmissions collects geometry output information from a block.
func ScanEmissions(b Block) EmissionInfo {
	info := EmissionInfo{MaxStream: -1}
	VisitStatements(b, func(kind StatementKind) {
		switch s := kind.(type) {
		case StmtEmitVertex:
			if s.Stream > info.MaxStream {
				info.MaxStream = s.Stream
			}
			if s.Stream > 0 {
				info.UsesNonZeroStream = true
			}
		case StmtEndPrimitive:
			if s.Stream > info.MaxStream {
				info.MaxStream = s.Stream
			}
			if s.Stream > 0 {
				info.UsesNonZeroStream = true
			}
			info.UsesEndPrimitive = true
		}
	})
	return info
}
