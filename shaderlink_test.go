package shaderlink

import (
	"strings"
	"testing"

	"github.com/gogpu/shaderlink/ir"
	"github.com/gogpu/shaderlink/limits"
)

func passthroughProgram() []*ir.TranslationUnit {
	vs := &ir.TranslationUnit{Name: "vs", Stage: ir.StageVertex, Version: 450}
	v4 := vs.AddType(ir.Type{Inner: ir.VectorType{Size: ir.Vec4, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}})
	pos := vs.AddVariable(ir.Variable{Name: "position", Type: v4, Mode: ir.ModeInput, MaxArrayAccess: -1, AssignedLocation: -1})
	glPos := vs.AddVariable(ir.Variable{
		Name: "gl_Position", Type: v4, Mode: ir.ModeSystemValue, BuiltIn: true,
		MaxArrayAccess: -1, AssignedLocation: -1,
	})
	vs.AddFunction(ir.Function{
		Name: "main", Defined: true, SubroutineIndex: -1,
		Body: ir.Block{{Kind: ir.StmtAssign{Target: glPos, TargetIndex: -1, Sources: []ir.VariableHandle{pos}}}},
	})

	fs := &ir.TranslationUnit{Name: "fs", Stage: ir.StageFragment, Version: 450}
	f4 := fs.AddType(ir.Type{Inner: ir.VectorType{Size: ir.Vec4, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}})
	out := fs.AddVariable(ir.Variable{Name: "fragColor", Type: f4, Mode: ir.ModeOutput, MaxArrayAccess: -1, AssignedLocation: -1})
	fs.AddFunction(ir.Function{
		Name: "main", Defined: true, SubroutineIndex: -1,
		Body: ir.Block{{Kind: ir.StmtAssign{Target: out, TargetIndex: -1}}},
	})
	return []*ir.TranslationUnit{vs, fs}
}

func TestLink(t *testing.T) {
	result, err := Link(passthroughProgram())
	if err != nil {
		t.Fatalf("Link failed: %v\n%s", err, result.InfoLog())
	}
	if !result.Status {
		t.Error("Expected successful link status")
	}
	if result.Stages[ir.StageVertex] == nil || result.Stages[ir.StageFragment] == nil {
		t.Error("Expected both pipeline stages in the result")
	}
}

func TestLinkWithOptionsInvalidLimits(t *testing.T) {
	lim := limits.Default()
	lim.MaxVertexAttribs = 0

	opts := DefaultOptions()
	opts.Limits = lim
	_, err := LinkWithOptions(passthroughProgram(), opts)
	if err == nil {
		t.Fatal("Expected an error for invalid limits")
	}
	if !strings.Contains(err.Error(), "invalid device limits") {
		t.Errorf("Expected invalid device limits error, got %v", err)
	}
}

func TestLinkFailureReturnsResult(t *testing.T) {
	units := passthroughProgram()
	units[0].Functions = nil // no main

	result, err := LinkWithOptions(units, DefaultOptions())
	if err == nil {
		t.Fatal("Expected link to fail")
	}
	if result == nil {
		t.Fatal("Expected a result alongside the error")
	}
	if !strings.Contains(result.InfoLog(), "vertex shader lacks `main'") {
		t.Errorf("Unexpected info log: %s", result.InfoLog())
	}
}
