package ir

import "testing"

func validStage() *LinkedStage {
	s := NewLinkedStage(StageVertex)
	vec4 := s.Types.GetOrCreate("", VectorType{Size: Vec4, Scalar: ScalarType{Kind: Float, Width: 4}})
	pos := s.AddVariable(Variable{Name: "position", Type: vec4, Mode: ModeInput, MaxArrayAccess: -1, AssignedLocation: -1})
	out := s.AddVariable(Variable{Name: "gl_Position", Type: vec4, Mode: ModeSystemValue, BuiltIn: true, MaxArrayAccess: -1, AssignedLocation: -1})
	s.Main = s.AddFunction(Function{
		Name: "main", Defined: true,
		Body: Block{{Kind: StmtAssign{Target: out, TargetIndex: -1, Sources: []VariableHandle{pos}}}},
	})
	return s
}

func TestValidateStageClean(t *testing.T) {
	if errs := ValidateStage(validStage()); len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}
}

func TestValidateStageBadTypeHandle(t *testing.T) {
	s := validStage()
	s.Variables[0].Type = TypeHandle(99)
	errs := ValidateStage(s)
	if len(errs) == 0 {
		t.Fatal("Expected an error for an out-of-range type handle")
	}
}

func TestValidateStageUnresolvedCall(t *testing.T) {
	s := validStage()
	s.Functions[s.Main].Body = append(s.Functions[s.Main].Body,
		Statement{Kind: StmtCall{Callee: "missing"}})
	errs := ValidateStage(s)
	if len(errs) == 0 {
		t.Fatal("Expected an error for a call to an undefined function")
	}
	if errs[0].Function == nil || *errs[0].Function != s.Main {
		t.Errorf("Expected error attributed to main, got %+v", errs[0])
	}
}

func TestValidateStageBadVariableHandle(t *testing.T) {
	s := validStage()
	s.Functions[s.Main].Body = Block{
		{Kind: StmtAssign{Target: VariableHandle(42), TargetIndex: -1}},
	}
	errs := ValidateStage(s)
	if len(errs) == 0 {
		t.Fatal("Expected an error for an out-of-range variable handle")
	}
	if errs[0].Statement != 0 {
		t.Errorf("Expected error at statement 0, got %d", errs[0].Statement)
	}
}
