package link

import "github.com/gogpu/shaderlink/ir"

// Cross-stage global validation: a uniform or buffer variable declared in
// several stages must declare the same type and qualifiers everywhere.
// The first stage's clone is the canonical entry; later stages merge into
// it and receive the resolved state back so every stage agrees.

func (c *context) crossValidateUniforms() {
	type owner struct {
		stage  *ir.LinkedStage
		handle ir.VariableHandle
	}
	seen := map[string]owner{}

	for st := ir.ShaderStage(0); st < ir.StageCount; st++ {
		s := c.res.Stages[st]
		if s == nil {
			continue
		}
		for vi := range s.Variables {
			v := &s.Variables[vi]
			if v.InBlock || (v.Mode != ir.ModeUniform && v.Mode != ir.ModeBuffer) {
				continue
			}
			own, ok := seen[v.Name]
			if !ok {
				seen[v.Name] = owner{stage: s, handle: ir.VariableHandle(vi)}
				continue
			}
			if own.stage == s {
				continue
			}
			if !c.mergeGlobalInto(own.stage, own.handle, s, v, true) {
				return
			}
			c.writeBackGlobal(own.stage, own.handle, s, v)
		}
	}
}

// writeBackGlobal copies the merged state of the canonical entry onto a
// later stage's clone, so both stages carry identical resolved qualifiers
// and array sizes.
func (c *context) writeBackGlobal(aStage *ir.LinkedStage, ah ir.VariableHandle, bStage *ir.LinkedStage, b *ir.Variable) {
	a := &aStage.Variables[ah]

	b.Qual.ExplicitLocation = a.Qual.ExplicitLocation
	b.Qual.Location = a.Qual.Location
	b.Qual.ExplicitComponent = a.Qual.ExplicitComponent
	b.Qual.Component = a.Qual.Component
	b.Qual.ExplicitBinding = a.Qual.ExplicitBinding
	b.Qual.Binding = a.Qual.Binding
	b.Qual.ExplicitOffset = a.Qual.ExplicitOffset
	b.Qual.Offset = a.Qual.Offset
	b.MaxArrayAccess = a.MaxArrayAccess

	if _, bLen, ok := ir.ArrayInfo(bStage, b.Type); ok && bLen == 0 {
		if _, aLen, ok := ir.ArrayInfo(aStage, a.Type); ok && aLen != 0 {
			if resized, err := bStage.Types.ResizeArray(b.Type, aLen); err == nil {
				b.Type = resized
			}
		}
	}
}

// compactUniformArrays shrinks implicitly-usable uniform arrays to their
// highest access across the whole program. Block members, buffer variables,
// atomic counters, subroutine uniforms and initialized arrays keep their
// declared size.
func (c *context) compactUniformArrays() {
	maxAccess := map[string]int32{}
	for _, s := range c.res.Stages {
		if s == nil {
			continue
		}
		for vi := range s.Variables {
			v := &s.Variables[vi]
			if !c.compactableUniform(s, v) {
				continue
			}
			if cur, ok := maxAccess[v.Name]; !ok || v.MaxArrayAccess > cur {
				maxAccess[v.Name] = v.MaxArrayAccess
			}
		}
	}

	for _, s := range c.res.Stages {
		if s == nil {
			continue
		}
		for vi := range s.Variables {
			v := &s.Variables[vi]
			if !c.compactableUniform(s, v) {
				continue
			}
			access, ok := maxAccess[v.Name]
			if !ok || access < 0 {
				continue
			}
			_, length, isArr := ir.ArrayInfo(s, v.Type)
			if !isArr || length == 0 || uint32(access+1) >= length {
				continue
			}
			if resized, err := s.Types.ResizeArray(v.Type, uint32(access+1)); err == nil {
				c.debugf("shrinking uniform array `%s' from %d to %d elements",
					v.Name, length, access+1)
				v.Type = resized
			}
		}
	}
}

func (c *context) compactableUniform(s *ir.LinkedStage, v *ir.Variable) bool {
	if v.Mode != ir.ModeUniform || v.InBlock || v.HasInit {
		return false
	}
	t, ok := s.TypeAt(ir.WithoutArray(s, v.Type))
	if !ok {
		return false
	}
	switch t.Inner.(type) {
	case ir.AtomicCounterType, ir.SubroutineType:
		return false
	}
	_, _, isArr := ir.ArrayInfo(s, v.Type)
	return isArr
}
