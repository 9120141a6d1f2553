package link

import (
	"strings"

	"github.com/gogpu/shaderlink/ir"
)

// ResourceKind classifies entries of the program resource list.
type ResourceKind uint8

const (
	ResProgramInput ResourceKind = iota
	ResProgramOutput
	ResTransformFeedbackVarying
	ResTransformFeedbackBuffer
	ResUniform
	ResUniformBlock
	ResAtomicCounterBuffer
	ResBufferVariable
	ResStorageBlock
	ResSubroutine
	ResSubroutineUniform
)

// String returns the interface name of the resource kind.
func (k ResourceKind) String() string {
	switch k {
	case ResProgramInput:
		return "program input"
	case ResProgramOutput:
		return "program output"
	case ResTransformFeedbackVarying:
		return "transform feedback varying"
	case ResTransformFeedbackBuffer:
		return "transform feedback buffer"
	case ResUniform:
		return "uniform"
	case ResUniformBlock:
		return "uniform block"
	case ResAtomicCounterBuffer:
		return "atomic counter buffer"
	case ResBufferVariable:
		return "buffer variable"
	case ResStorageBlock:
		return "shader storage block"
	case ResSubroutine:
		return "subroutine"
	case ResSubroutineUniform:
		return "subroutine uniform"
	}
	return "unknown"
}

// ShaderVariable is the introspection record of a program input or output.
// Struct-typed interfaces expand into one record per member with dotted
// names.
type ShaderVariable struct {
	Name string
	Type ir.TypeHandle
	Src  *ir.LinkedStage

	Location         int32
	Component        uint8
	HasComponent     bool
	Index            int32
	Patch            bool
	Interpolation    ir.Interpolation
	ExplicitLocation bool
	BuiltIn          bool
}

// Resource is one entry of the program resource list. Exactly one of the
// payload pointers is set, matching Kind.
type Resource struct {
	Kind      ResourceKind
	Name      string
	StageRefs uint8
	// Stage is set for the per-stage kinds (subroutines and subroutine
	// uniforms).
	Stage ir.ShaderStage

	Variable       *ShaderVariable
	Uniform        *UniformStorage
	Block          *CanonicalBlock
	AtomicBuffer   *AtomicBuffer
	Feedback       *FeedbackVarying
	FeedbackBuffer *FeedbackBuffer
	Subroutine     *SubroutineFunction
}

// buildResourceList assembles the program resource list: inputs of the
// first stage, outputs of the last, transform feedback captures, uniforms,
// blocks, atomic counter buffers, buffer variables and subroutines.
func (c *context) buildResourceList() {
	add := func(r *Resource) { c.res.Resources = append(c.res.Resources, r) }
	refs := c.collectReferences()

	first, last := c.boundaryStages()
	if first != nil {
		c.addInterfaceResources(add, refs, first, ir.ModeInput, ResProgramInput)
	}
	if last != nil {
		c.addInterfaceResources(add, refs, last, ir.ModeOutput, ResProgramOutput)
	}

	if fb := c.res.Feedback; fb != nil {
		for _, fv := range fb.Varyings {
			add(&Resource{Kind: ResTransformFeedbackVarying, Name: fv.Name, Feedback: fv})
		}
		for i := range fb.Buffers {
			add(&Resource{Kind: ResTransformFeedbackBuffer, FeedbackBuffer: &fb.Buffers[i]})
		}
	}

	for _, u := range c.res.Uniforms {
		if u.Hidden || u.IsStorage {
			continue
		}
		if u.IsSubroutineUniform() {
			continue
		}
		add(&Resource{Kind: ResUniform, Name: u.Name, StageRefs: refs.maskFor(u.Name), Uniform: u})
	}
	for _, b := range c.res.UniformBlocks {
		add(&Resource{Kind: ResUniformBlock, Name: b.Key(), StageRefs: refs.blockMask(b), Block: b})
	}
	for i := range c.atomicBuffers {
		add(&Resource{Kind: ResAtomicCounterBuffer, AtomicBuffer: &c.atomicBuffers[i]})
	}
	for _, u := range c.res.Uniforms {
		if u.Hidden || !u.IsStorage {
			continue
		}
		add(&Resource{Kind: ResBufferVariable, Name: u.Name, StageRefs: refs.maskFor(u.Name), Uniform: u})
	}
	for _, b := range c.res.StorageBlocks {
		add(&Resource{Kind: ResStorageBlock, Name: b.Key(), StageRefs: refs.blockMask(b), Block: b})
	}

	for st := ir.ShaderStage(0); st < ir.StageCount; st++ {
		for _, fn := range c.subroutines[st] {
			add(&Resource{Kind: ResSubroutine, Name: fn.Name, Stage: st, StageRefs: st.Bit(), Subroutine: fn})
		}
		for _, u := range c.res.Uniforms {
			if u.IsSubroutineUniform() && u.StageRefs&st.Bit() != 0 {
				add(&Resource{Kind: ResSubroutineUniform, Name: u.Name, Stage: st, StageRefs: st.Bit(), Uniform: u})
			}
		}
	}
}

func (c *context) boundaryStages() (first, last *ir.LinkedStage) {
	if cs := c.res.Stages[ir.StageCompute]; cs != nil {
		return nil, nil
	}
	if len(c.pipeline) == 0 {
		return nil, nil
	}
	return c.pipeline[0], c.pipeline[len(c.pipeline)-1]
}

// addInterfaceResources lists a boundary stage's interface variables,
// expanding struct types into per-member records.
func (c *context) addInterfaceResources(add func(*Resource), refs *referenceSet, s *ir.LinkedStage, mode ir.StorageMode, kind ResourceKind) {
	for vi := range s.Variables {
		v := &s.Variables[vi]
		if v.Mode != mode || v.Declared == ir.DeclaredHidden {
			continue
		}
		if !v.BuiltIn && v.AssignedLocation < 0 && !v.Qual.ExplicitLocation {
			// Eliminated from the interface.
			continue
		}
		var mask uint8
		if refs.matches(s.Stage, v.Name) {
			mask = s.Stage.Bit()
		}
		c.addShaderVariable(add, s, v, v.Name, v.Type, v.AssignedLocation, kind, mask)
	}
}

// addShaderVariable emits resource records for a variable, recursing into
// struct members with dotted names and advancing the location per member.
func (c *context) addShaderVariable(add func(*Resource), s *ir.LinkedStage, v *ir.Variable, name string, t ir.TypeHandle, loc int32, kind ResourceKind, refs uint8) {
	typ, ok := s.TypeAt(t)
	if !ok {
		return
	}
	if st, isStruct := typ.Inner.(ir.StructType); isStruct {
		memberLoc := loc
		for _, m := range st.Members {
			c.addShaderVariable(add, s, v, name+"."+m.Name, m.Type, memberLoc, kind, refs)
			if memberLoc >= 0 {
				memberLoc += int32(ir.SlotCount(s, m.Type, false))
			}
		}
		return
	}

	add(&Resource{
		Kind:      kind,
		Name:      name,
		StageRefs: refs,
		Variable: &ShaderVariable{
			Name:             name,
			Type:             t,
			Src:              s,
			Location:         loc,
			Component:        v.Qual.Component,
			HasComponent:     v.Qual.ExplicitComponent,
			Index:            v.Qual.Index,
			Patch:            v.Qual.Patch,
			Interpolation:    v.Qual.Interpolation,
			ExplicitLocation: v.Qual.ExplicitLocation,
			BuiltIn:          v.BuiltIn,
		},
	})
}

// referenceSet is the per-stage set of root names each stage's IR still
// references after combining. Interface block members contribute their
// owning block's key as well, so instance-qualified access marks the block.
type referenceSet [ir.StageCount]map[string]bool

// collectReferences rebuilds the registry's stage masks by scanning every
// stage's IR rather than trusting the symbol tables: a declaration can
// survive while every reference to it was removed.
func (c *context) collectReferences() *referenceSet {
	refs := &referenceSet{}
	for st := ir.ShaderStage(0); st < ir.StageCount; st++ {
		s := c.res.Stages[st]
		if s == nil {
			continue
		}
		names := map[string]bool{}
		for fi := range s.Functions {
			ir.VisitReferences(s.Functions[fi].Body, func(h ir.VariableHandle) {
				if int(h) >= len(s.Variables) {
					return
				}
				v := &s.Variables[h]
				names[v.Name] = true
				if v.InBlock && int(v.Block) < len(s.Blocks) {
					names[s.Blocks[v.Block].Key()] = true
				}
			})
		}
		refs[st] = names
	}
	return refs
}

// matches reports whether the stage references the resource name, either
// directly or through the root it dereferences: a reference to `light'
// covers "light.color", a reference to `lights' covers "lights[0].color".
func (r *referenceSet) matches(st ir.ShaderStage, name string) bool {
	names := r[st]
	if names == nil {
		return false
	}
	if names[name] {
		return true
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '.' || name[i] == '[' {
			if names[name[:i]] {
				return true
			}
		}
	}
	return false
}

// maskFor builds the stage mask of every stage referencing the name.
func (r *referenceSet) maskFor(name string) uint8 {
	var mask uint8
	for st := ir.ShaderStage(0); st < ir.StageCount; st++ {
		if r.matches(st, name) {
			mask |= st.Bit()
		}
	}
	return mask
}

// blockMask builds a canonical block's stage mask: a stage counts when it
// references the block itself or any of its members.
func (r *referenceSet) blockMask(b *CanonicalBlock) uint8 {
	var mask uint8
	for st := ir.ShaderStage(0); st < ir.StageCount; st++ {
		if r.matches(st, b.Key()) {
			mask |= st.Bit()
			continue
		}
		for _, m := range b.Members {
			if r.matches(st, m.Name) {
				mask |= st.Bit()
				break
			}
		}
	}
	return mask
}

// FindResource looks a resource up by kind and name, matching array
// resources with or without their "[0]" suffix.
func (r *Result) FindResource(kind ResourceKind, name string) *Resource {
	base := strings.TrimSuffix(name, "[0]")
	for _, res := range r.Resources {
		if res.Kind != kind {
			continue
		}
		if res.Name == name || strings.TrimSuffix(res.Name, "[0]") == base {
			return res
		}
	}
	return nil
}
