package link

import "github.com/gogpu/shaderlink/ir"

// Intra-stage combining merges every translation unit of one stage into a
// LinkedStage. Units stay read-only: declarations are cloned into the linked
// arenas on first sight and later sightings are validated against the clone.

func (c *context) combineStage(stage ir.ShaderStage, units []*ir.TranslationUnit) *ir.LinkedStage {
	layout, ok := c.mergeStageLayouts(stage, units)
	if !ok {
		return nil
	}

	linked := ir.NewLinkedStage(stage)
	linked.Layout = layout

	mainUnit := -1
	defined := map[string]bool{}
	for ui, u := range units {
		for fi := range u.Functions {
			f := &u.Functions[fi]
			if !f.Defined || f.BuiltIn {
				continue
			}
			key := f.SignatureKey(u)
			if defined[key] {
				c.log.Errorf("function `%s' is multiply defined", f.Name)
				return nil
			}
			defined[key] = true
			if f.Name == "main" && mainUnit < 0 {
				mainUnit = ui
			}
		}
	}
	if mainUnit < 0 {
		c.log.Errorf("%s shader lacks `main'", stage)
		return nil
	}

	for _, u := range units {
		if !c.mergeUnitDeclarations(linked, u) {
			return nil
		}
	}

	cl := &cloner{ctx: c, linked: linked, units: units}
	if !cl.require(units[mainUnit], "main") {
		return nil
	}
	mainH, _, _ := linked.Function("main")
	linked.Main = mainH

	// Subroutine implementations are reached through subroutine uniforms,
	// not direct calls, so the closure of main never pulls them in.
	for _, u := range units {
		for fi := range u.Functions {
			f := &u.Functions[fi]
			if f.IsSubroutine && f.Defined && !f.BuiltIn {
				if !cl.require(u, f.Name) {
					return nil
				}
			}
		}
	}

	// Top-level non-declaration code runs before main, in unit order.
	var prologue ir.Block
	for _, u := range units {
		if len(u.GlobalCode) == 0 {
			continue
		}
		prologue = append(prologue, ir.RemapVariables(u.GlobalCode, cl.varRemap(u))...)
	}
	if len(prologue) > 0 {
		main := &linked.Functions[mainH]
		main.Body = append(prologue, main.Body...)
	}

	if !c.sizeImplicitArrays(linked) {
		return nil
	}
	return linked
}

// mergeUnitDeclarations folds one unit's blocks and globals into the linked
// stage.
func (c *context) mergeUnitDeclarations(linked *ir.LinkedStage, u *ir.TranslationUnit) bool {
	blockRemap := make([]ir.BlockHandle, len(u.Blocks))
	for bi := range u.Blocks {
		b := &u.Blocks[bi]
		handle, ok := c.mergeBlock(linked, u, b, true)
		if !ok {
			return false
		}
		blockRemap[bi] = handle
	}

	for vi := range u.Variables {
		v := &u.Variables[vi]
		if ref, exists := linked.Symbols[v.Name]; exists {
			if ref.Kind != ir.SymbolVariable {
				c.log.Errorf("global `%s' redeclared as a different kind of symbol", v.Name)
				return false
			}
			if !c.mergeGlobalInto(linked, ir.VariableHandle(ref.Index), u, v, false) {
				return false
			}
			continue
		}

		clone := *v
		t, err := linked.Types.Import(u, v.Type)
		if err != nil {
			c.log.Errorf("internal error: %s", err)
			return false
		}
		clone.Type = t
		if clone.InBlock {
			clone.Block = blockRemap[v.Block]
		}
		clone.AssignedLocation = -1
		linked.AddVariable(clone)
	}
	return true
}

// mergeBlock folds a block definition into the linked stage, returning the
// linked handle. Blocks with the same key must match member for member.
func (c *context) mergeBlock(linked *ir.LinkedStage, src ir.TypeSource, b *ir.InterfaceBlock, sameStage bool) (ir.BlockHandle, bool) {
	for hi := range linked.Blocks {
		existing := &linked.Blocks[hi]
		if existing.Key() != b.Key() || existing.Mode != b.Mode {
			continue
		}
		if reason := c.blocksMatch(linked, existing, src, b, sameStage); reason != "" {
			c.log.Errorf("%s block `%s' has mismatching definitions (%s)", b.Mode, b.Name, reason)
			return 0, false
		}
		if b.ExplicitBinding && !existing.ExplicitBinding {
			existing.ExplicitBinding = true
			existing.Binding = b.Binding
		}
		// A sized trailing array wins over an unsized declaration.
		for mi := range existing.Members {
			_, elen, eok := ir.ArrayInfo(linked, existing.Members[mi].Type)
			_, blen, bok := ir.ArrayInfo(src, b.Members[mi].Type)
			if eok && bok && elen == 0 && blen != 0 {
				resized, err := linked.Types.ResizeArray(existing.Members[mi].Type, blen)
				if err == nil {
					existing.Members[mi].Type = resized
				}
			}
		}
		return ir.BlockHandle(hi), true
	}

	clone := *b
	clone.Members = make([]ir.BlockMember, len(b.Members))
	for mi, m := range b.Members {
		t, err := linked.Types.Import(src, m.Type)
		if err != nil {
			c.log.Errorf("internal error: %s", err)
			return 0, false
		}
		clone.Members[mi] = ir.BlockMember{Name: m.Name, Type: t, RowMajor: m.RowMajor, Offset: m.Offset}
	}
	return linked.AddBlock(clone), true
}

// blocksMatch compares two definitions of the same block, returning a
// mismatch description or "".
func (c *context) blocksMatch(aSrc ir.TypeSource, a *ir.InterfaceBlock, bSrc ir.TypeSource, b *ir.InterfaceBlock, sameStage bool) string {
	if a.Packing != b.Packing {
		return "packing layouts differ"
	}
	if a.RowMajor != b.RowMajor {
		return "matrix layouts differ"
	}
	if sameStage && a.InstanceName != b.InstanceName {
		return "instance names differ"
	}
	if a.ExplicitBinding && b.ExplicitBinding && a.Binding != b.Binding {
		return "explicit bindings differ"
	}
	if len(a.Members) != len(b.Members) {
		return "member counts differ"
	}
	for i := range a.Members {
		am, bm := &a.Members[i], &b.Members[i]
		if am.Name != bm.Name {
			return "member `" + am.Name + "' and `" + bm.Name + "' differ in name"
		}
		if am.RowMajor != bm.RowMajor {
			return "member `" + am.Name + "' differs in matrix layout"
		}
		if am.Offset != bm.Offset {
			return "member `" + am.Name + "' differs in offset"
		}
		if ir.TypesEqual(aSrc, am.Type, bSrc, bm.Type) {
			continue
		}
		// The trailing member of a storage block may be sized in one
		// definition and unsized in another.
		if a.Mode == ir.BlockStorage && i == len(a.Members)-1 {
			ae, alen, aok := ir.ArrayInfo(aSrc, am.Type)
			be, blen, bok := ir.ArrayInfo(bSrc, bm.Type)
			if aok && bok && (alen == 0 || blen == 0) && ir.TypesEqual(aSrc, ae, bSrc, be) {
				continue
			}
		}
		return "member `" + am.Name + "' differs in type"
	}
	return ""
}

// mergeGlobalInto validates a later declaration of a global against the
// linked clone and folds its qualifiers in. crossStage selects the stricter
// rules applied between stages.
func (c *context) mergeGlobalInto(stage *ir.LinkedStage, ah ir.VariableHandle, bSrc ir.TypeSource, b *ir.Variable, crossStage bool) bool {
	a := &stage.Variables[ah]
	mode := a.Mode.String()

	if a.Mode != b.Mode {
		c.log.Errorf("global `%s' has conflicting storage qualifiers (%s and %s)",
			a.Name, a.Mode, b.Mode)
		return false
	}

	if !ir.TypesEqual(stage, a.Type, bSrc, b.Type) {
		if !c.unifyGlobalArrayTypes(stage, a, bSrc, b) {
			c.log.Errorf("%s `%s' declared as type `%s' and type `%s'",
				mode, a.Name, ir.FormatType(stage, a.Type), ir.FormatType(bSrc, b.Type))
			return false
		}
	}

	if a.Qual.ExplicitLocation && b.Qual.ExplicitLocation {
		if a.Qual.Location != b.Qual.Location {
			c.log.Errorf("explicit locations for %s `%s' have differing values", mode, a.Name)
			return false
		}
		if a.Qual.ExplicitComponent && b.Qual.ExplicitComponent && a.Qual.Component != b.Qual.Component {
			c.log.Errorf("explicit components for %s `%s' have differing values", mode, a.Name)
			return false
		}
	} else if b.Qual.ExplicitLocation {
		a.Qual.ExplicitLocation = true
		a.Qual.Location = b.Qual.Location
		a.Qual.ExplicitComponent = b.Qual.ExplicitComponent
		a.Qual.Component = b.Qual.Component
	}

	if a.Qual.ExplicitBinding && b.Qual.ExplicitBinding {
		if a.Qual.Binding != b.Qual.Binding {
			c.log.Errorf("explicit bindings for %s `%s' have differing values", mode, a.Name)
			return false
		}
	} else if b.Qual.ExplicitBinding {
		a.Qual.ExplicitBinding = true
		a.Qual.Binding = b.Qual.Binding
	}

	if a.Qual.ExplicitOffset && b.Qual.ExplicitOffset {
		if a.Qual.Offset != b.Qual.Offset {
			c.log.Errorf("offset specifications for %s `%s' have differing values", mode, a.Name)
			return false
		}
	} else if b.Qual.ExplicitOffset {
		a.Qual.ExplicitOffset = true
		a.Qual.Offset = b.Qual.Offset
	}

	if a.Qual.DepthLayout != ir.DepthNone && b.Qual.DepthLayout != ir.DepthNone {
		if a.Qual.DepthLayout != b.Qual.DepthLayout {
			c.log.Errorf("all redeclarations of gl_FragDepth in a single program must have the same set of qualifiers")
			return false
		}
	} else if b.Qual.DepthLayout != ir.DepthNone {
		a.Qual.DepthLayout = b.Qual.DepthLayout
	}

	if a.Init != nil && b.Init != nil && !ir.ConstantsEqual(a.Init, b.Init) {
		c.log.Errorf("initializers for %s `%s' have differing values", mode, a.Name)
		return false
	}
	if b.Init != nil && a.Init == nil {
		a.Init = b.Init
	}
	a.HasInit = a.HasInit || b.HasInit

	if crossStage {
		if a.Qual.Invariant != b.Qual.Invariant {
			c.log.Errorf("declarations of %s `%s' have mismatching invariant qualifiers", mode, a.Name)
			return false
		}
	} else {
		a.Qual.Invariant = a.Qual.Invariant || b.Qual.Invariant
	}
	if a.Qual.Centroid != b.Qual.Centroid {
		c.log.Errorf("mismatching centroid qualifiers for %s `%s'", mode, a.Name)
		return false
	}
	if a.Qual.Sample != b.Qual.Sample {
		c.log.Errorf("mismatching sample qualifiers for %s `%s'", mode, a.Name)
		return false
	}
	if a.Qual.Patch != b.Qual.Patch {
		c.log.Errorf("mismatching patch qualifiers for %s `%s'", mode, a.Name)
		return false
	}
	if a.Qual.Interpolation != b.Qual.Interpolation {
		c.log.Errorf("mismatching interpolation qualifiers for %s `%s'", mode, a.Name)
		return false
	}
	if a.Qual.Format != b.Qual.Format {
		c.log.Errorf("mismatching image format qualifiers for %s `%s'", mode, a.Name)
		return false
	}
	if a.Qual.ReadOnly != b.Qual.ReadOnly || a.Qual.WriteOnly != b.Qual.WriteOnly {
		c.log.Errorf("mismatching memory qualifiers for %s `%s'", mode, a.Name)
		return false
	}

	if b.MaxArrayAccess > a.MaxArrayAccess {
		a.MaxArrayAccess = b.MaxArrayAccess
	}
	if a.Declared == ir.DeclaredImplicitly && b.Declared == ir.DeclaredNormally {
		a.Declared = ir.DeclaredNormally
	}
	a.AlwaysActive = a.AlwaysActive || b.AlwaysActive
	return true
}

// unifyGlobalArrayTypes merges an unsized array declaration with a sized one
// of the same element type, checking outstanding accesses against the size.
func (c *context) unifyGlobalArrayTypes(stage *ir.LinkedStage, a *ir.Variable, bSrc ir.TypeSource, b *ir.Variable) bool {
	aElem, aLen, aOk := ir.ArrayInfo(stage, a.Type)
	bElem, bLen, bOk := ir.ArrayInfo(bSrc, b.Type)
	if !aOk || !bOk || !ir.TypesEqual(stage, aElem, bSrc, bElem) {
		return false
	}
	if aLen != 0 && bLen != 0 {
		return false
	}
	size := aLen
	if bLen > size {
		size = bLen
	}
	if size == 0 {
		return true
	}
	maxAccess := a.MaxArrayAccess
	if b.MaxArrayAccess > maxAccess {
		maxAccess = b.MaxArrayAccess
	}
	if maxAccess >= int32(size) {
		c.log.Errorf("%s `%s' declared with size %d but is accessed at element %d",
			a.Mode, a.Name, size, maxAccess)
		return false
	}
	if aLen == 0 {
		resized, err := stage.Types.ResizeArray(a.Type, size)
		if err != nil {
			c.log.Errorf("internal error: %s", err)
			return false
		}
		a.Type = resized
	}
	return true
}

// cloner pulls the call closure of main from the units into the linked
// stage, remapping variable references by name.
type cloner struct {
	ctx    *context
	linked *ir.LinkedStage
	units  []*ir.TranslationUnit
}

func (cl *cloner) varRemap(u *ir.TranslationUnit) func(ir.VariableHandle) ir.VariableHandle {
	return func(h ir.VariableHandle) ir.VariableHandle {
		if int(h) >= len(u.Variables) {
			return h
		}
		if ref, ok := cl.linked.Symbols[u.Variables[h].Name]; ok && ref.Kind == ir.SymbolVariable {
			return ir.VariableHandle(ref.Index)
		}
		return h
	}
}

// require ensures the named function is present in the linked stage,
// cloning its definition (and transitively its callees) from whichever unit
// defines it. preferred is searched first so same-unit definitions win.
func (cl *cloner) require(preferred *ir.TranslationUnit, name string) bool {
	if _, _, ok := cl.linked.Function(name); ok {
		return true
	}

	var defUnit *ir.TranslationUnit
	var defFn *ir.Function
	var protoBuiltin bool

	search := append([]*ir.TranslationUnit{preferred}, cl.units...)
	for _, u := range search {
		for fi := range u.Functions {
			f := &u.Functions[fi]
			if f.Name != name {
				continue
			}
			if f.Defined && !f.BuiltIn {
				defUnit, defFn = u, f
				break
			}
			if f.BuiltIn {
				protoBuiltin = true
			}
		}
		if defFn != nil {
			break
		}
	}

	if defFn == nil {
		if protoBuiltin {
			// Built-ins need no body; keep a prototype so calls resolve.
			cl.linked.AddFunction(ir.Function{Name: name, BuiltIn: true, SubroutineIndex: -1})
			return true
		}
		cl.ctx.log.Errorf("unresolved reference to function `%s'", name)
		return false
	}

	clone := *defFn
	clone.Params = make([]ir.FunctionParam, len(defFn.Params))
	for i, p := range defFn.Params {
		t, err := cl.linked.Types.Import(defUnit, p.Type)
		if err != nil {
			cl.ctx.log.Errorf("internal error: %s", err)
			return false
		}
		clone.Params[i] = ir.FunctionParam{Name: p.Name, Type: t, Out: p.Out}
	}
	if defFn.Result != nil {
		t, err := cl.linked.Types.Import(defUnit, *defFn.Result)
		if err != nil {
			cl.ctx.log.Errorf("internal error: %s", err)
			return false
		}
		clone.Result = &t
	}
	clone.Body = ir.RemapVariables(defFn.Body, cl.varRemap(defUnit))
	cl.linked.AddFunction(clone)

	ok := true
	ir.VisitCalls(clone.Body, func(callee string) {
		if ok && !cl.require(defUnit, callee) {
			ok = false
		}
	})
	return ok
}

// sizeImplicitArrays grows implicitly-sized arrays to cover their highest
// access. Storage block members stay unsized; stage interface arrays that
// take their size from another stage are handled by the driver.
func (c *context) sizeImplicitArrays(linked *ir.LinkedStage) bool {
	for vi := range linked.Variables {
		v := &linked.Variables[vi]
		if v.Mode == ir.ModeBuffer || v.InBlock {
			continue
		}
		_, length, ok := ir.ArrayInfo(linked, v.Type)
		if !ok || length != 0 || v.MaxArrayAccess < 0 {
			continue
		}
		resized, err := linked.Types.ResizeArray(v.Type, uint32(v.MaxArrayAccess+1))
		if err != nil {
			c.log.Errorf("internal error: %s", err)
			return false
		}
		v.Type = resized
	}
	return true
}

// sizeStageInterfaceArrays sizes per-vertex interface arrays whose length
// comes from pipeline state: geometry inputs from the input primitive,
// tessellation control outputs from the output patch size, tessellation
// evaluation inputs from the device patch limit.
func (c *context) sizeStageInterfaceArrays() {
	if gs := c.res.Stages[ir.StageGeometry]; gs != nil {
		c.resizeUnsizedInputs(gs, ir.VerticesPerPrimitive(gs.Layout.GeomInput))
	}
	if tcs := c.res.Stages[ir.StageTessControl]; tcs != nil {
		for vi := range tcs.Variables {
			v := &tcs.Variables[vi]
			if v.Mode != ir.ModeOutput || v.Qual.Patch {
				continue
			}
			if _, length, ok := ir.ArrayInfo(tcs, v.Type); ok && length == 0 {
				if resized, err := tcs.Types.ResizeArray(v.Type, uint32(tcs.Layout.VerticesOut)); err == nil {
					v.Type = resized
				}
			}
		}
	}
	if tes := c.res.Stages[ir.StageTessEval]; tes != nil {
		c.resizeUnsizedInputs(tes, c.lim.MaxPatchVertices)
	}
}

func (c *context) resizeUnsizedInputs(stage *ir.LinkedStage, size uint32) {
	if size == 0 {
		return
	}
	for vi := range stage.Variables {
		v := &stage.Variables[vi]
		if v.Mode != ir.ModeInput || v.Qual.Patch {
			continue
		}
		if _, length, ok := ir.ArrayInfo(stage, v.Type); ok && length == 0 {
			if resized, err := stage.Types.ResizeArray(v.Type, size); err == nil {
				v.Type = resized
			}
		}
	}
}
