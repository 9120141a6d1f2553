package link

import (
	"sort"

	"github.com/gogpu/shaderlink/ir"
)

// FirstVaryingSlot is the location base for generic varyings; slots below it
// belong to built-in interface variables.
const FirstVaryingSlot = 32

// consumerElementType strips the per-vertex array level from a geometry or
// tessellation input, so interface matching compares element types.
func consumerElementType(s *ir.LinkedStage, v *ir.Variable) ir.TypeHandle {
	switch s.Stage {
	case ir.StageGeometry, ir.StageTessControl, ir.StageTessEval:
		if !v.Qual.Patch {
			if elem, _, ok := ir.ArrayInfo(s, v.Type); ok {
				return elem
			}
		}
	}
	return v.Type
}

// producerElementType strips the per-vertex array level from a tessellation
// control output.
func producerElementType(s *ir.LinkedStage, v *ir.Variable) ir.TypeHandle {
	if s.Stage == ir.StageTessControl && !v.Qual.Patch {
		if elem, _, ok := ir.ArrayInfo(s, v.Type); ok {
			return elem
		}
	}
	return v.Type
}

// crossValidateOutputsToInputs pairs consumer inputs with producer outputs,
// first through explicit locations and then by name, validating each pair.
// Interface variables that find no partner keep their Unmatched flag.
func (c *context) crossValidateOutputsToInputs(producer, consumer *ir.LinkedStage) {
	outByName := map[string]ir.VariableHandle{}
	for vi := range producer.Variables {
		v := &producer.Variables[vi]
		if v.Mode != ir.ModeOutput || v.BuiltIn {
			continue
		}
		v.Unmatched = true
		outByName[v.Name] = ir.VariableHandle(vi)
	}
	for vi := range consumer.Variables {
		if v := &consumer.Variables[vi]; v.Mode == ir.ModeInput && !v.BuiltIn {
			v.Unmatched = true
		}
	}

	c.matchExplicitOutputsToInputs(producer, consumer)

	for vi := range consumer.Variables {
		in := &consumer.Variables[vi]
		if in.Mode != ir.ModeInput || in.BuiltIn || !in.Unmatched || in.Qual.ExplicitLocation {
			continue
		}
		oh, ok := outByName[in.Name]
		if !ok {
			if c.res.ES {
				c.log.Errorf("%s shader input `%s' has no matching output in the previous stage",
					consumer.Stage, in.Name)
			}
			continue
		}
		out := &producer.Variables[oh]
		if c.validateVaryingPair(producer, out, consumer, in) {
			out.Unmatched = false
			in.Unmatched = false
		}
	}
}

// matchExplicitOutputsToInputs pairs explicit-location interface variables
// through a [slot][component] table, the way unnamed rendezvous-by-location
// interfaces match.
func (c *context) matchExplicitOutputsToInputs(producer, consumer *ir.LinkedStage) {
	type cell struct{ handle ir.VariableHandle }
	table := map[int32][4]*cell{}

	for vi := range producer.Variables {
		v := &producer.Variables[vi]
		if v.Mode != ir.ModeOutput || v.BuiltIn || !v.Qual.ExplicitLocation {
			continue
		}
		slots := ir.SlotCount(producer, producerElementType(producer, v), false)
		for s := uint32(0); s < slots; s++ {
			loc := v.Qual.Location + int32(s)
			row := table[loc]
			start := uint32(0)
			if v.Qual.ExplicitComponent {
				start = uint32(v.Qual.Component)
			}
			width := ir.VectorElems(producer, ir.WithoutArray(producer, v.Type))
			if width == 0 {
				width = 4
			}
			for comp := start; comp < start+width && comp < 4; comp++ {
				if row[comp] != nil {
					c.log.Errorf("%s shader has two outputs with overlapping location %d component %d",
						producer.Stage, loc, comp)
					return
				}
				row[comp] = &cell{handle: ir.VariableHandle(vi)}
			}
			table[loc] = row
		}
	}

	for vi := range consumer.Variables {
		in := &consumer.Variables[vi]
		if in.Mode != ir.ModeInput || in.BuiltIn || !in.Qual.ExplicitLocation {
			continue
		}
		comp := uint32(0)
		if in.Qual.ExplicitComponent {
			comp = uint32(in.Qual.Component)
		}
		row, ok := table[in.Qual.Location]
		if !ok || row[comp] == nil {
			continue
		}
		out := &producer.Variables[row[comp].handle]
		if c.validateVaryingPair(producer, out, consumer, in) {
			out.Unmatched = false
			in.Unmatched = false
		}
	}
}

// validateVaryingPair checks that a producer output and consumer input agree
// in type and qualifiers.
func (c *context) validateVaryingPair(producer *ir.LinkedStage, out *ir.Variable, consumer *ir.LinkedStage, in *ir.Variable) bool {
	outType := producerElementType(producer, out)
	inType := consumerElementType(consumer, in)
	if !ir.TypesEqual(producer, outType, consumer, inType) {
		c.log.Errorf("%s shader output `%s' declared as type `%s', but %s shader input declared as type `%s'",
			producer.Stage, out.Name, ir.FormatType(producer, outType),
			consumer.Stage, ir.FormatType(consumer, inType))
		return false
	}
	if out.Qual.Interpolation != in.Qual.Interpolation {
		c.log.Errorf("mismatching interpolation qualifiers for varying `%s'", out.Name)
		return false
	}
	if in.Qual.Invariant && !out.Qual.Invariant {
		c.log.Errorf("mismatching invariant qualifiers for varying `%s'", out.Name)
		return false
	}
	if out.Qual.Centroid != in.Qual.Centroid {
		c.log.Errorf("mismatching centroid qualifiers for varying `%s'", out.Name)
		return false
	}
	if out.Qual.Sample != in.Qual.Sample {
		c.log.Errorf("mismatching sample qualifiers for varying `%s'", out.Name)
		return false
	}
	if out.Qual.Patch != in.Qual.Patch {
		c.log.Errorf("mismatching patch qualifiers for varying `%s'", out.Name)
		return false
	}
	return true
}

// assignVaryingLocations allocates varying slots for one stage boundary.
// Explicit locations are honored first; the rest are sorted by size and
// name and packed first-fit into the remaining slots, both sides of a pair
// receiving the same location.
func (c *context) assignVaryingLocations(producer, consumer *ir.LinkedStage) bool {
	var used uint64
	slotInterp := map[int32]ir.Interpolation{}

	reserve := func(s *ir.LinkedStage, v *ir.Variable, elemType ir.TypeHandle) bool {
		slots := ir.SlotCount(s, elemType, false)
		for i := uint32(0); i < slots; i++ {
			slot := v.Qual.Location - FirstVaryingSlot + int32(i)
			if slot < 0 || slot >= int32(c.lim.MaxVaryingSlots) {
				c.log.Errorf("varying `%s' has an explicit location outside the available range", v.Name)
				return false
			}
			if prev, ok := slotInterp[slot]; ok && prev != v.Qual.Interpolation {
				c.log.Errorf("conflicting interpolation qualifiers at location %d",
					v.Qual.Location+int32(i))
				return false
			}
			slotInterp[slot] = v.Qual.Interpolation
			used |= 1 << uint(slot)
		}
		v.AssignedLocation = v.Qual.Location
		return true
	}

	for vi := range producer.Variables {
		v := &producer.Variables[vi]
		if v.Mode == ir.ModeOutput && !v.BuiltIn && v.Qual.ExplicitLocation {
			if !reserve(producer, v, producerElementType(producer, v)) {
				return false
			}
		}
	}
	for vi := range consumer.Variables {
		v := &consumer.Variables[vi]
		if v.Mode == ir.ModeInput && !v.BuiltIn && v.Qual.ExplicitLocation {
			if !reserve(consumer, v, consumerElementType(consumer, v)) {
				return false
			}
		}
	}

	// Implicit varyings: matched pairs, plus producer outputs that must
	// survive without a consumer (transform feedback, separable boundary).
	type varying struct {
		name  string
		out   *ir.Variable
		in    *ir.Variable
		slots uint32
	}
	inByName := map[string]*ir.Variable{}
	for vi := range consumer.Variables {
		v := &consumer.Variables[vi]
		if v.Mode == ir.ModeInput && !v.BuiltIn {
			inByName[v.Name] = v
		}
	}

	var list []varying
	for vi := range producer.Variables {
		out := &producer.Variables[vi]
		if out.Mode != ir.ModeOutput || out.BuiltIn || out.Qual.ExplicitLocation {
			continue
		}
		in := inByName[out.Name]
		if out.Unmatched {
			if !out.AlwaysActive && !c.opts.Separable {
				// Inactive varying: eliminated from the interface.
				out.AssignedLocation = -1
				c.debugf("demoting unmatched %s shader output `%s'", producer.Stage, out.Name)
				continue
			}
			in = nil
		}
		list = append(list, varying{
			name:  out.Name,
			out:   out,
			in:    in,
			slots: ir.SlotCount(producer, producerElementType(producer, out), false),
		})
	}
	// Consumer inputs with no producer partner read undefined values; they
	// still occupy slots in a separable program.
	if c.opts.Separable {
		for vi := range consumer.Variables {
			in := &consumer.Variables[vi]
			if in.Mode != ir.ModeInput || in.BuiltIn || in.Qual.ExplicitLocation || !in.Unmatched {
				continue
			}
			list = append(list, varying{
				name:  in.Name,
				in:    in,
				slots: ir.SlotCount(consumer, consumerElementType(consumer, in), false),
			})
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].slots != list[j].slots {
			return list[i].slots > list[j].slots
		}
		return list[i].name < list[j].name
	})

	for i := range list {
		v := &list[i]
		slot := findAvailableSlots(used, v.slots, c.lim.MaxVaryingSlots)
		if slot < 0 {
			c.log.Errorf("insufficient contiguous locations available for varying `%s'", v.name)
			return false
		}
		for s := uint32(0); s < v.slots; s++ {
			used |= 1 << (uint32(slot) + s)
		}
		loc := FirstVaryingSlot + slot
		if v.out != nil {
			v.out.AssignedLocation = loc
		}
		if v.in != nil {
			v.in.AssignedLocation = loc
		}
	}

	return c.checkVaryingTotals(producer, consumer)
}

// assignTerminalOutputLocations packs the outputs of the last pipeline
// stage when no stage consumes them. Without a consumer nothing can be
// proven inactive, so every output keeps a slot; transform feedback and the
// fixed-function rasterizer read them.
func (c *context) assignTerminalOutputLocations(s *ir.LinkedStage) bool {
	var used uint64
	type output struct {
		v     *ir.Variable
		slots uint32
	}
	var list []output

	for vi := range s.Variables {
		v := &s.Variables[vi]
		if v.Mode != ir.ModeOutput || v.BuiltIn {
			continue
		}
		slots := ir.SlotCount(s, producerElementType(s, v), false)
		if !v.Qual.ExplicitLocation {
			list = append(list, output{v: v, slots: slots})
			continue
		}
		for i := uint32(0); i < slots; i++ {
			slot := v.Qual.Location - FirstVaryingSlot + int32(i)
			if slot < 0 || slot >= int32(c.lim.MaxVaryingSlots) {
				c.log.Errorf("varying `%s' has an explicit location outside the available range", v.Name)
				return false
			}
			used |= 1 << uint(slot)
		}
		v.AssignedLocation = v.Qual.Location
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].slots != list[j].slots {
			return list[i].slots > list[j].slots
		}
		return list[i].v.Name < list[j].v.Name
	})
	for _, o := range list {
		slot := findAvailableSlots(used, o.slots, c.lim.MaxVaryingSlots)
		if slot < 0 {
			c.log.Errorf("insufficient contiguous locations available for varying `%s'", o.v.Name)
			return false
		}
		for i := uint32(0); i < o.slots; i++ {
			used |= 1 << (uint32(slot) + i)
		}
		o.v.AssignedLocation = FirstVaryingSlot + slot
	}
	return true
}

// checkVaryingTotals compares the boundary's slot usage against the device
// varying limit.
func (c *context) checkVaryingTotals(producer, consumer *ir.LinkedStage) bool {
	count := func(s *ir.LinkedStage, mode ir.StorageMode, elem func(*ir.LinkedStage, *ir.Variable) ir.TypeHandle) uint32 {
		var total uint32
		for vi := range s.Variables {
			v := &s.Variables[vi]
			if v.Mode != mode || v.BuiltIn || v.AssignedLocation < 0 {
				continue
			}
			total += ir.SlotCount(s, elem(s, v), false)
		}
		return total
	}

	if out := count(producer, ir.ModeOutput, producerElementType); out > c.lim.MaxVaryingSlots {
		c.log.Errorf("%s shader uses too many output vectors (%d > %d)",
			producer.Stage, out, c.lim.MaxVaryingSlots)
		return false
	}
	if in := count(consumer, ir.ModeInput, consumerElementType); in > c.lim.MaxVaryingSlots {
		c.log.Errorf("%s shader uses too many input vectors (%d > %d)",
			consumer.Stage, in, c.lim.MaxVaryingSlots)
		return false
	}
	return true
}

// markBoundaryInterfaces keeps the outermost interfaces of a separable
// program alive: without a paired stage there is nothing to match against,
// so nothing may be eliminated.
func (c *context) markBoundaryInterfaces() {
	if !c.opts.Separable || len(c.pipeline) == 0 {
		return
	}
	first := c.pipeline[0]
	last := c.pipeline[len(c.pipeline)-1]
	for vi := range first.Variables {
		if v := &first.Variables[vi]; v.Mode == ir.ModeInput {
			v.AlwaysActive = true
		}
	}
	for vi := range last.Variables {
		if v := &last.Variables[vi]; v.Mode == ir.ModeOutput {
			v.AlwaysActive = true
		}
	}
}
