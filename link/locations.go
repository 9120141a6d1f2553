package link

import (
	"sort"

	"github.com/gogpu/shaderlink/ir"
)

// findAvailableSlots returns the first position where needed contiguous
// slots are free in the occupancy mask, or -1 when no run fits below max.
func findAvailableSlots(used uint64, needed uint32, max uint32) int32 {
	if needed == 0 || needed > max || max > 64 {
		return -1
	}
	mask := uint64(1)<<needed - 1
	for start := uint32(0); start+needed <= max; start++ {
		if used&(mask<<start) == 0 {
			return int32(start)
		}
	}
	return -1
}

// assignAttributeLocations allocates vertex attribute locations: API
// bindings and explicit qualifiers first, then the remainder largest-first
// into the free slots. Double-precision attributes needing two slots per
// location are counted twice against the device capacity.
func (c *context) assignAttributeLocations(vs *ir.LinkedStage) bool {
	max := c.lim.MaxVertexAttribs
	var used uint64
	var toAssign []*ir.Variable
	var totalSlots uint32

	for vi := range vs.Variables {
		v := &vs.Variables[vi]
		if v.Mode != ir.ModeInput || v.BuiltIn {
			continue
		}
		v.AssignedLocation = -1
		if !v.Qual.ExplicitLocation {
			if loc, ok := c.opts.AttributeBindings[v.Name]; ok {
				v.Qual.ExplicitLocation = true
				v.Qual.Location = int32(loc)
			}
		}

		slots := ir.SlotCount(vs, v.Type, true)
		totalSlots += slots
		if ir.IsDualSlot(vs, v.Type) {
			totalSlots += slots
		}

		if !v.Qual.ExplicitLocation {
			toAssign = append(toAssign, v)
			continue
		}
		if v.Qual.Location < 0 || uint32(v.Qual.Location)+slots > max {
			c.log.Errorf("invalid location %d specified for attribute `%s'", v.Qual.Location, v.Name)
			return false
		}
		for s := uint32(0); s < slots; s++ {
			bit := uint64(1) << (uint32(v.Qual.Location) + s)
			if used&bit != 0 {
				// Attribute aliasing: an error in ES, legacy behavior
				// with a warning on desktop.
				if c.res.ES {
					c.log.Errorf("attribute `%s' at location %d aliases another attribute",
						v.Name, v.Qual.Location+int32(s))
					return false
				}
				c.log.Warningf("attribute `%s' at location %d aliases another attribute",
					v.Name, v.Qual.Location+int32(s))
			}
			used |= bit
		}
		v.AssignedLocation = v.Qual.Location
	}

	sort.SliceStable(toAssign, func(i, j int) bool {
		si := ir.SlotCount(vs, toAssign[i].Type, true)
		sj := ir.SlotCount(vs, toAssign[j].Type, true)
		if si != sj {
			return si > sj
		}
		return toAssign[i].Name < toAssign[j].Name
	})

	for _, v := range toAssign {
		slots := ir.SlotCount(vs, v.Type, true)
		slot := findAvailableSlots(used, slots, max)
		if slot < 0 {
			c.log.Errorf("insufficient contiguous locations available for attribute `%s'", v.Name)
			return false
		}
		for s := uint32(0); s < slots; s++ {
			used |= 1 << (uint32(slot) + s)
		}
		v.AssignedLocation = slot
	}

	if totalSlots > max {
		c.log.Errorf("attempt to use %d vertex attribute slots only %d available", totalSlots, max)
		return false
	}
	return true
}

// assignFragmentOutputLocations allocates fragment color locations. Desktop
// profiles allow two outputs to alias one location when their components do
// not overlap and their base types match.
func (c *context) assignFragmentOutputLocations(fs *ir.LinkedStage) bool {
	max := c.lim.MaxDrawBuffers
	var used uint64
	compMask := map[int32]uint8{}
	slotKind := map[int32]ir.ScalarKind{}
	var toAssign []*ir.Variable
	var dualSource uint32

	outputComponents := func(v *ir.Variable) uint8 {
		width := ir.VectorElems(fs, ir.WithoutArray(fs, v.Type))
		if width == 0 || width > 4 {
			width = 4
		}
		start := uint8(0)
		if v.Qual.ExplicitComponent {
			start = v.Qual.Component
		}
		return (uint8(1)<<width - 1) << start
	}

	for vi := range fs.Variables {
		v := &fs.Variables[vi]
		if v.Mode != ir.ModeOutput || v.BuiltIn {
			continue
		}
		v.AssignedLocation = -1
		if !v.Qual.ExplicitLocation {
			if loc, ok := c.opts.FragDataBindings[v.Name]; ok {
				v.Qual.ExplicitLocation = true
				v.Qual.Location = int32(loc)
			}
		}
		if idx, ok := c.opts.FragDataIndexBindings[v.Name]; ok {
			v.Qual.Index = int32(idx)
		}
		if v.Qual.Index > 0 {
			dualSource++
		}

		slots := ir.SlotCount(fs, v.Type, false)
		if !v.Qual.ExplicitLocation {
			toAssign = append(toAssign, v)
			continue
		}
		if v.Qual.Location < 0 || uint32(v.Qual.Location)+slots > max {
			c.log.Errorf("invalid location %d specified for fragment output `%s'", v.Qual.Location, v.Name)
			return false
		}

		mask := outputComponents(v)
		kind, _ := ir.BaseScalar(fs, v.Type)
		for s := uint32(0); s < slots; s++ {
			loc := v.Qual.Location + int32(s)
			if used&(1<<uint32(loc)) != 0 {
				disjoint := compMask[loc]&mask == 0
				sameKind := slotKind[loc] == kind.Kind
				if c.res.ES || !disjoint || !sameKind {
					c.log.Errorf("fragment output `%s' at location %d aliases another output", v.Name, loc)
					return false
				}
			}
			used |= 1 << uint32(loc)
			compMask[loc] |= mask
			slotKind[loc] = kind.Kind
		}
		v.AssignedLocation = v.Qual.Location
	}

	if dualSource > c.lim.MaxDualSourceDrawBuffers {
		c.log.Errorf("too many dual-source fragment outputs (max %d)", c.lim.MaxDualSourceDrawBuffers)
		return false
	}

	sort.SliceStable(toAssign, func(i, j int) bool {
		si := ir.SlotCount(fs, toAssign[i].Type, false)
		sj := ir.SlotCount(fs, toAssign[j].Type, false)
		if si != sj {
			return si > sj
		}
		return toAssign[i].Name < toAssign[j].Name
	})

	for _, v := range toAssign {
		slots := ir.SlotCount(fs, v.Type, false)
		slot := findAvailableSlots(used, slots, max)
		if slot < 0 {
			c.log.Errorf("insufficient contiguous locations available for fragment output `%s'", v.Name)
			return false
		}
		for s := uint32(0); s < slots; s++ {
			used |= 1 << (uint32(slot) + s)
		}
		v.AssignedLocation = slot
	}
	return true
}
