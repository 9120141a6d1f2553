package link

import (
	"fmt"
	"sort"

	"github.com/gogpu/shaderlink/ir"
)

// UniformStorage is one entry of the flattened active uniform list: a
// basic-type leaf of a default-block uniform, a block member, an atomic
// counter or a subroutine uniform. Type handles resolve through Src.
type UniformStorage struct {
	Name string
	Type ir.TypeHandle
	Src  *ir.LinkedStage

	// ArrayLength is the top-level array length, 0 for non-arrays.
	ArrayLength uint32
	StageRefs   uint8

	// Location is the uniform location, -1 for block members, atomic
	// counters and hidden uniforms.
	Location         int32
	explicitLocation bool

	// BlockIndex is the canonical block index, -1 for the default block.
	BlockIndex int32
	IsStorage  bool
	Hidden     bool

	// AtomicBinding and AtomicOffset are set on atomic counters, -1
	// otherwise.
	AtomicBinding int32
	AtomicOffset  int32

	// SubroutineTypeName is set on subroutine uniforms.
	SubroutineTypeName    string
	CompatibleSubroutines uint32

	// TopLevelArraySize and TopLevelArrayStride describe buffer variable
	// top-level arrays, -1 when not applicable.
	TopLevelArraySize   int32
	TopLevelArrayStride int32
}

// IsSampler reports whether the entry is a texture sampler.
func (u *UniformStorage) IsSampler() bool {
	t, ok := u.Src.TypeAt(ir.WithoutArray(u.Src, u.Type))
	if !ok {
		return false
	}
	_, is := t.Inner.(ir.SamplerType)
	return is
}

// IsImage reports whether the entry is a storage image.
func (u *UniformStorage) IsImage() bool {
	t, ok := u.Src.TypeAt(ir.WithoutArray(u.Src, u.Type))
	if !ok {
		return false
	}
	_, is := t.Inner.(ir.ImageType)
	return is
}

// IsAtomicCounter reports whether the entry is an atomic counter.
func (u *UniformStorage) IsAtomicCounter() bool {
	t, ok := u.Src.TypeAt(ir.WithoutArray(u.Src, u.Type))
	if !ok {
		return false
	}
	_, is := t.Inner.(ir.AtomicCounterType)
	return is
}

// IsSubroutineUniform reports whether the entry selects a subroutine.
func (u *UniformStorage) IsSubroutineUniform() bool {
	return u.SubroutineTypeName != ""
}

// buildUniformList flattens every stage's uniforms and the canonical block
// members into the program-wide uniform list. Uniforms shared between
// stages produce one entry with a combined stage mask.
func (c *context) buildUniformList() {
	byName := map[string]*UniformStorage{}
	add := func(u *UniformStorage, stage ir.ShaderStage) {
		if existing, ok := byName[u.Name]; ok {
			existing.StageRefs |= stage.Bit()
			return
		}
		u.StageRefs = stage.Bit()
		byName[u.Name] = u
		c.res.Uniforms = append(c.res.Uniforms, u)
	}

	for st := ir.ShaderStage(0); st < ir.StageCount; st++ {
		s := c.res.Stages[st]
		if s == nil {
			continue
		}
		for vi := range s.Variables {
			v := &s.Variables[vi]
			if v.Mode != ir.ModeUniform || v.InBlock {
				continue
			}
			base := int32(-1)
			if v.Qual.ExplicitLocation {
				base = v.Qual.Location
			}
			locOffset := uint32(0)
			c.flattenUniform(s, v.Name, v.Type, v, base, &locOffset, func(u *UniformStorage) {
				add(u, st)
			})
		}
	}

	for listIdx, list := range [][]*CanonicalBlock{c.res.UniformBlocks, c.res.StorageBlocks} {
		isStorage := listIdx == 1
		for bi, block := range list {
			prefix := ""
			if block.InstanceName != "" {
				prefix = block.Name + "."
			}
			for _, m := range block.Members {
				u := c.blockMemberUniform(block, prefix, m, int32(bi), isStorage)
				for st := ir.ShaderStage(0); st < ir.StageCount; st++ {
					if block.StageRefs&st.Bit() != 0 {
						add(u, st)
					}
				}
			}
		}
	}
}

// flattenUniform expands a default-block uniform into its basic-type
// leaves: struct members recurse with dotted names, arrays of structs
// recurse through their first element, arrays of basic types stay whole.
func (c *context) flattenUniform(s *ir.LinkedStage, name string, t ir.TypeHandle, v *ir.Variable, baseLoc int32, locOffset *uint32, emit func(*UniformStorage)) {
	typ, ok := s.TypeAt(t)
	if !ok {
		return
	}
	switch inner := typ.Inner.(type) {
	case ir.StructType:
		for _, m := range inner.Members {
			c.flattenUniform(s, name+"."+m.Name, m.Type, v, baseLoc, locOffset, emit)
		}
		return
	case ir.ArrayType:
		elem, eOk := s.TypeAt(inner.Base)
		if eOk {
			if _, isStruct := elem.Inner.(ir.StructType); isStruct {
				c.flattenUniform(s, fmt.Sprintf("%s[0]", name), inner.Base, v, baseLoc, locOffset, emit)
				return
			}
		}
		u := c.leafUniform(s, name, t, v, baseLoc, locOffset)
		u.ArrayLength = inner.Length
		emit(u)
		return
	}
	emit(c.leafUniform(s, name, t, v, baseLoc, locOffset))
}

func (c *context) leafUniform(s *ir.LinkedStage, name string, t ir.TypeHandle, v *ir.Variable, baseLoc int32, locOffset *uint32) *UniformStorage {
	u := &UniformStorage{
		Name:                name,
		Type:                t,
		Src:                 s,
		Location:            -1,
		BlockIndex:          -1,
		AtomicBinding:       -1,
		AtomicOffset:        -1,
		TopLevelArraySize:   -1,
		TopLevelArrayStride: -1,
		Hidden:              v.Declared == ir.DeclaredHidden,
	}
	if baseLoc >= 0 {
		u.Location = baseLoc + int32(*locOffset)
		u.explicitLocation = true
	}
	*locOffset += ir.UniformLocationCount(s, t)

	if sub, ok := subroutineTypeName(s, t); ok {
		u.SubroutineTypeName = sub
	}
	if v.Qual.ExplicitBinding {
		u.AtomicBinding = v.Qual.Binding
	}
	if v.Qual.ExplicitOffset {
		u.AtomicOffset = v.Qual.Offset
	}
	return u
}

func subroutineTypeName(src ir.TypeSource, t ir.TypeHandle) (string, bool) {
	typ, ok := src.TypeAt(ir.WithoutArray(src, t))
	if !ok {
		return "", false
	}
	if sub, is := typ.Inner.(ir.SubroutineType); is {
		return sub.TypeName, true
	}
	return "", false
}

func (c *context) blockMemberUniform(block *CanonicalBlock, prefix string, m CanonicalBlockMember, blockIdx int32, isStorage bool) *UniformStorage {
	name := prefix + m.Name
	u := &UniformStorage{
		Type:                m.Type,
		Src:                 block.Src,
		Location:            -1,
		BlockIndex:          blockIdx,
		IsStorage:           isStorage,
		AtomicBinding:       -1,
		AtomicOffset:        -1,
		TopLevelArraySize:   -1,
		TopLevelArrayStride: -1,
	}
	if elem, length, ok := ir.ArrayInfo(block.Src, m.Type); ok {
		u.ArrayLength = length
		if isStorage {
			// Buffer variable top-level arrays report a "[0]" name, the
			// declared size (zero for the trailing unsized member) and
			// the element stride.
			name += "[0]"
			u.TopLevelArraySize = int32(length)
			u.TopLevelArrayStride = int32(ir.ArrayStride(block.Src, elem, block.Packing))
		}
	}
	u.Name = name
	return u
}

// assignUniformLocations builds the uniform remap table: explicit locations
// are reserved first, then the remaining default-block uniforms are placed
// first-fit. Block members, atomic counters, subroutine uniforms and hidden
// uniforms take no location.
func (c *context) assignUniformLocations() bool {
	max := c.lim.MaxUniformLocations
	remap := make([]int32, max)
	for i := range remap {
		remap[i] = -1
	}

	needsLocation := func(u *UniformStorage) bool {
		return u.BlockIndex < 0 && !u.Hidden && !u.IsAtomicCounter() && !u.IsSubroutineUniform()
	}

	for ui, u := range c.res.Uniforms {
		if !needsLocation(u) || !u.explicitLocation {
			continue
		}
		count := ir.UniformLocationCount(u.Src, u.Type)
		if u.ArrayLength > 0 {
			count = u.ArrayLength
		}
		for i := uint32(0); i < count; i++ {
			loc := uint32(u.Location) + i
			if loc >= max {
				c.log.Errorf("explicit location %d for uniform `%s' is outside the available range", loc, u.Name)
				return false
			}
			if prev := remap[loc]; prev >= 0 && c.res.Uniforms[prev].Name != u.Name {
				c.log.Errorf("explicit location %d for uniform `%s' overlaps location of uniform `%s'",
					loc, u.Name, c.res.Uniforms[prev].Name)
				return false
			}
			remap[loc] = int32(ui)
		}
	}

	for ui, u := range c.res.Uniforms {
		if !needsLocation(u) || u.explicitLocation {
			continue
		}
		count := ir.UniformLocationCount(u.Src, u.Type)
		slot := findFreeRun(remap, count)
		if slot < 0 {
			c.log.Errorf("too many uniform locations used (max %d)", max)
			return false
		}
		u.Location = slot
		for i := uint32(0); i < count; i++ {
			remap[uint32(slot)+i] = int32(ui)
		}
	}

	// Trim the table to the highest used location.
	high := -1
	for i := len(remap) - 1; i >= 0; i-- {
		if remap[i] >= 0 {
			high = i
			break
		}
	}
	c.res.UniformRemap = remap[:high+1]
	return true
}

func findFreeRun(remap []int32, count uint32) int32 {
	if count == 0 {
		count = 1
	}
	run := uint32(0)
	for i := range remap {
		if remap[i] < 0 {
			run++
			if run == count {
				return int32(i) - int32(count) + 1
			}
		} else {
			run = 0
		}
	}
	return -1
}

// processAtomicCounters groups atomic counters by binding, resolves their
// offsets (explicit offsets win, others follow sequentially) and rejects
// collisions.
func (c *context) processAtomicCounters() {
	type buffer struct {
		binding int32
		next    int32
		taken   map[int32]string
	}
	buffers := map[int32]*buffer{}

	for _, u := range c.res.Uniforms {
		if !u.IsAtomicCounter() {
			continue
		}
		binding := u.AtomicBinding
		if binding < 0 {
			binding = 0
			u.AtomicBinding = 0
		}
		buf, ok := buffers[binding]
		if !ok {
			buf = &buffer{binding: binding, taken: map[int32]string{}}
			buffers[binding] = buf
		}

		size := int32(4)
		if u.ArrayLength > 0 {
			size = 4 * int32(u.ArrayLength)
		}
		offset := u.AtomicOffset
		if offset < 0 {
			offset = buf.next
			u.AtomicOffset = offset
		}
		for o := offset; o < offset+size; o += 4 {
			if prev, used := buf.taken[o]; used {
				c.log.Errorf("atomic counter `%s' declared at offset %d which is already in use by `%s'",
					u.Name, o, prev)
				return
			}
			buf.taken[o] = u.Name
		}
		if offset+size > buf.next {
			buf.next = offset + size
		}
	}

	c.atomicBuffers = nil
	for _, buf := range buffers {
		c.atomicBuffers = append(c.atomicBuffers, AtomicBuffer{
			Binding: buf.binding,
			Size:    uint32(buf.next),
		})
	}
	sort.Slice(c.atomicBuffers, func(i, j int) bool {
		return c.atomicBuffers[i].Binding < c.atomicBuffers[j].Binding
	})
}

// AtomicBuffer describes one atomic counter buffer binding.
type AtomicBuffer struct {
	Binding int32
	Size    uint32
}
