package link

import (
	"sort"

	"github.com/gogpu/shaderlink/ir"
)

// CanonicalBlockMember is a member of a program-wide canonical block.
type CanonicalBlockMember struct {
	Name     string
	Type     ir.TypeHandle
	RowMajor bool
	Offset   int32
}

// CanonicalBlock is one entry of the program-wide block list. Member type
// handles resolve through Src, the stage that first defined the block.
type CanonicalBlock struct {
	Name            string
	InstanceName    string
	ArraySize       uint32
	Mode            ir.BlockMode
	Packing         ir.Packing
	Binding         int32
	ExplicitBinding bool

	// StageRefs has one bit per stage referencing the block.
	StageRefs uint8
	// StageIndex maps each stage to its local block handle, -1 when the
	// stage does not declare the block.
	StageIndex [ir.StageCount]int32

	Members []CanonicalBlockMember
	Src     *ir.LinkedStage
	// ByteSize is the data size under the block's packing.
	ByteSize uint32
}

// Key returns the merge identity of the canonical block.
func (b *CanonicalBlock) Key() string {
	ib := ir.InterfaceBlock{Name: b.Name, ArraySize: b.ArraySize}
	return ib.Key()
}

// mergeInterstageBlocks builds the canonical block list for one block mode.
// Blocks sharing a key must have matching definitions; the result is
// ordered by key so it does not depend on stage iteration order.
func (c *context) mergeInterstageBlocks(mode ir.BlockMode) []*CanonicalBlock {
	byKey := map[string]*CanonicalBlock{}

	for st := ir.ShaderStage(0); st < ir.StageCount; st++ {
		s := c.res.Stages[st]
		if s == nil {
			continue
		}
		for bi := range s.Blocks {
			b := &s.Blocks[bi]
			if b.Mode != mode {
				continue
			}
			canon, ok := byKey[b.Key()]
			if !ok {
				canon = c.newCanonicalBlock(s, b)
				byKey[b.Key()] = canon
			} else {
				first := &canon.Src.Blocks[canon.StageIndex[canon.Src.Stage]]
				if reason := c.blocksMatch(canon.Src, first, s, b, false); reason != "" {
					c.log.Errorf("%s block `%s' has mismatching definitions (%s)",
						mode, b.Name, reason)
					return nil
				}
				if b.ExplicitBinding && !canon.ExplicitBinding {
					canon.ExplicitBinding = true
					canon.Binding = b.Binding
				}
			}
			canon.StageRefs |= st.Bit()
			if canon.StageIndex[st] < 0 {
				canon.StageIndex[st] = int32(bi)
			}
		}
	}

	list := make([]*CanonicalBlock, 0, len(byKey))
	for _, b := range byKey {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key() < list[j].Key() })
	return list
}

func (c *context) newCanonicalBlock(s *ir.LinkedStage, b *ir.InterfaceBlock) *CanonicalBlock {
	canon := &CanonicalBlock{
		Name:            b.Name,
		InstanceName:    b.InstanceName,
		ArraySize:       b.ArraySize,
		Mode:            b.Mode,
		Packing:         b.Packing,
		Binding:         b.Binding,
		ExplicitBinding: b.ExplicitBinding,
		Src:             s,
	}
	for i := range canon.StageIndex {
		canon.StageIndex[i] = -1
	}
	for _, m := range b.Members {
		canon.Members = append(canon.Members, CanonicalBlockMember{
			Name: m.Name, Type: m.Type, RowMajor: m.RowMajor, Offset: m.Offset,
		})
	}
	canon.ByteSize = blockByteSize(s, b)
	return canon
}

// blockByteSize sizes a block by laying its members out as a struct under
// the block's packing. Explicit member offsets extend the size when they
// push members past the packed layout.
func blockByteSize(src ir.TypeSource, b *ir.InterfaceBlock) uint32 {
	members := make([]ir.StructMember, len(b.Members))
	for i, m := range b.Members {
		members[i] = ir.StructMember{Name: m.Name, Type: m.Type, RowMajor: m.RowMajor}
	}
	size := ir.StructDataSize(src, members, b.Packing)
	for _, m := range b.Members {
		if m.Offset >= 0 {
			end := uint32(m.Offset) + ir.BlockDataSize(src, m.Type, b.Packing)
			if end > size {
				size = end
			}
		}
	}
	if b.ArraySize > 1 {
		size *= b.ArraySize
	}
	return size
}
