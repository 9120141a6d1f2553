package link

import (
	"sort"

	"github.com/gogpu/shaderlink/ir"
)

// SubroutineFunction is one subroutine implementation in a stage's
// subroutine table.
type SubroutineFunction struct {
	Name  string
	Index int32
	// Types lists the subroutine type names the function satisfies.
	Types []string
}

// processSubroutines builds the per-stage subroutine tables, resolves
// subroutine indices and allocates subroutine uniform locations. Each stage
// has its own index and location space.
func (c *context) processSubroutines() {
	for st := ir.ShaderStage(0); st < ir.StageCount; st++ {
		s := c.res.Stages[st]
		if s == nil {
			continue
		}
		if !c.processStageSubroutines(st, s) {
			return
		}
	}
}

func (c *context) processStageSubroutines(st ir.ShaderStage, s *ir.LinkedStage) bool {
	var fns []*SubroutineFunction
	for fi := range s.Functions {
		f := &s.Functions[fi]
		if !f.IsSubroutine || !f.Defined {
			continue
		}
		fns = append(fns, &SubroutineFunction{
			Name:  f.Name,
			Index: f.SubroutineIndex,
			Types: f.SubroutineTypes,
		})
	}
	if len(fns) == 0 && !c.stageHasSubroutineUniforms(s) {
		return true
	}

	if uint32(len(fns)) > c.lim.MaxSubroutines {
		c.log.Errorf("too many %s shader subroutines (max %d)", st, c.lim.MaxSubroutines)
		return false
	}

	// Explicit indices must be unique; implicit ones fill the gaps in name
	// order so the table does not depend on declaration order.
	taken := map[int32]string{}
	for _, f := range fns {
		if f.Index < 0 {
			continue
		}
		if prev, used := taken[f.Index]; used {
			c.log.Errorf("each subroutine index qualifier in the shader must be unique (%d used by `%s' and `%s')",
				f.Index, prev, f.Name)
			return false
		}
		taken[f.Index] = f.Name
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Name < fns[j].Name })
	next := int32(0)
	for _, f := range fns {
		if f.Index >= 0 {
			continue
		}
		for {
			if _, used := taken[next]; !used {
				break
			}
			next++
		}
		f.Index = next
		taken[next] = f.Name
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Index < fns[j].Index })
	c.subroutines[st] = fns

	return c.assignSubroutineUniformLocations(st, s, fns)
}

func (c *context) stageHasSubroutineUniforms(s *ir.LinkedStage) bool {
	for _, u := range c.res.Uniforms {
		if u.Src == s && u.IsSubroutineUniform() {
			return true
		}
	}
	return false
}

// assignSubroutineUniformLocations gives each subroutine uniform of the
// stage its compat count and a location in the stage's subroutine space.
func (c *context) assignSubroutineUniformLocations(st ir.ShaderStage, s *ir.LinkedStage, fns []*SubroutineFunction) bool {
	compatible := func(typeName string) uint32 {
		var n uint32
		for _, f := range fns {
			for _, t := range f.Types {
				if t == typeName {
					n++
					break
				}
			}
		}
		return n
	}

	max := c.lim.MaxSubroutineUniformLocations
	remap := make([]int32, max)
	for i := range remap {
		remap[i] = -1
	}

	var uniforms []*UniformStorage
	for _, u := range c.res.Uniforms {
		if u.Src == s && u.IsSubroutineUniform() {
			uniforms = append(uniforms, u)
		}
	}

	for ui, u := range uniforms {
		u.CompatibleSubroutines = compatible(u.SubroutineTypeName)
		if u.CompatibleSubroutines == 0 {
			c.log.Errorf("no compatible subroutine functions for %s shader subroutine uniform `%s'",
				st, u.Name)
			return false
		}
		if !u.explicitLocation {
			continue
		}
		count := max32(u.ArrayLength, 1)
		for i := uint32(0); i < count; i++ {
			loc := uint32(u.Location) + i
			if loc >= max {
				c.log.Errorf("explicit location %d for subroutine uniform `%s' is outside the available range",
					loc, u.Name)
				return false
			}
			if remap[loc] >= 0 {
				c.log.Errorf("explicit location %d for subroutine uniform `%s' overlaps location of subroutine uniform `%s'",
					loc, u.Name, uniforms[remap[loc]].Name)
				return false
			}
			remap[loc] = int32(ui)
		}
	}

	for ui, u := range uniforms {
		if u.explicitLocation {
			continue
		}
		count := max32(u.ArrayLength, 1)
		slot := findFreeRun(remap, count)
		if slot < 0 {
			c.log.Errorf("too many %s shader subroutine uniform locations used (max %d)", st, max)
			return false
		}
		u.Location = slot
		for i := uint32(0); i < count; i++ {
			remap[uint32(slot)+i] = int32(ui)
		}
	}
	return true
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
