package link

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/shaderlink/ir"
	"github.com/gogpu/shaderlink/limits"
)

func TestUniformStructFlattening(t *testing.T) {
	fs := basicFragmentUnit()
	v4 := vecType(fs, ir.Vec4)
	f := floatType(fs)
	lightType := fs.AddType(ir.Type{Name: "Light", Inner: ir.StructType{
		Members: []ir.StructMember{
			{Name: "color", Type: v4},
			{Name: "intensity", Type: f},
		},
	}})
	light := addVar(fs, "light", lightType, ir.ModeUniform, ir.Qualifiers{})
	fs.Functions[0].Body = append(fs.Functions[0].Body, assign(1, light))

	res := linkUnits(t, basicVertexUnit(), fs)
	require.True(t, res.Status, res.InfoLog())

	color := res.FindResource(ResUniform, "light.color")
	intensity := res.FindResource(ResUniform, "light.intensity")
	require.NotNil(t, color)
	require.NotNil(t, intensity)
	assert.Nil(t, res.FindResource(ResUniform, "light"))
	assert.Equal(t, ir.StageFragment.Bit(), intensity.StageRefs&ir.StageFragment.Bit())
}

func TestUniformArrayOfStructsUsesRepresentativeElement(t *testing.T) {
	fs := basicFragmentUnit()
	lightType := fs.AddType(ir.Type{Name: "Light", Inner: ir.StructType{
		Members: []ir.StructMember{{Name: "color", Type: vecType(fs, ir.Vec4)}},
	}})
	addVar(fs, "lights", arrayType(fs, lightType, 4), ir.ModeUniform, ir.Qualifiers{})

	res := linkUnits(t, basicVertexUnit(), fs)
	require.True(t, res.Status, res.InfoLog())
	require.NotNil(t, res.FindResource(ResUniform, "lights[0].color"))
}

func TestUniformSharedAcrossStages(t *testing.T) {
	vs := basicVertexUnit()
	addVar(vs, "time", floatType(vs), ir.ModeUniform, ir.Qualifiers{})
	fs := basicFragmentUnit()
	addVar(fs, "time", floatType(fs), ir.ModeUniform, ir.Qualifiers{})

	res := linkUnits(t, vs, fs)
	require.True(t, res.Status, res.InfoLog())

	var entries []*UniformStorage
	for _, u := range res.Uniforms {
		if u.Name == "time" {
			entries = append(entries, u)
		}
	}
	require.Len(t, entries, 1)
	assert.Equal(t, ir.StageVertex.Bit()|ir.StageFragment.Bit(), entries[0].StageRefs)
}

func TestUniformStageRefsFollowReferences(t *testing.T) {
	vs := basicVertexUnit()
	addVar(vs, "tint", vecType(vs, ir.Vec4), ir.ModeUniform, ir.Qualifiers{})
	fs := basicFragmentUnit()
	tint := addVar(fs, "tint", vecType(fs, ir.Vec4), ir.ModeUniform, ir.Qualifiers{})
	fs.Functions[0].Body = append(fs.Functions[0].Body, assign(1, tint))

	res := linkUnits(t, vs, fs)
	require.True(t, res.Status, res.InfoLog())

	// Both stages declare the uniform but only the fragment body reads it;
	// the registry mask comes from the instruction scan, not the symbol
	// tables.
	entry := res.FindResource(ResUniform, "tint")
	require.NotNil(t, entry)
	assert.Equal(t, ir.StageFragment.Bit(), entry.StageRefs)
	assert.Equal(t, ir.StageVertex.Bit()|ir.StageFragment.Bit(), entry.Uniform.StageRefs,
		"the declaration mask still counts both stages")
}

func TestUniformLocationAssignment(t *testing.T) {
	vs := basicVertexUnit()
	addVar(vs, "scale", floatType(vs), ir.ModeUniform, ir.Qualifiers{})
	vs.AddVariable(ir.Variable{
		Name: "weights", Type: arrayType(vs, floatType(vs), 8), Mode: ir.ModeUniform,
		MaxArrayAccess: 7, AssignedLocation: -1,
	})

	res := linkUnits(t, vs, basicFragmentUnit())
	require.True(t, res.Status, res.InfoLog())

	scale := res.FindResource(ResUniform, "scale").Uniform
	weights := res.FindResource(ResUniform, "weights").Uniform
	assert.Equal(t, int32(0), scale.Location)
	assert.Equal(t, int32(1), weights.Location)
	assert.Equal(t, uint32(8), weights.ArrayLength)

	// The remap table covers the array's full location run.
	require.Len(t, res.UniformRemap, 9)
	for loc := 1; loc < 9; loc++ {
		assert.Equal(t, weights, res.Uniforms[res.UniformRemap[loc]])
	}
}

func TestUniformExplicitLocationReserved(t *testing.T) {
	vs := basicVertexUnit()
	addVar(vs, "pinned", floatType(vs), ir.ModeUniform,
		ir.Qualifiers{ExplicitLocation: true, Location: 5})
	addVar(vs, "floating", floatType(vs), ir.ModeUniform, ir.Qualifiers{})

	res := linkUnits(t, vs, basicFragmentUnit())
	require.True(t, res.Status, res.InfoLog())

	assert.Equal(t, int32(5), res.FindResource(ResUniform, "pinned").Uniform.Location)
	assert.Equal(t, int32(0), res.FindResource(ResUniform, "floating").Uniform.Location)
}

func TestUniformExplicitLocationOverlap(t *testing.T) {
	vs := basicVertexUnit()
	addVar(vs, "first", floatType(vs), ir.ModeUniform,
		ir.Qualifiers{ExplicitLocation: true, Location: 0})
	addVar(vs, "second", floatType(vs), ir.ModeUniform,
		ir.Qualifiers{ExplicitLocation: true, Location: 0})

	res := linkUnits(t, vs, basicFragmentUnit())
	assert.False(t, res.Status)
	assert.Contains(t, res.InfoLog(),
		"explicit location 0 for uniform `second' overlaps location of uniform `first'")
}

func TestUniformLocationExhaustion(t *testing.T) {
	lim := limits.Default()
	lim.MaxUniformLocations = 4

	vs := basicVertexUnit()
	vs.AddVariable(ir.Variable{
		Name: "big", Type: arrayType(vs, floatType(vs), 8), Mode: ir.ModeUniform,
		MaxArrayAccess: 7, AssignedLocation: -1,
	})

	res := Link([]*ir.TranslationUnit{vs, basicFragmentUnit()}, lim, Options{})
	assert.False(t, res.Status)
	assert.Contains(t, res.InfoLog(), "too many uniform locations used (max 4)")
}

func TestSamplerCountOverLimit(t *testing.T) {
	fs := basicFragmentUnit()
	for i := 0; i < 17; i++ {
		s := addVar(fs, fmt.Sprintf("tex%d", i), sampler2DType(fs), ir.ModeUniform, ir.Qualifiers{})
		fs.Functions[0].Body = append(fs.Functions[0].Body, assign(1, s))
	}

	res := linkUnits(t, basicVertexUnit(), fs)
	assert.False(t, res.Status)
	assert.Contains(t, res.InfoLog(), "too many fragment shader texture samplers (17 > 16)")
}

func TestAtomicCounterOffsets(t *testing.T) {
	fs := basicFragmentUnit()
	acType := fs.AddType(ir.Type{Inner: ir.AtomicCounterType{}})
	addVar(fs, "hits", acType, ir.ModeUniform,
		ir.Qualifiers{ExplicitBinding: true, Binding: 0})
	addVar(fs, "misses", fs.AddType(ir.Type{Inner: ir.AtomicCounterType{}}), ir.ModeUniform,
		ir.Qualifiers{ExplicitBinding: true, Binding: 0})

	res := linkUnits(t, basicVertexUnit(), fs)
	require.True(t, res.Status, res.InfoLog())

	hits := res.FindResource(ResUniform, "hits")
	assert.Nil(t, hits, "atomic counters are not plain uniform resources")

	var counters []*UniformStorage
	for _, u := range res.Uniforms {
		if u.IsAtomicCounter() {
			counters = append(counters, u)
		}
	}
	require.Len(t, counters, 2)
	assert.Equal(t, int32(0), counters[0].AtomicOffset)
	assert.Equal(t, int32(4), counters[1].AtomicOffset)
	assert.Equal(t, int32(-1), counters[0].Location)

	buf := res.FindResource(ResAtomicCounterBuffer, "")
	require.NotNil(t, buf)
	assert.Equal(t, int32(0), buf.AtomicBuffer.Binding)
	assert.Equal(t, uint32(8), buf.AtomicBuffer.Size)
}

func TestAtomicCounterOffsetCollision(t *testing.T) {
	fs := basicFragmentUnit()
	addVar(fs, "hits", fs.AddType(ir.Type{Inner: ir.AtomicCounterType{}}), ir.ModeUniform,
		ir.Qualifiers{ExplicitBinding: true, Binding: 0, ExplicitOffset: true, Offset: 0})
	addVar(fs, "misses", fs.AddType(ir.Type{Inner: ir.AtomicCounterType{}}), ir.ModeUniform,
		ir.Qualifiers{ExplicitBinding: true, Binding: 0, ExplicitOffset: true, Offset: 0})

	res := linkUnits(t, basicVertexUnit(), fs)
	assert.False(t, res.Status)
	assert.Contains(t, res.InfoLog(),
		"atomic counter `misses' declared at offset 0 which is already in use by `hits'")
}

func TestHiddenUniformStaysOutOfResources(t *testing.T) {
	vs := basicVertexUnit()
	vs.AddVariable(ir.Variable{
		Name: "gl_state_internal", Type: floatType(vs), Mode: ir.ModeUniform,
		Declared: ir.DeclaredHidden, MaxArrayAccess: -1, AssignedLocation: -1,
	})

	res := linkUnits(t, vs, basicFragmentUnit())
	require.True(t, res.Status, res.InfoLog())
	assert.Nil(t, res.FindResource(ResUniform, "gl_state_internal"))
}
