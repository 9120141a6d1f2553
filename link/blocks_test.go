package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/shaderlink/ir"
)

func member(name string, t ir.TypeHandle) ir.BlockMember {
	return ir.BlockMember{Name: name, Type: t, Offset: -1}
}

func TestInterstageUniformBlockMerge(t *testing.T) {
	vs := basicVertexUnit()
	vs.AddBlock(ir.InterfaceBlock{
		Name: "Matrices", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{member("mvp", mat4Type(vs))},
	})
	fs := basicFragmentUnit()
	fs.AddBlock(ir.InterfaceBlock{
		Name: "Matrices", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{member("mvp", mat4Type(fs))},
	})

	res := linkUnits(t, vs, fs)
	require.True(t, res.Status, res.InfoLog())

	require.Len(t, res.UniformBlocks, 1)
	b := res.UniformBlocks[0]
	assert.Equal(t, "Matrices", b.Name)
	assert.Equal(t, ir.StageVertex.Bit()|ir.StageFragment.Bit(), b.StageRefs)
	assert.Equal(t, uint32(64), b.ByteSize)
	assert.GreaterOrEqual(t, b.StageIndex[ir.StageVertex], int32(0))
	assert.GreaterOrEqual(t, b.StageIndex[ir.StageFragment], int32(0))
	assert.Equal(t, int32(-1), b.StageIndex[ir.StageGeometry])

	require.NotNil(t, res.FindResource(ResUniformBlock, "Matrices"))
	mvp := res.FindResource(ResUniform, "mvp")
	require.NotNil(t, mvp)
	assert.Equal(t, int32(0), mvp.Uniform.BlockIndex)
	assert.Equal(t, int32(-1), mvp.Uniform.Location)
}

func TestInterstageBlockMemberTypeMismatch(t *testing.T) {
	vs := basicVertexUnit()
	vs.AddBlock(ir.InterfaceBlock{
		Name: "Matrices", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{member("mvp", mat4Type(vs))},
	})
	fs := basicFragmentUnit()
	fs.AddBlock(ir.InterfaceBlock{
		Name: "Matrices", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{member("mvp", vecType(fs, ir.Vec4))},
	})

	res := linkUnits(t, vs, fs)
	assert.False(t, res.Status)
	assert.Contains(t, res.InfoLog(), "uniform block `Matrices' has mismatching definitions (member `mvp' differs in type)")
}

func TestIntrastageBlockPackingMismatch(t *testing.T) {
	a := basicVertexUnit()
	a.AddBlock(ir.InterfaceBlock{
		Name: "Params", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{member("value", floatType(a))},
	})
	b := testUnit("vs-b", ir.StageVertex)
	b.AddBlock(ir.InterfaceBlock{
		Name: "Params", Mode: ir.BlockUniform, Packing: ir.PackShared,
		Members: []ir.BlockMember{member("value", floatType(b))},
	})

	res := linkUnits(t, a, b, basicFragmentUnit())
	assert.False(t, res.Status)
	assert.Contains(t, res.InfoLog(), "uniform block `Params' has mismatching definitions (packing layouts differ)")
}

func TestBlockResourceStageRefsFollowReferences(t *testing.T) {
	vs := basicVertexUnit()
	vsBlock := vs.AddBlock(ir.InterfaceBlock{
		Name: "Matrices", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{member("mvp", mat4Type(vs))},
	})
	mvp := vs.AddVariable(ir.Variable{
		Name: "mvp", Type: mat4Type(vs), Mode: ir.ModeUniform,
		InBlock: true, Block: vsBlock,
		MaxArrayAccess: -1, AssignedLocation: -1,
	})
	vs.Functions[0].Body = append(vs.Functions[0].Body, assign(2, mvp))

	fs := basicFragmentUnit()
	fs.AddBlock(ir.InterfaceBlock{
		Name: "Matrices", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{member("mvp", mat4Type(fs))},
	})

	res := linkUnits(t, vs, fs)
	require.True(t, res.Status, res.InfoLog())

	// Both stages declare the block but only the vertex body touches a
	// member, so the registry record carries the vertex bit alone while the
	// canonical block keeps the declaration mask.
	blk := res.FindResource(ResUniformBlock, "Matrices")
	require.NotNil(t, blk)
	assert.Equal(t, ir.StageVertex.Bit(), blk.StageRefs)
	assert.Equal(t, ir.StageVertex.Bit()|ir.StageFragment.Bit(), blk.Block.StageRefs)
}

func TestBlockBindingAdoption(t *testing.T) {
	vs := basicVertexUnit()
	vs.AddBlock(ir.InterfaceBlock{
		Name: "Matrices", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{member("mvp", mat4Type(vs))},
	})
	fs := basicFragmentUnit()
	fs.AddBlock(ir.InterfaceBlock{
		Name: "Matrices", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Binding: 2, ExplicitBinding: true,
		Members: []ir.BlockMember{member("mvp", mat4Type(fs))},
	})

	res := linkUnits(t, vs, fs)
	require.True(t, res.Status, res.InfoLog())
	require.Len(t, res.UniformBlocks, 1)
	assert.True(t, res.UniformBlocks[0].ExplicitBinding)
	assert.Equal(t, int32(2), res.UniformBlocks[0].Binding)
}

func TestCanonicalBlockOrderIsStageIndependent(t *testing.T) {
	vs := basicVertexUnit()
	vs.AddBlock(ir.InterfaceBlock{
		Name: "Zeta", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{member("z", floatType(vs))},
	})
	fs := basicFragmentUnit()
	fs.AddBlock(ir.InterfaceBlock{
		Name: "Alpha", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{member("a", floatType(fs))},
	})

	res := linkUnits(t, vs, fs)
	require.True(t, res.Status, res.InfoLog())
	require.Len(t, res.UniformBlocks, 2)
	assert.Equal(t, "Alpha", res.UniformBlocks[0].Name)
	assert.Equal(t, "Zeta", res.UniformBlocks[1].Name)
}

func TestBlockInstanceNamePrefixesMembers(t *testing.T) {
	fs := basicFragmentUnit()
	fs.AddBlock(ir.InterfaceBlock{
		Name: "Material", InstanceName: "mat", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{member("baseColor", vecType(fs, ir.Vec4))},
	})

	res := linkUnits(t, basicVertexUnit(), fs)
	require.True(t, res.Status, res.InfoLog())
	require.NotNil(t, res.FindResource(ResUniform, "Material.baseColor"))
	assert.Nil(t, res.FindResource(ResUniform, "baseColor"))
}

func TestBlockByteSizeStd140(t *testing.T) {
	fs := basicFragmentUnit()
	f := floatType(fs)
	v3 := vecType(fs, ir.Vec3)
	fs.AddBlock(ir.InterfaceBlock{
		Name: "Params", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{
			member("a", f),
			member("b", v3),
			member("c", arrayType(fs, floatType(fs), 4)),
		},
	})

	res := linkUnits(t, basicVertexUnit(), fs)
	require.True(t, res.Status, res.InfoLog())
	require.Len(t, res.UniformBlocks, 1)
	assert.Equal(t, uint32(96), res.UniformBlocks[0].ByteSize)
}

func TestStorageBlockTrailingUnsizedArray(t *testing.T) {
	cs := testUnit("cs", ir.StageCompute)
	cs.Layout.LocalSize = [3]uint32{64, 1, 1}
	v4 := vecType(cs, ir.Vec4)
	cs.AddBlock(ir.InterfaceBlock{
		Name: "Particles", Mode: ir.BlockStorage, Packing: ir.PackStd430,
		Members: []ir.BlockMember{
			member("count", cs.AddType(ir.Type{Inner: ir.ScalarType{Kind: ir.Uint, Width: 4}})),
			member("data", arrayType(cs, v4, 0)),
		},
	})
	addMain(cs)

	res := linkUnits(t, cs)
	require.True(t, res.Status, res.InfoLog())

	require.Len(t, res.StorageBlocks, 1)
	require.NotNil(t, res.FindResource(ResStorageBlock, "Particles"))

	data := res.FindResource(ResBufferVariable, "data[0]")
	require.NotNil(t, data)
	assert.True(t, data.Uniform.IsStorage)
	assert.Equal(t, int32(0), data.Uniform.TopLevelArraySize)
	assert.Equal(t, int32(16), data.Uniform.TopLevelArrayStride)
}

func TestStorageBlockSharedAcrossStages(t *testing.T) {
	vs := basicVertexUnit()
	vs.AddBlock(ir.InterfaceBlock{
		Name: "Particles", Mode: ir.BlockStorage, Packing: ir.PackStd430,
		Members: []ir.BlockMember{
			member("count", vs.AddType(ir.Type{Inner: ir.ScalarType{Kind: ir.Uint, Width: 4}})),
			member("data", arrayType(vs, vecType(vs, ir.Vec4), 0)),
		},
	})
	fs := basicFragmentUnit()
	fs.AddBlock(ir.InterfaceBlock{
		Name: "Particles", Mode: ir.BlockStorage, Packing: ir.PackStd430,
		Members: []ir.BlockMember{
			member("count", fs.AddType(ir.Type{Inner: ir.ScalarType{Kind: ir.Uint, Width: 4}})),
			member("data", arrayType(fs, vecType(fs, ir.Vec4), 0)),
		},
	})

	res := linkUnits(t, vs, fs)
	require.True(t, res.Status, res.InfoLog())

	require.Len(t, res.StorageBlocks, 1)
	b := res.StorageBlocks[0]
	assert.Equal(t, ir.StageVertex.Bit()|ir.StageFragment.Bit(), b.StageRefs)
	assert.GreaterOrEqual(t, b.StageIndex[ir.StageVertex], int32(0))
	assert.GreaterOrEqual(t, b.StageIndex[ir.StageFragment], int32(0))
}

func TestStorageBlockSizedAndUnsizedTrailingMemberUnify(t *testing.T) {
	a := testUnit("cs-a", ir.StageCompute)
	a.Layout.LocalSize = [3]uint32{8, 1, 1}
	a.AddBlock(ir.InterfaceBlock{
		Name: "Data", Mode: ir.BlockStorage, Packing: ir.PackStd430,
		Members: []ir.BlockMember{member("values", arrayType(a, floatType(a), 0))},
	})
	addMain(a)

	b := testUnit("cs-b", ir.StageCompute)
	b.AddBlock(ir.InterfaceBlock{
		Name: "Data", Mode: ir.BlockStorage, Packing: ir.PackStd430,
		Members: []ir.BlockMember{member("values", arrayType(b, floatType(b), 128))},
	})

	res := linkUnits(t, a, b)
	require.True(t, res.Status, res.InfoLog())
	require.Len(t, res.StorageBlocks, 1)

	// The sized declaration won.
	block := res.StorageBlocks[0]
	_, length, isArr := ir.ArrayInfo(block.Src, block.Members[0].Type)
	require.True(t, isArr)
	assert.Equal(t, uint32(128), length)
}
