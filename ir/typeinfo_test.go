package ir

import "testing"

func testUnit() (*TranslationUnit, map[string]TypeHandle) {
	u := &TranslationUnit{}
	f32 := ScalarType{Kind: Float, Width: 4}
	f64 := ScalarType{Kind: Float, Width: 8}
	h := map[string]TypeHandle{}
	h["float"] = u.AddType(Type{Inner: f32})
	h["double"] = u.AddType(Type{Inner: f64})
	h["vec4"] = u.AddType(Type{Inner: VectorType{Size: Vec4, Scalar: f32}})
	h["dvec4"] = u.AddType(Type{Inner: VectorType{Size: Vec4, Scalar: f64}})
	h["dvec2"] = u.AddType(Type{Inner: VectorType{Size: Vec2, Scalar: f64}})
	h["mat4"] = u.AddType(Type{Inner: MatrixType{Columns: Vec4, Rows: Vec4, Scalar: f32}})
	h["dmat3"] = u.AddType(Type{Inner: MatrixType{Columns: Vec3, Rows: Vec3, Scalar: f64}})
	h["vec4[8]"] = u.AddType(Type{Inner: ArrayType{Base: h["vec4"], Length: 8}})
	h["float[]"] = u.AddType(Type{Inner: ArrayType{Base: h["float"], Length: 0}})
	h["sampler2D"] = u.AddType(Type{Inner: SamplerType{Dim: Dim2D, Kind: Float}})
	return u, h
}

func TestFormatType(t *testing.T) {
	u, h := testUnit()
	cases := map[string]string{
		"float": "float", "double": "double", "vec4": "vec4", "dvec4": "dvec4",
		"mat4": "mat4", "dmat3": "dmat3", "vec4[8]": "vec4[8]",
		"float[]": "float[]", "sampler2D": "sampler2D",
	}
	for name, want := range cases {
		if got := FormatType(u, h[name]); got != want {
			t.Errorf("FormatType(%s) = %s, want %s", name, got, want)
		}
	}
}

func TestSlotCount(t *testing.T) {
	u, h := testUnit()
	cases := []struct {
		name        string
		vertexInput bool
		want        uint32
	}{
		{"float", true, 1},
		{"vec4", true, 1},
		{"dvec4", true, 2},
		{"dvec4", false, 1},
		{"dvec2", true, 1},
		{"mat4", true, 4},
		{"dmat3", true, 6},
		{"vec4[8]", false, 8},
	}
	for _, c := range cases {
		if got := SlotCount(u, h[c.name], c.vertexInput); got != c.want {
			t.Errorf("SlotCount(%s, vertexInput=%t) = %d, want %d", c.name, c.vertexInput, got, c.want)
		}
	}
}

func TestIsDualSlot(t *testing.T) {
	u, h := testUnit()
	if IsDualSlot(u, h["vec4"]) {
		t.Error("vec4 must not be dual slot")
	}
	if IsDualSlot(u, h["dvec2"]) {
		t.Error("dvec2 must not be dual slot")
	}
	if !IsDualSlot(u, h["dvec4"]) {
		t.Error("dvec4 must be dual slot")
	}
	if !IsDualSlot(u, h["dmat3"]) {
		t.Error("dmat3 must be dual slot")
	}
}

func TestComponentCount(t *testing.T) {
	u, h := testUnit()
	cases := map[string]uint32{
		"float": 1, "double": 2, "vec4": 4, "dvec4": 8, "mat4": 16, "vec4[8]": 32,
	}
	for name, want := range cases {
		if got := ComponentCount(u, h[name]); got != want {
			t.Errorf("ComponentCount(%s) = %d, want %d", name, got, want)
		}
	}
}

func TestTypesEqualAcrossArenas(t *testing.T) {
	a, ah := testUnit()
	b, bh := testUnit()

	if !TypesEqual(a, ah["vec4[8]"], b, bh["vec4[8]"]) {
		t.Error("Identical array types from different arenas must compare equal")
	}
	if TypesEqual(a, ah["vec4[8]"], b, bh["float[]"]) {
		t.Error("Different array types must not compare equal")
	}
	if TypesEqual(a, ah["vec4"], b, bh["dvec4"]) {
		t.Error("vec4 and dvec4 must not compare equal")
	}
}

func TestBlockDataSizeStd140(t *testing.T) {
	u := &TranslationUnit{}
	f32 := ScalarType{Kind: Float, Width: 4}
	fh := u.AddType(Type{Inner: f32})
	v3 := u.AddType(Type{Inner: VectorType{Size: Vec3, Scalar: f32}})
	arr := u.AddType(Type{Inner: ArrayType{Base: fh, Length: 4}})
	st := u.AddType(Type{Inner: StructType{Members: []StructMember{
		{Name: "a", Type: fh},
		{Name: "b", Type: v3},
		{Name: "c", Type: arr},
	}}})

	// std140: float at 0, vec3 aligned to 16 ends at 28, float[4] with
	// 16-byte stride starts at 32 and ends at 96, struct rounds up to 96.
	if got := BlockDataSize(u, st, PackStd140); got != 96 {
		t.Errorf("std140 size = %d, want 96", got)
	}

	// std430: array stride collapses to 4, struct is 32+16 = 48.
	if got := BlockDataSize(u, st, PackStd430); got != 48 {
		t.Errorf("std430 size = %d, want 48", got)
	}
}

func TestUniformLocationCount(t *testing.T) {
	u, h := testUnit()
	if got := UniformLocationCount(u, h["vec4"]); got != 1 {
		t.Errorf("vec4 = %d locations, want 1", got)
	}
	if got := UniformLocationCount(u, h["vec4[8]"]); got != 8 {
		t.Errorf("vec4[8] = %d locations, want 8", got)
	}

	st := u.AddType(Type{Inner: StructType{Members: []StructMember{
		{Name: "m", Type: h["mat4"]},
		{Name: "a", Type: h["vec4[8]"]},
	}}})
	if got := UniformLocationCount(u, st); got != 9 {
		t.Errorf("struct = %d locations, want 9", got)
	}
}
