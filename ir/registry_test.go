package ir

import "testing"

func TestTypeRegistryDeduplication(t *testing.T) {
	r := NewTypeRegistry()

	h1 := r.GetOrCreate("", ScalarType{Kind: Float, Width: 4})
	h2 := r.GetOrCreate("", ScalarType{Kind: Float, Width: 4})
	if h1 != h2 {
		t.Errorf("Expected same handle for identical scalar types, got %d and %d", h1, h2)
	}

	h3 := r.GetOrCreate("", ScalarType{Kind: Float, Width: 8})
	if h3 == h1 {
		t.Errorf("Expected distinct handle for different width, got %d for both", h1)
	}

	if r.Count() != 2 {
		t.Errorf("Expected 2 registered types, got %d", r.Count())
	}
}

func TestTypeRegistryVectorAndMatrix(t *testing.T) {
	r := NewTypeRegistry()

	f32 := ScalarType{Kind: Float, Width: 4}
	v1 := r.GetOrCreate("", VectorType{Size: Vec4, Scalar: f32})
	v2 := r.GetOrCreate("", VectorType{Size: Vec4, Scalar: f32})
	if v1 != v2 {
		t.Errorf("Expected same handle for identical vec4, got %d and %d", v1, v2)
	}

	m1 := r.GetOrCreate("", MatrixType{Columns: Vec4, Rows: Vec4, Scalar: f32})
	m2 := r.GetOrCreate("", MatrixType{Columns: Vec3, Rows: Vec4, Scalar: f32})
	if m1 == m2 {
		t.Errorf("Expected distinct handles for mat4 and mat3x4, got %d for both", m1)
	}
}

func TestTypeRegistryStructByMembers(t *testing.T) {
	r := NewTypeRegistry()
	vec4 := r.GetOrCreate("", VectorType{Size: Vec4, Scalar: ScalarType{Kind: Float, Width: 4}})

	s1 := r.GetOrCreate("Light", StructType{Members: []StructMember{
		{Name: "position", Type: vec4},
		{Name: "color", Type: vec4},
	}})
	s2 := r.GetOrCreate("Light", StructType{Members: []StructMember{
		{Name: "position", Type: vec4},
		{Name: "color", Type: vec4},
	}})
	if s1 != s2 {
		t.Errorf("Expected same handle for identical structs, got %d and %d", s1, s2)
	}

	s3 := r.GetOrCreate("Light2", StructType{Members: []StructMember{
		{Name: "position", Type: vec4},
	}})
	if s3 == s1 {
		t.Errorf("Expected distinct handle for different member list, got %d for both", s1)
	}
}

func TestTypeRegistryImport(t *testing.T) {
	unit := &TranslationUnit{}
	f32 := unit.AddType(Type{Inner: ScalarType{Kind: Float, Width: 4}})
	vec4 := unit.AddType(Type{Inner: VectorType{Size: Vec4, Scalar: ScalarType{Kind: Float, Width: 4}}})
	arr := unit.AddType(Type{Inner: ArrayType{Base: vec4, Length: 8}})
	st := unit.AddType(Type{Name: "Light", Inner: StructType{Members: []StructMember{
		{Name: "position", Type: vec4},
		{Name: "intensity", Type: f32},
	}}})

	r := NewTypeRegistry()
	ih, err := r.Import(unit, st)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	it, ok := r.Lookup(ih)
	if !ok {
		t.Fatal("Imported struct handle does not resolve")
	}
	inner, ok := it.Inner.(StructType)
	if !ok {
		t.Fatalf("Expected StructType, got %T", it.Inner)
	}
	if len(inner.Members) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(inner.Members))
	}
	if !TypesEqual(r, inner.Members[0].Type, unit, vec4) {
		t.Error("Imported member type does not match source")
	}

	// Importing the same structure from a second unit must reuse handles.
	unit2 := &TranslationUnit{}
	vec4b := unit2.AddType(Type{Inner: VectorType{Size: Vec4, Scalar: ScalarType{Kind: Float, Width: 4}}})
	dup, err := r.Import(unit2, vec4b)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if dup != inner.Members[0].Type {
		t.Errorf("Expected structurally equal imports to share a handle, got %d and %d",
			dup, inner.Members[0].Type)
	}

	ah, err := r.Import(unit, arr)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if got := FormatType(r, ah); got != "vec4[8]" {
		t.Errorf("Expected vec4[8], got %s", got)
	}
}

func TestTypeRegistryResizeArray(t *testing.T) {
	r := NewTypeRegistry()
	f32 := r.GetOrCreate("", ScalarType{Kind: Float, Width: 4})
	unsized := r.GetOrCreate("", ArrayType{Base: f32, Length: 0})

	sized, err := r.ResizeArray(unsized, 6)
	if err != nil {
		t.Fatalf("ResizeArray failed: %v", err)
	}
	if got := FormatType(r, sized); got != "float[6]" {
		t.Errorf("Expected float[6], got %s", got)
	}

	again, err := r.ResizeArray(unsized, 6)
	if err != nil {
		t.Fatalf("ResizeArray failed: %v", err)
	}
	if again != sized {
		t.Errorf("Expected resize to dedupe, got %d and %d", again, sized)
	}

	if _, err := r.ResizeArray(f32, 4); err == nil {
		t.Error("Expected error resizing a non-array type")
	}
}
