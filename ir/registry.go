package ir

import "fmt"

// TypeSource resolves type handles. TranslationUnit and LinkedStage both
// implement it, so comparisons and imports work across arenas.
type TypeSource interface {
	TypeAt(h TypeHandle) (Type, bool)
}

// TypeRegistry provides type deduplication for a linked stage.
// Structurally identical types imported from different units receive the
// same handle, so handle equality implies type equality within one registry.
type TypeRegistry struct {
	types   []Type
	typeMap map[string]TypeHandle
}

// NewTypeRegistry creates a new empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		typeMap: make(map[string]TypeHandle),
	}
}

// GetOrCreate returns a handle for the given type, creating it if needed.
// Types are deduplicated structurally: two calls with equivalent Inner
// values return the same handle even if the names differ (the first name
// registered wins; names only matter for diagnostics).
func (r *TypeRegistry) GetOrCreate(name string, inner TypeInner) TypeHandle {
	key := r.normalizeType(inner)
	if handle, exists := r.typeMap[key]; exists {
		return handle
	}

	handle := TypeHandle(len(r.types))
	r.types = append(r.types, Type{Name: name, Inner: inner})
	r.typeMap[key] = handle
	return handle
}

// normalizeType generates a unique structural key for a type.
// Handles inside composite types are registry handles, so their numeric
// value is already canonical.
func (r *TypeRegistry) normalizeType(inner TypeInner) string {
	switch t := inner.(type) {
	case ScalarType:
		return fmt.Sprintf("scalar:%d:%d", t.Kind, t.Width)
	case VectorType:
		return fmt.Sprintf("vec:%d:%d:%d", t.Size, t.Scalar.Kind, t.Scalar.Width)
	case MatrixType:
		return fmt.Sprintf("mat:%dx%d:%d:%d", t.Columns, t.Rows, t.Scalar.Kind, t.Scalar.Width)
	case ArrayType:
		return fmt.Sprintf("array:%d:%d", t.Base, t.Length)
	case StructType:
		key := "struct"
		for _, m := range t.Members {
			key += fmt.Sprintf(":%s:%d:%t", m.Name, m.Type, m.RowMajor)
		}
		return key
	case SamplerType:
		return fmt.Sprintf("sampler:%d:%t:%t:%d", t.Dim, t.Arrayed, t.Shadow, t.Kind)
	case ImageType:
		return fmt.Sprintf("image:%d:%t:%d", t.Dim, t.Arrayed, t.Kind)
	case AtomicCounterType:
		return "atomic_uint"
	case SubroutineType:
		return "subroutine:" + t.TypeName
	}
	return fmt.Sprintf("unknown:%T", inner)
}

// Lookup returns the type for a handle.
func (r *TypeRegistry) Lookup(handle TypeHandle) (Type, bool) {
	if int(handle) >= len(r.types) {
		return Type{}, false
	}
	return r.types[handle], true
}

// TypeAt implements TypeSource.
func (r *TypeRegistry) TypeAt(handle TypeHandle) (Type, bool) {
	return r.Lookup(handle)
}

// Count returns the number of registered types.
func (r *TypeRegistry) Count() int {
	return len(r.types)
}

// Import clones a type from another arena into the registry, recursively
// importing component types. Structurally identical types from different
// units collapse to one handle.
func (r *TypeRegistry) Import(src TypeSource, h TypeHandle) (TypeHandle, error) {
	t, ok := src.TypeAt(h)
	if !ok {
		return 0, fmt.Errorf("invalid type handle %d", h)
	}

	switch inner := t.Inner.(type) {
	case ScalarType, VectorType, MatrixType, SamplerType, ImageType,
		AtomicCounterType, SubroutineType:
		return r.GetOrCreate(t.Name, inner), nil

	case ArrayType:
		base, err := r.Import(src, inner.Base)
		if err != nil {
			return 0, err
		}
		return r.GetOrCreate(t.Name, ArrayType{Base: base, Length: inner.Length}), nil

	case StructType:
		members := make([]StructMember, len(inner.Members))
		for i, m := range inner.Members {
			mt, err := r.Import(src, m.Type)
			if err != nil {
				return 0, err
			}
			members[i] = StructMember{Name: m.Name, Type: mt, RowMajor: m.RowMajor}
		}
		return r.GetOrCreate(t.Name, StructType{Members: members}), nil
	}
	return 0, fmt.Errorf("cannot import type %T", t.Inner)
}

// ResizeArray returns a registered array type with the same element type as
// the given registry array type but the new length. Used when an unsized
// declaration is unified with a sized one, or an implicitly-sized array is
// grown to its maximum access.
func (r *TypeRegistry) ResizeArray(h TypeHandle, length uint32) (TypeHandle, error) {
	t, ok := r.Lookup(h)
	if !ok {
		return 0, fmt.Errorf("invalid type handle %d", h)
	}
	arr, ok := t.Inner.(ArrayType)
	if !ok {
		return 0, fmt.Errorf("type %s is not an array", FormatType(r, h))
	}
	return r.GetOrCreate(t.Name, ArrayType{Base: arr.Base, Length: length}), nil
}
