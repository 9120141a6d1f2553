package ir

// Type queries used throughout the linker. All of them take a TypeSource so
// they work on unit arenas and registries alike.

// FormatType returns a GLSL-style spelling of a type for diagnostics.
func FormatType(src TypeSource, h TypeHandle) string {
	t, ok := src.TypeAt(h)
	if !ok {
		return "<invalid>"
	}
	switch inner := t.Inner.(type) {
	case ScalarType:
		return scalarName(inner)
	case VectorType:
		return vectorName(inner.Scalar) + vecSuffix(inner.Size)
	case MatrixType:
		name := "mat"
		if inner.Scalar.Width == 8 {
			name = "dmat"
		}
		if inner.Columns == inner.Rows {
			return name + vecSuffix(inner.Columns)
		}
		return name + vecSuffix(inner.Columns) + "x" + vecSuffix(inner.Rows)
	case ArrayType:
		base := FormatType(src, inner.Base)
		if inner.Length == 0 {
			return base + "[]"
		}
		return base + "[" + itoa(inner.Length) + "]"
	case StructType:
		if t.Name != "" {
			return t.Name
		}
		return "struct"
	case SamplerType:
		return samplerPrefix(inner.Kind) + "sampler" + dimSuffix(inner.Dim, inner.Arrayed, inner.Shadow)
	case ImageType:
		return samplerPrefix(inner.Kind) + "image" + dimSuffix(inner.Dim, inner.Arrayed, false)
	case AtomicCounterType:
		return "atomic_uint"
	case SubroutineType:
		return inner.TypeName
	}
	return "<unknown>"
}

func scalarName(s ScalarType) string {
	switch s.Kind {
	case Float:
		if s.Width == 8 {
			return "double"
		}
		return "float"
	case Sint:
		return "int"
	case Uint:
		return "uint"
	case Bool:
		return "bool"
	}
	return "<scalar>"
}

func vectorName(s ScalarType) string {
	switch s.Kind {
	case Float:
		if s.Width == 8 {
			return "dvec"
		}
		return "vec"
	case Sint:
		return "ivec"
	case Uint:
		return "uvec"
	case Bool:
		return "bvec"
	}
	return "vec"
}

func vecSuffix(n VectorSize) string {
	switch n {
	case Vec2:
		return "2"
	case Vec3:
		return "3"
	case Vec4:
		return "4"
	}
	return "?"
}

func samplerPrefix(k ScalarKind) string {
	switch k {
	case Sint:
		return "i"
	case Uint:
		return "u"
	}
	return ""
}

func dimSuffix(d ImageDimension, arrayed, shadow bool) string {
	s := ""
	switch d {
	case Dim1D:
		s = "1D"
	case Dim2D:
		s = "2D"
	case Dim3D:
		s = "3D"
	case DimCube:
		s = "Cube"
	case DimBuffer:
		s = "Buffer"
	}
	if arrayed {
		s += "Array"
	}
	if shadow {
		s += "Shadow"
	}
	return s
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// TypesEqual reports exact structural equality of two types from possibly
// different arenas. Array lengths must match; use ArrayInfo for the
// unsized/sized unification rule.
func TypesEqual(a TypeSource, ah TypeHandle, b TypeSource, bh TypeHandle) bool {
	at, ok := a.TypeAt(ah)
	if !ok {
		return false
	}
	bt, ok := b.TypeAt(bh)
	if !ok {
		return false
	}
	switch ai := at.Inner.(type) {
	case ScalarType:
		bi, ok := bt.Inner.(ScalarType)
		return ok && ai == bi
	case VectorType:
		bi, ok := bt.Inner.(VectorType)
		return ok && ai == bi
	case MatrixType:
		bi, ok := bt.Inner.(MatrixType)
		return ok && ai == bi
	case ArrayType:
		bi, ok := bt.Inner.(ArrayType)
		return ok && ai.Length == bi.Length && TypesEqual(a, ai.Base, b, bi.Base)
	case StructType:
		bi, ok := bt.Inner.(StructType)
		if !ok || len(ai.Members) != len(bi.Members) {
			return false
		}
		for i := range ai.Members {
			am, bm := ai.Members[i], bi.Members[i]
			if am.Name != bm.Name || am.RowMajor != bm.RowMajor {
				return false
			}
			if !TypesEqual(a, am.Type, b, bm.Type) {
				return false
			}
		}
		return true
	case SamplerType:
		bi, ok := bt.Inner.(SamplerType)
		return ok && ai == bi
	case ImageType:
		bi, ok := bt.Inner.(ImageType)
		return ok && ai == bi
	case AtomicCounterType:
		_, ok := bt.Inner.(AtomicCounterType)
		return ok
	case SubroutineType:
		bi, ok := bt.Inner.(SubroutineType)
		return ok && ai == bi
	}
	return false
}

// ArrayInfo returns the element type and length of an array type.
func ArrayInfo(src TypeSource, h TypeHandle) (elem TypeHandle, length uint32, ok bool) {
	t, found := src.TypeAt(h)
	if !found {
		return 0, 0, false
	}
	arr, isArr := t.Inner.(ArrayType)
	if !isArr {
		return 0, 0, false
	}
	return arr.Base, arr.Length, true
}

// WithoutArray strips array types, returning the element type.
func WithoutArray(src TypeSource, h TypeHandle) TypeHandle {
	for {
		elem, _, ok := ArrayInfo(src, h)
		if !ok {
			return h
		}
		h = elem
	}
}

// BaseScalar returns the underlying scalar of a scalar, vector or matrix
// type (looking through arrays).
func BaseScalar(src TypeSource, h TypeHandle) (ScalarType, bool) {
	t, ok := src.TypeAt(WithoutArray(src, h))
	if !ok {
		return ScalarType{}, false
	}
	switch inner := t.Inner.(type) {
	case ScalarType:
		return inner, true
	case VectorType:
		return inner.Scalar, true
	case MatrixType:
		return inner.Scalar, true
	}
	return ScalarType{}, false
}

// VectorElems returns the number of components of a scalar or vector type,
// or 0 for other types.
func VectorElems(src TypeSource, h TypeHandle) uint32 {
	t, ok := src.TypeAt(h)
	if !ok {
		return 0
	}
	switch inner := t.Inner.(type) {
	case ScalarType:
		return 1
	case VectorType:
		return uint32(inner.Size)
	}
	return 0
}

// IsOpaque reports whether a type is opaque (sampler, image, atomic counter
// or subroutine), looking through arrays.
func IsOpaque(src TypeSource, h TypeHandle) bool {
	t, ok := src.TypeAt(WithoutArray(src, h))
	if !ok {
		return false
	}
	switch t.Inner.(type) {
	case SamplerType, ImageType, AtomicCounterType, SubroutineType:
		return true
	}
	return false
}

// IsDualSlot reports whether the type's non-array element needs two
// locations' worth of storage per slot: double-precision vectors with more
// than two components, and matrices built from them.
func IsDualSlot(src TypeSource, h TypeHandle) bool {
	t, ok := src.TypeAt(WithoutArray(src, h))
	if !ok {
		return false
	}
	switch inner := t.Inner.(type) {
	case VectorType:
		return inner.Scalar.Width == 8 && inner.Size > Vec2
	case MatrixType:
		return inner.Scalar.Width == 8 && inner.Rows > Vec2
	}
	return false
}

// SlotCount returns the number of location slots a type occupies.
// For vertex inputs, double-precision vec3/vec4 (and matrices of them)
// occupy two slots per column.
func SlotCount(src TypeSource, h TypeHandle, vertexInput bool) uint32 {
	t, ok := src.TypeAt(h)
	if !ok {
		return 0
	}
	switch inner := t.Inner.(type) {
	case ScalarType:
		return 1
	case VectorType:
		if vertexInput && inner.Scalar.Width == 8 && inner.Size > Vec2 {
			return 2
		}
		return 1
	case MatrixType:
		col := uint32(1)
		if vertexInput && inner.Scalar.Width == 8 && inner.Rows > Vec2 {
			col = 2
		}
		return uint32(inner.Columns) * col
	case ArrayType:
		return inner.Length * SlotCount(src, inner.Base, vertexInput)
	case StructType:
		var sum uint32
		for _, m := range inner.Members {
			sum += SlotCount(src, m.Type, vertexInput)
		}
		return sum
	case SamplerType, ImageType, AtomicCounterType, SubroutineType:
		return 1
	}
	return 0
}

// ComponentCount returns the number of 32-bit components a type occupies.
// Double-precision scalars count two.
func ComponentCount(src TypeSource, h TypeHandle) uint32 {
	t, ok := src.TypeAt(h)
	if !ok {
		return 0
	}
	switch inner := t.Inner.(type) {
	case ScalarType:
		return scalarComponents(inner)
	case VectorType:
		return uint32(inner.Size) * scalarComponents(inner.Scalar)
	case MatrixType:
		return uint32(inner.Columns) * uint32(inner.Rows) * scalarComponents(inner.Scalar)
	case ArrayType:
		return inner.Length * ComponentCount(src, inner.Base)
	case StructType:
		var sum uint32
		for _, m := range inner.Members {
			sum += ComponentCount(src, m.Type)
		}
		return sum
	case SamplerType, ImageType, AtomicCounterType, SubroutineType:
		return 1
	}
	return 0
}

func scalarComponents(s ScalarType) uint32 {
	if s.Width == 8 {
		return 2
	}
	return 1
}

// UniformLocationCount returns the number of uniform locations a type
// consumes: one per basic-type leaf, arrays multiply by their length.
func UniformLocationCount(src TypeSource, h TypeHandle) uint32 {
	t, ok := src.TypeAt(h)
	if !ok {
		return 0
	}
	switch inner := t.Inner.(type) {
	case ArrayType:
		n := inner.Length
		if n == 0 {
			n = 1
		}
		return n * UniformLocationCount(src, inner.Base)
	case StructType:
		var sum uint32
		for _, m := range inner.Members {
			sum += UniformLocationCount(src, m.Type)
		}
		return sum
	}
	return 1
}

// BlockDataSize returns the byte size of a type under the given block
// packing. Shared and packed layouts are sized with std140 rules, which is
// the conservative upper bound the limit checks need. Unsized arrays
// contribute zero bytes.
func BlockDataSize(src TypeSource, h TypeHandle, packing Packing) uint32 {
	_, size := alignAndSize(src, h, packing, false)
	return size
}

func alignAndSize(src TypeSource, h TypeHandle, packing Packing, rowMajor bool) (uint32, uint32) {
	t, ok := src.TypeAt(h)
	if !ok {
		return 1, 0
	}
	std430 := packing == PackStd430
	switch inner := t.Inner.(type) {
	case ScalarType:
		w := uint32(inner.Width)
		if inner.Kind == Bool {
			w = 4
		}
		return w, w
	case VectorType:
		w := uint32(inner.Scalar.Width)
		if inner.Scalar.Kind == Bool {
			w = 4
		}
		switch inner.Size {
		case Vec2:
			return 2 * w, 2 * w
		default:
			return 4 * w, uint32(inner.Size) * w
		}
	case MatrixType:
		// A matrix lays out as an array of its column (or row) vectors.
		vecs, elems := uint32(inner.Columns), inner.Rows
		if rowMajor {
			vecs, elems = uint32(inner.Rows), inner.Columns
		}
		w := uint32(inner.Scalar.Width)
		var elemAlign uint32
		if elems == Vec2 {
			elemAlign = 2 * w
		} else {
			elemAlign = 4 * w
		}
		stride := elemAlign
		if !std430 {
			stride = roundUp(stride, 16)
		}
		return stride, stride * vecs
	case ArrayType:
		elemAlign, elemSize := alignAndSize(src, inner.Base, packing, rowMajor)
		stride := roundUp(elemSize, elemAlign)
		if !std430 {
			stride = roundUp(stride, 16)
		}
		return stride, stride * inner.Length
	case StructType:
		var align, offset uint32 = 1, 0
		for _, m := range inner.Members {
			ma, ms := alignAndSize(src, m.Type, packing, m.RowMajor)
			offset = roundUp(offset, ma) + ms
			if ma > align {
				align = ma
			}
		}
		if !std430 {
			align = roundUp(align, 16)
		}
		return align, roundUp(offset, align)
	}
	return 4, 4
}

// ArrayStride returns the byte stride between elements of an array of the
// given element type under a block packing.
func ArrayStride(src TypeSource, elem TypeHandle, packing Packing) uint32 {
	align, size := alignAndSize(src, elem, packing, false)
	stride := roundUp(size, align)
	if packing != PackStd430 {
		stride = roundUp(stride, 16)
	}
	return stride
}

// StructDataSize lays out a member list as a struct under the given packing
// and returns its byte size. Interface block sizing uses this without
// registering a struct type.
func StructDataSize(src TypeSource, members []StructMember, packing Packing) uint32 {
	var align, offset uint32 = 1, 0
	for _, m := range members {
		ma, ms := alignAndSize(src, m.Type, packing, m.RowMajor)
		offset = roundUp(offset, ma) + ms
		if ma > align {
			align = ma
		}
	}
	if packing != PackStd430 {
		align = roundUp(align, 16)
	}
	return roundUp(offset, align)
}

func roundUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}
