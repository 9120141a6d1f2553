package ir

import "fmt"

// Handle types for referencing IR elements within their owning arena.
// Handles are indices, stable across cloning as long as the arena only grows.
type (
	// TypeHandle references a type in a unit's type arena or a registry.
	TypeHandle uint32
	// VariableHandle references a global variable.
	VariableHandle uint32
	// FunctionHandle references a function.
	FunctionHandle uint32
	// BlockHandle references an interface block.
	BlockHandle uint32
)

// InvalidHandle marks an unresolved handle slot.
const InvalidHandle = ^uint32(0)

// ShaderStage identifies a pipeline stage, in pipeline order.
type ShaderStage uint8

const (
	StageVertex ShaderStage = iota
	StageTessControl
	StageTessEval
	StageGeometry
	StageFragment
	StageCompute

	// StageCount is the number of pipeline stages.
	StageCount
)

// String returns the stage name used in diagnostics.
func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageTessControl:
		return "tessellation control"
	case StageTessEval:
		return "tessellation evaluation"
	case StageGeometry:
		return "geometry"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Bit returns the stage's bit in a stage mask.
func (s ShaderStage) Bit() uint8 { return 1 << s }

// ScalarKind represents the different kinds of scalar values.
type ScalarKind uint8

const (
	// Sint is a signed integer.
	Sint ScalarKind = iota
	// Uint is an unsigned integer.
	Uint
	// Float is a floating-point number.
	Float
	// Bool is a boolean.
	Bool
)

// String returns a string representation of the scalar kind.
func (k ScalarKind) String() string {
	switch k {
	case Sint:
		return "int"
	case Uint:
		return "uint"
	case Float:
		return "float"
	case Bool:
		return "bool"
	}
	return "unknown"
}

// VectorSize represents the number of components in a vector.
type VectorSize uint8

const (
	// Vec2 is a 2-component vector.
	Vec2 VectorSize = 2
	// Vec3 is a 3-component vector.
	Vec3 VectorSize = 3
	// Vec4 is a 4-component vector.
	Vec4 VectorSize = 4
)

// Type represents a type definition in the IR.
type Type struct {
	// Name is an optional debug/interface name (struct and subroutine types).
	Name string
	// Inner is the actual type information.
	Inner TypeInner
}

// TypeInner represents the different kinds of types.
type TypeInner interface {
	typeInner()
}

// ScalarType is a scalar value type.
// Width is in bytes: 4 for single precision, 8 for double precision.
type ScalarType struct {
	Kind  ScalarKind
	Width uint8
}

func (ScalarType) typeInner() {}

// VectorType is a vector of scalars.
type VectorType struct {
	Size   VectorSize
	Scalar ScalarType
}

func (VectorType) typeInner() {}

// MatrixType is a matrix of floating-point values, stored column-major.
type MatrixType struct {
	Columns VectorSize
	Rows    VectorSize
	Scalar  ScalarType
}

func (MatrixType) typeInner() {}

// ArrayType is a fixed-size or runtime-sized array.
// Length zero means the array is unsized (implicitly sized declarations and
// trailing buffer block members).
type ArrayType struct {
	Base   TypeHandle
	Length uint32
}

func (ArrayType) typeInner() {}

// StructType is a structure with named members.
type StructType struct {
	Members []StructMember
}

func (StructType) typeInner() {}

// StructMember is a member of a struct type.
type StructMember struct {
	Name string
	Type TypeHandle
	// RowMajor applies to matrix members inside interface blocks.
	RowMajor bool
}

// ImageDimension represents the dimensionality of an image or sampler.
type ImageDimension uint8

const (
	// Dim1D is a 1D image.
	Dim1D ImageDimension = iota
	// Dim2D is a 2D image.
	Dim2D
	// Dim3D is a 3D image.
	Dim3D
	// DimCube is a cube map.
	DimCube
	// DimBuffer is a buffer texture.
	DimBuffer
)

// SamplerType is a combined texture/sampler type.
type SamplerType struct {
	Dim     ImageDimension
	Arrayed bool
	Shadow  bool
	// Kind is the sampled result kind (Float, Sint, Uint).
	Kind ScalarKind
}

func (SamplerType) typeInner() {}

// ImageType is a storage image type.
type ImageType struct {
	Dim     ImageDimension
	Arrayed bool
	Kind    ScalarKind
}

func (ImageType) typeInner() {}

// AtomicCounterType is an atomic counter (always a 32-bit unsigned counter).
type AtomicCounterType struct{}

func (AtomicCounterType) typeInner() {}

// SubroutineType is a subroutine function signature type, identified by name.
// Subroutine uniforms are declared with this type; subroutine functions list
// the type names they are compatible with.
type SubroutineType struct {
	TypeName string
}

func (SubroutineType) typeInner() {}

// StorageMode classifies where a global variable lives.
type StorageMode uint8

const (
	// ModeInput is a stage input (vertex attribute or varying input).
	ModeInput StorageMode = iota
	// ModeOutput is a stage output (varying output or fragment color).
	ModeOutput
	// ModeUniform is a default-block or block uniform.
	ModeUniform
	// ModeBuffer is a shader storage buffer variable.
	ModeBuffer
	// ModeSystemValue is a built-in pipeline variable (gl_* names).
	ModeSystemValue
	// ModeGlobal is a plain module-scope global with no external linkage.
	ModeGlobal
)

// String returns the mode name used in diagnostics.
func (m StorageMode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	case ModeUniform:
		return "uniform"
	case ModeBuffer:
		return "buffer"
	case ModeSystemValue:
		return "system value"
	case ModeGlobal:
		return "global"
	}
	return "unknown"
}

// Interpolation specifies how a varying is interpolated.
type Interpolation uint8

const (
	// InterpSmooth is perspective-correct interpolation (the default).
	InterpSmooth Interpolation = iota
	// InterpFlat disables interpolation.
	InterpFlat
	// InterpNoPerspective is linear, screen-space interpolation.
	InterpNoPerspective
)

// String returns the interpolation name used in diagnostics.
func (i Interpolation) String() string {
	switch i {
	case InterpSmooth:
		return "smooth"
	case InterpFlat:
		return "flat"
	case InterpNoPerspective:
		return "noperspective"
	}
	return "unknown"
}

// ImageFormat is the declared format of a storage image.
type ImageFormat uint8

const (
	FormatNone ImageFormat = iota
	FormatRGBA32F
	FormatRGBA16F
	FormatR32F
	FormatRGBA8
	FormatRGBA32UI
	FormatR32UI
	FormatRGBA32I
	FormatR32I
)

// DepthLayout is a fragment depth redeclaration layout.
type DepthLayout uint8

const (
	DepthNone DepthLayout = iota
	DepthAny
	DepthGreater
	DepthLess
	DepthUnchanged
)

// String returns the layout spelling used in diagnostics.
func (d DepthLayout) String() string {
	switch d {
	case DepthAny:
		return "depth_any"
	case DepthGreater:
		return "depth_greater"
	case DepthLess:
		return "depth_less"
	case DepthUnchanged:
		return "depth_unchanged"
	}
	return "none"
}

// Declared records how a variable entered the unit.
type Declared uint8

const (
	// DeclaredNormally is an explicit declaration in the source.
	DeclaredNormally Declared = iota
	// DeclaredImplicitly is a declaration synthesized by the front end
	// (implicitly declared built-ins, legacy attributes).
	DeclaredImplicitly
	// DeclaredHidden is front-end internal state that must not appear in the
	// program resource list.
	DeclaredHidden
)

// Qualifiers carries the layout and interpolation qualifiers of a declaration.
type Qualifiers struct {
	// Location is the explicit location, valid when ExplicitLocation is set.
	Location         int32
	ExplicitLocation bool
	// Component is the explicit component within Location.
	Component         uint8
	ExplicitComponent bool
	// Binding is an explicit binding point (samplers, images, atomics).
	Binding         int32
	ExplicitBinding bool
	// Offset is an explicit atomic counter offset within its binding.
	Offset         int32
	ExplicitOffset bool
	// Index is the dual-source blending index of a fragment output.
	Index int32

	Invariant     bool
	Centroid      bool
	Sample        bool
	Patch         bool
	Interpolation Interpolation

	// Format is the declared format of a storage image.
	Format ImageFormat
	// ReadOnly and WriteOnly apply to images and buffer variables.
	ReadOnly  bool
	WriteOnly bool
	// Precise applies to tessellation-relevant outputs.
	Precise bool
	// DepthLayout is set on fragment depth redeclarations.
	DepthLayout DepthLayout
}

// ConstantValue is a compile-time constant initializer.
type ConstantValue interface {
	constantValue()
}

// ScalarValue is a scalar constant. Bits holds the raw value
// (sign-extended integers, IEEE-754 bit patterns for floats).
type ScalarValue struct {
	Kind ScalarKind
	Bits uint64
}

func (ScalarValue) constantValue() {}

// CompositeValue is a vector, matrix, array or struct constant.
type CompositeValue struct {
	Components []ConstantValue
}

func (CompositeValue) constantValue() {}

// ConstantsEqual reports whether two constant values are identical.
func ConstantsEqual(a, b ConstantValue) bool {
	switch av := a.(type) {
	case ScalarValue:
		bv, ok := b.(ScalarValue)
		return ok && av == bv
	case CompositeValue:
		bv, ok := b.(CompositeValue)
		if !ok || len(av.Components) != len(bv.Components) {
			return false
		}
		for i := range av.Components {
			if !ConstantsEqual(av.Components[i], bv.Components[i]) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	}
	return false
}

// Variable is a module-scope declaration.
type Variable struct {
	Name string
	Type TypeHandle
	Mode StorageMode
	Qual Qualifiers

	// Block is the owning interface block, valid when InBlock is set.
	// Block members appear both in the block's member list (for layout) and
	// as variables (for access tracking and resource listing).
	Block   BlockHandle
	InBlock bool

	// Init is the constant initializer, nil if none.
	Init ConstantValue
	// HasInit is set for any initializer, constant or not.
	HasInit bool

	// MaxArrayAccess is the highest statically-referenced array index,
	// or -1 if the variable is never indexed.
	MaxArrayAccess int32

	Declared Declared
	BuiltIn  bool
	ReadOnly bool

	// Unmatched marks an input/output not paired across a stage boundary.
	// Set during cross-validation, consumed by location assignment.
	Unmatched bool
	// AlwaysActive prevents elimination (transform feedback captures,
	// separable-program boundary interfaces).
	AlwaysActive bool
	// AssignedLocation is the linker-chosen location, -1 until assigned.
	AssignedLocation int32
}

// BlockMode distinguishes uniform blocks from shader storage blocks.
type BlockMode uint8

const (
	// BlockUniform is a uniform interface block.
	BlockUniform BlockMode = iota
	// BlockStorage is a shader storage (buffer) block.
	BlockStorage
)

// String returns the block-mode spelling used in diagnostics.
func (m BlockMode) String() string {
	if m == BlockStorage {
		return "buffer"
	}
	return "uniform"
}

// Packing is the declared memory layout of an interface block.
type Packing uint8

const (
	// PackShared is the implementation-defined shared layout (the default).
	PackShared Packing = iota
	// PackStd140 is the std140 layout.
	PackStd140
	// PackStd430 is the std430 layout (storage blocks only).
	PackStd430
	// PackPacked is the packed layout.
	PackPacked
)

// String returns the packing spelling used in diagnostics.
func (p Packing) String() string {
	switch p {
	case PackStd140:
		return "std140"
	case PackStd430:
		return "std430"
	case PackPacked:
		return "packed"
	}
	return "shared"
}

// BlockMember is one member of an interface block, in declaration order.
type BlockMember struct {
	Name     string
	Type     TypeHandle
	RowMajor bool
	// Offset is the explicit byte offset, -1 if none.
	Offset int32
}

// InterfaceBlock is a named uniform or storage block.
type InterfaceBlock struct {
	// Name is the block name, the identity used for merging across units
	// and stages.
	Name string
	// InstanceName is the optional instance name; empty means members enter
	// the global namespace.
	InstanceName string
	// ArraySize is non-zero when the block is declared as an array of
	// instances.
	ArraySize uint32
	Mode      BlockMode
	Packing   Packing
	RowMajor  bool
	// Binding is the explicit binding point, valid when ExplicitBinding.
	Binding         int32
	ExplicitBinding bool
	Members         []BlockMember
}

// Key returns the identity under which the block merges: blocks with the same
// key must have matching definitions, blocks with different keys are distinct.
func (b *InterfaceBlock) Key() string {
	if b.ArraySize != 0 {
		return fmt.Sprintf("%s[%d]", b.Name, b.ArraySize)
	}
	return b.Name
}

// FunctionParam is a function parameter.
type FunctionParam struct {
	Name string
	Type TypeHandle
	// Out marks inout/out parameters.
	Out bool
}

// Function is a function definition or prototype.
type Function struct {
	Name   string
	Params []FunctionParam
	// Result is the return type; nil for void.
	Result *TypeHandle
	// Defined is set when a body is present; prototypes only declare.
	Defined bool
	BuiltIn bool
	// IsSubroutine marks a subroutine implementation function.
	IsSubroutine bool
	// SubroutineTypes lists the subroutine type names this function is
	// compatible with.
	SubroutineTypes []string
	// SubroutineIndex is the explicit subroutine index, -1 if none.
	SubroutineIndex int32
	Body            Block
}

// SignatureKey returns a key identifying the function's signature for
// redefinition checks. Overloads with different parameter types coexist.
func (f *Function) SignatureKey(src TypeSource) string {
	key := f.Name + "("
	for i, p := range f.Params {
		if i > 0 {
			key += ","
		}
		key += FormatType(src, p.Type)
	}
	return key + ")"
}

// PrimitiveKind is an input or output primitive layout.
type PrimitiveKind uint8

const (
	PrimUnknown PrimitiveKind = iota
	PrimPoints
	PrimLines
	PrimLinesAdjacency
	PrimTriangles
	PrimTrianglesAdjacency
	PrimLineStrip
	PrimTriangleStrip
	PrimQuads
	PrimIsolines
)

// String returns the primitive spelling used in diagnostics.
func (p PrimitiveKind) String() string {
	switch p {
	case PrimPoints:
		return "points"
	case PrimLines:
		return "lines"
	case PrimLinesAdjacency:
		return "lines_adjacency"
	case PrimTriangles:
		return "triangles"
	case PrimTrianglesAdjacency:
		return "triangles_adjacency"
	case PrimLineStrip:
		return "line_strip"
	case PrimTriangleStrip:
		return "triangle_strip"
	case PrimQuads:
		return "quads"
	case PrimIsolines:
		return "isolines"
	}
	return "unknown"
}

// VerticesPerPrimitive returns the number of vertices a geometry shader
// receives per input primitive, or 0 if the kind is not a geometry input.
func VerticesPerPrimitive(p PrimitiveKind) uint32 {
	switch p {
	case PrimPoints:
		return 1
	case PrimLines:
		return 2
	case PrimLinesAdjacency:
		return 4
	case PrimTriangles:
		return 3
	case PrimTrianglesAdjacency:
		return 6
	}
	return 0
}

// TessSpacing is the tessellation partitioning mode.
type TessSpacing uint8

const (
	SpacingUnknown TessSpacing = iota
	SpacingEqual
	SpacingFractionalEven
	SpacingFractionalOdd
)

// Winding is the tessellation output winding order.
type Winding uint8

const (
	WindingUnknown Winding = iota
	WindingCCW
	WindingCW
)

// MaxFeedbackBuffers is the size of the per-buffer stride table. Device
// limits must not exceed it.
const MaxFeedbackBuffers = 4

// StageLayout carries stage-wide layout declarations. Zero values mean
// "not declared in this unit"; merging combines them across units.
type StageLayout struct {
	// VerticesOut is the tess-control output patch size (0 = undeclared).
	VerticesOut int32

	// Tessellation evaluation declarations.
	TessPrimitive PrimitiveKind
	TessSpacing   TessSpacing
	TessOrder     Winding
	TessPointMode bool

	// Geometry declarations.
	GeomInput  PrimitiveKind
	GeomOutput PrimitiveKind
	// GeomMaxVertices is 0 when undeclared.
	GeomMaxVertices int32
	// GeomInvocations is 0 when undeclared; the linked default is 1.
	GeomInvocations int32

	// LocalSize is the compute work-group size; all zero means undeclared.
	LocalSize [3]uint32

	// XfbStride holds declared transform feedback buffer strides in bytes,
	// 0 = undeclared for that buffer.
	XfbStride [MaxFeedbackBuffers]uint32

	// Fragment declarations.
	EarlyFragmentTests bool
	OriginUpperLeft    bool
	PixelCenterInteger bool
}

// TranslationUnit is one compiled shader object: the read-only input to
// linking. All handle references resolve within the unit's own arenas.
type TranslationUnit struct {
	// Name identifies the unit in diagnostics.
	Name    string
	Stage   ShaderStage
	Version uint32
	ES      bool

	Types     []Type
	Variables []Variable
	Blocks    []InterfaceBlock
	Functions []Function

	Layout StageLayout

	// GlobalCode is top-level non-declaration code (global initializer
	// assignments), executed before main in unit order.
	GlobalCode Block
}

// TypeAt returns the type for a handle, implementing TypeSource.
func (u *TranslationUnit) TypeAt(h TypeHandle) (Type, bool) {
	if int(h) >= len(u.Types) {
		return Type{}, false
	}
	return u.Types[h], true
}

// AddType appends a type and returns its handle. Convenience for building
// units in tests and front ends; no deduplication is performed.
func (u *TranslationUnit) AddType(t Type) TypeHandle {
	u.Types = append(u.Types, t)
	return TypeHandle(len(u.Types) - 1)
}

// AddVariable appends a variable and returns its handle.
func (u *TranslationUnit) AddVariable(v Variable) VariableHandle {
	u.Variables = append(u.Variables, v)
	return VariableHandle(len(u.Variables) - 1)
}

// AddFunction appends a function and returns its handle.
func (u *TranslationUnit) AddFunction(f Function) FunctionHandle {
	u.Functions = append(u.Functions, f)
	return FunctionHandle(len(u.Functions) - 1)
}

// AddBlock appends an interface block and returns its handle.
func (u *TranslationUnit) AddBlock(b InterfaceBlock) BlockHandle {
	u.Blocks = append(u.Blocks, b)
	return BlockHandle(len(u.Blocks) - 1)
}

// FindFunction returns the first function with the given name.
func (u *TranslationUnit) FindFunction(name string) (FunctionHandle, bool) {
	for i := range u.Functions {
		if u.Functions[i].Name == name {
			return FunctionHandle(i), true
		}
	}
	return 0, false
}

// SymbolKind distinguishes entries in a linked stage's symbol table.
type SymbolKind uint8

const (
	// SymbolVariable references the Variables arena.
	SymbolVariable SymbolKind = iota
	// SymbolFunction references the Functions arena.
	SymbolFunction
	// SymbolBlock references the Blocks arena.
	SymbolBlock
)

// SymbolRef is a symbol table entry: the kind selects the arena the index
// points into.
type SymbolRef struct {
	Kind  SymbolKind
	Index uint32
}

// LinkedStage is the merged result of combining all translation units of one
// stage. It owns its arenas; nothing references unit storage.
type LinkedStage struct {
	Stage   ShaderStage
	Version uint32
	ES      bool

	Types     *TypeRegistry
	Variables []Variable
	Blocks    []InterfaceBlock
	Functions []Function

	// Symbols maps names to arena entries. Block instance names map to the
	// block; block members without an instance name map to their variable.
	Symbols map[string]SymbolRef

	Layout StageLayout

	// Main is the entry function, set by combining.
	Main FunctionHandle

	// ClipDistanceSize and CullDistanceSize are the active sizes of the
	// clip/cull distance arrays, filled by interface analysis.
	ClipDistanceSize uint32
	CullDistanceSize uint32
}

// NewLinkedStage returns an empty linked stage for the given pipeline stage.
func NewLinkedStage(stage ShaderStage) *LinkedStage {
	return &LinkedStage{
		Stage:   stage,
		Types:   NewTypeRegistry(),
		Symbols: make(map[string]SymbolRef),
	}
}

// TypeAt returns the type for a handle, implementing TypeSource.
func (s *LinkedStage) TypeAt(h TypeHandle) (Type, bool) {
	return s.Types.Lookup(h)
}

// AddVariable appends a variable and records it in the symbol table.
func (s *LinkedStage) AddVariable(v Variable) VariableHandle {
	s.Variables = append(s.Variables, v)
	h := VariableHandle(len(s.Variables) - 1)
	s.Symbols[v.Name] = SymbolRef{Kind: SymbolVariable, Index: uint32(h)}
	return h
}

// AddFunction appends a function and records it in the symbol table.
func (s *LinkedStage) AddFunction(f Function) FunctionHandle {
	s.Functions = append(s.Functions, f)
	h := FunctionHandle(len(s.Functions) - 1)
	s.Symbols[f.Name] = SymbolRef{Kind: SymbolFunction, Index: uint32(h)}
	return h
}

// AddBlock appends an interface block. Blocks are not named symbols unless
// they carry an instance name.
func (s *LinkedStage) AddBlock(b InterfaceBlock) BlockHandle {
	s.Blocks = append(s.Blocks, b)
	h := BlockHandle(len(s.Blocks) - 1)
	if b.InstanceName != "" {
		s.Symbols[b.InstanceName] = SymbolRef{Kind: SymbolBlock, Index: uint32(h)}
	}
	return h
}

// Variable returns the named variable, if declared.
func (s *LinkedStage) Variable(name string) (VariableHandle, *Variable, bool) {
	ref, ok := s.Symbols[name]
	if !ok || ref.Kind != SymbolVariable {
		return 0, nil, false
	}
	return VariableHandle(ref.Index), &s.Variables[ref.Index], true
}

// Function returns the named function, if present.
func (s *LinkedStage) Function(name string) (FunctionHandle, *Function, bool) {
	ref, ok := s.Symbols[name]
	if !ok || ref.Kind != SymbolFunction {
		return 0, nil, false
	}
	return FunctionHandle(ref.Index), &s.Functions[ref.Index], true
}
