// Package limits defines the device limit table the linker validates
// programs against. Defaults follow the minimums of desktop GL 4.5; real
// device tables can be loaded from TOML.
package limits

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/shaderlink/ir"
)

// StageLimits holds the per-stage resource limits.
type StageLimits struct {
	MaxUniformComponents    uint32 `toml:"max_uniform_components"`
	MaxTextureImageUnits    uint32 `toml:"max_texture_image_units"`
	MaxUniformBlocks        uint32 `toml:"max_uniform_blocks"`
	MaxShaderStorageBlocks  uint32 `toml:"max_shader_storage_blocks"`
	MaxImageUniforms        uint32 `toml:"max_image_uniforms"`
	MaxAtomicCounters       uint32 `toml:"max_atomic_counters"`
	MaxAtomicCounterBuffers uint32 `toml:"max_atomic_counter_buffers"`
}

// Limits is the full device limit table.
type Limits struct {
	MaxVertexAttribs         uint32 `toml:"max_vertex_attribs"`
	MaxDrawBuffers           uint32 `toml:"max_draw_buffers"`
	MaxDualSourceDrawBuffers uint32 `toml:"max_dual_source_draw_buffers"`
	MaxVaryingSlots          uint32 `toml:"max_varying_slots"`
	MaxVertexStreams         uint32 `toml:"max_vertex_streams"`
	MaxClipPlanes            uint32 `toml:"max_clip_planes"`

	MaxUniformLocations       uint32 `toml:"max_uniform_locations"`
	MaxUniformBlockSize       uint32 `toml:"max_uniform_block_size"`
	MaxShaderStorageBlockSize uint32 `toml:"max_shader_storage_block_size"`

	MaxCombinedUniformBlocks       uint32 `toml:"max_combined_uniform_blocks"`
	MaxCombinedShaderStorageBlocks uint32 `toml:"max_combined_shader_storage_blocks"`
	MaxCombinedTextureImageUnits   uint32 `toml:"max_combined_texture_image_units"`
	MaxCombinedImageUniforms       uint32 `toml:"max_combined_image_uniforms"`
	MaxCombinedOutputResources     uint32 `toml:"max_combined_output_resources"`
	MaxCombinedAtomicCounters      uint32 `toml:"max_combined_atomic_counters"`

	MaxTransformFeedbackBuffers               uint32 `toml:"max_transform_feedback_buffers"`
	MaxTransformFeedbackInterleavedComponents uint32 `toml:"max_transform_feedback_interleaved_components"`
	MaxTransformFeedbackSeparateComponents    uint32 `toml:"max_transform_feedback_separate_components"`

	MaxSubroutines                uint32 `toml:"max_subroutines"`
	MaxSubroutineUniformLocations uint32 `toml:"max_subroutine_uniform_locations"`

	MaxGeometryOutputVertices   uint32 `toml:"max_geometry_output_vertices"`
	MaxGeometryShaderInvocations uint32 `toml:"max_geometry_shader_invocations"`
	MaxPatchVertices            uint32 `toml:"max_patch_vertices"`

	MaxComputeWorkGroupSize [3]uint32 `toml:"max_compute_work_group_size"`

	Vertex      StageLimits `toml:"vertex"`
	TessControl StageLimits `toml:"tess_control"`
	TessEval    StageLimits `toml:"tess_eval"`
	Geometry    StageLimits `toml:"geometry"`
	Fragment    StageLimits `toml:"fragment"`
	Compute     StageLimits `toml:"compute"`
}

// Stage returns the limit block for a pipeline stage.
func (l *Limits) Stage(s ir.ShaderStage) *StageLimits {
	switch s {
	case ir.StageVertex:
		return &l.Vertex
	case ir.StageTessControl:
		return &l.TessControl
	case ir.StageTessEval:
		return &l.TessEval
	case ir.StageGeometry:
		return &l.Geometry
	case ir.StageFragment:
		return &l.Fragment
	}
	return &l.Compute
}

// Default returns the GL 4.5 minimum limit table.
func Default() *Limits {
	stage := StageLimits{
		MaxUniformComponents:    1024,
		MaxTextureImageUnits:    16,
		MaxUniformBlocks:        14,
		MaxShaderStorageBlocks:  8,
		MaxImageUniforms:        8,
		MaxAtomicCounters:       8,
		MaxAtomicCounterBuffers: 1,
	}
	return &Limits{
		MaxVertexAttribs:         16,
		MaxDrawBuffers:           8,
		MaxDualSourceDrawBuffers: 1,
		MaxVaryingSlots:          32,
		MaxVertexStreams:         4,
		MaxClipPlanes:            8,

		MaxUniformLocations:       1024,
		MaxUniformBlockSize:       16384,
		MaxShaderStorageBlockSize: 1 << 27,

		MaxCombinedUniformBlocks:       84,
		MaxCombinedShaderStorageBlocks: 8,
		MaxCombinedTextureImageUnits:   96,
		MaxCombinedImageUniforms:       48,
		MaxCombinedOutputResources:     16,
		MaxCombinedAtomicCounters:      8,

		MaxTransformFeedbackBuffers:               4,
		MaxTransformFeedbackInterleavedComponents: 64,
		MaxTransformFeedbackSeparateComponents:    4,

		MaxSubroutines:                256,
		MaxSubroutineUniformLocations: 1024,

		MaxGeometryOutputVertices:    256,
		MaxGeometryShaderInvocations: 32,
		MaxPatchVertices:             32,

		MaxComputeWorkGroupSize: [3]uint32{1024, 1024, 64},

		Vertex:      stage,
		TessControl: stage,
		TessEval:    stage,
		Geometry:    stage,
		Fragment:    stage,
		Compute:     stage,
	}
}

// Load reads a TOML limits file over the defaults: keys absent from the file
// keep their default values.
func Load(path string) (*Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading limits file: %w", err)
	}
	l := Default()
	if err := toml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("parsing limits file: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks the table for values the linker cannot work with.
// Location spaces are tracked in 64-bit occupancy masks, so slot-counted
// limits above 64 are rejected.
func (l *Limits) Validate() error {
	for _, c := range []struct {
		name  string
		value uint32
	}{
		{"max_vertex_attribs", l.MaxVertexAttribs},
		{"max_draw_buffers", l.MaxDrawBuffers},
		{"max_varying_slots", l.MaxVaryingSlots},
	} {
		if c.value == 0 {
			return fmt.Errorf("%s must be non-zero", c.name)
		}
		if c.value > 64 {
			return fmt.Errorf("%s is %d, larger than the supported maximum of 64", c.name, c.value)
		}
	}
	if l.MaxTransformFeedbackBuffers > ir.MaxFeedbackBuffers {
		return fmt.Errorf("max_transform_feedback_buffers is %d, larger than the supported maximum of %d",
			l.MaxTransformFeedbackBuffers, ir.MaxFeedbackBuffers)
	}
	if l.MaxUniformLocations == 0 {
		return fmt.Errorf("max_uniform_locations must be non-zero")
	}
	return nil
}
