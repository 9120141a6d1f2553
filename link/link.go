// Package link implements program linking over translation-unit IR: units
// are combined per stage, stage interfaces are cross-validated, interface
// blocks are merged program-wide, locations are assigned and the program
// resource list is built.
package link

import (
	"github.com/sirupsen/logrus"

	"github.com/gogpu/shaderlink/ir"
	"github.com/gogpu/shaderlink/limits"
)

// Profile selects the API dialect the program is linked for. The dialect
// decides aliasing rules and which legacy checks apply; forcing one fails
// the link when the shaders were compiled for the other.
type Profile uint8

const (
	// ProfileAuto infers the dialect from the shaders' declared versions.
	ProfileAuto Profile = iota
	// ProfileDesktop is desktop OpenGL.
	ProfileDesktop
	// ProfileES is OpenGL ES.
	ProfileES
)

// BufferMode selects how transform feedback varyings map to buffers.
type BufferMode uint8

const (
	// InterleavedAttribs captures all varyings into buffer 0.
	InterleavedAttribs BufferMode = iota
	// SeparateAttribs captures each varying into its own buffer.
	SeparateAttribs
)

// Options configures a link operation.
type Options struct {
	Profile Profile
	// Separable marks the program for separate-pipeline use: boundary
	// interfaces without a cross-stage partner stay active.
	Separable bool

	// FeedbackVaryings names the outputs to capture, in capture order.
	// Array elements may be selected with a "name[index]" spelling.
	FeedbackVaryings []string
	FeedbackMode     BufferMode

	// AttributeBindings are API-assigned vertex attribute locations,
	// applied to attributes without an explicit location qualifier.
	AttributeBindings map[string]uint32
	// FragDataBindings are API-assigned fragment output locations.
	FragDataBindings map[string]uint32
	// FragDataIndexBindings are API-assigned dual-source blend indices.
	FragDataIndexBindings map[string]uint32

	// Logger receives per-phase debug output. Nil disables logging.
	Logger logrus.FieldLogger
}

// Result is the outcome of a link operation. When Status is false the
// partial results are unspecified; only the Log is meaningful.
type Result struct {
	// Status is true when the program linked successfully.
	Status  bool
	Version uint32
	ES      bool

	// Log holds every diagnostic the link produced.
	Log *Log

	// Stages holds the linked per-stage results, indexed by ir.ShaderStage;
	// absent stages are nil.
	Stages [ir.StageCount]*ir.LinkedStage

	// UniformBlocks and StorageBlocks are the program-wide canonical block
	// lists, ordered by block key.
	UniformBlocks []*CanonicalBlock
	StorageBlocks []*CanonicalBlock

	// Uniforms is the flattened active uniform list.
	Uniforms []*UniformStorage
	// UniformRemap maps uniform locations to indices into Uniforms;
	// -1 marks an unused location.
	UniformRemap []int32

	// Resources is the program resource list, in registry order.
	Resources []*Resource

	// LastClipDistanceSize and LastCullDistanceSize come from the last
	// stage before rasterization.
	LastClipDistanceSize uint32
	LastCullDistanceSize uint32

	// FragDepthLayout is the conservative-depth layout declared by the
	// fragment stage, DepthNone if absent.
	FragDepthLayout ir.DepthLayout

	// GeomUsesStreams and GeomUsesEndPrimitive summarize geometry output
	// behavior for the draw-time validation the runtime performs.
	GeomUsesStreams      bool
	GeomUsesEndPrimitive bool

	// Feedback describes the transform feedback captures, nil when none
	// were requested.
	Feedback *FeedbackInfo
}

// InfoLog renders the accumulated diagnostics.
func (r *Result) InfoLog() string {
	return r.Log.String()
}

// context carries the state of one link operation. Nothing is shared
// between link calls, so concurrent links of different programs are safe.
type context struct {
	opts Options
	lim  *limits.Limits
	log  *Log
	lg   logrus.FieldLogger
	res  *Result

	// pipeline is the present non-compute stages in pipeline order.
	pipeline []*ir.LinkedStage
	// atomicBuffers is filled by atomic counter processing, sorted by
	// binding.
	atomicBuffers []AtomicBuffer
	// subroutines holds the per-stage subroutine function tables.
	subroutines [ir.StageCount][]*SubroutineFunction
}

func (c *context) debugf(format string, args ...any) {
	if c.lg != nil {
		c.lg.Debugf(format, args...)
	}
}

// Link links translation units into a program against a device limit table.
// Units are read-only; all results live in the returned Result.
func Link(units []*ir.TranslationUnit, lim *limits.Limits, opts Options) *Result {
	c := &context{
		opts: opts,
		lim:  lim,
		log:  &Log{},
		lg:   opts.Logger,
		res:  &Result{},
	}
	c.res.Log = c.log

	c.run(units)

	c.res.Status = !c.log.Failed()
	return c.res
}

func (c *context) run(units []*ir.TranslationUnit) {
	if len(units) == 0 && !c.opts.Separable {
		c.log.Errorf("no shaders attached to the program")
		return
	}

	if !c.validateVersions(units) {
		return
	}

	perStage := [ir.StageCount][]*ir.TranslationUnit{}
	for _, u := range units {
		perStage[u.Stage] = append(perStage[u.Stage], u)
	}
	if !c.validatePipeline(&perStage) {
		return
	}

	for stage := ir.ShaderStage(0); stage < ir.StageCount; stage++ {
		if len(perStage[stage]) == 0 {
			continue
		}
		c.debugf("combining %d %s unit(s)", len(perStage[stage]), stage)
		linked := c.combineStage(stage, perStage[stage])
		if linked == nil {
			return
		}
		linked.Version = c.res.Version
		linked.ES = c.res.ES
		c.res.Stages[stage] = linked
	}
	if c.log.Failed() {
		return
	}

	for stage := ir.StageVertex; stage <= ir.StageFragment; stage++ {
		if s := c.res.Stages[stage]; s != nil {
			c.pipeline = append(c.pipeline, s)
		}
	}

	c.sizeStageInterfaceArrays()

	// Per-stage executable validation.
	if !c.validateStageExecutables() {
		return
	}

	// Cross-stage interface validation between consecutive stages.
	for i := 0; i+1 < len(c.pipeline); i++ {
		c.crossValidateOutputsToInputs(c.pipeline[i], c.pipeline[i+1])
	}
	if c.log.Failed() {
		return
	}

	c.crossValidateUniforms()
	if c.log.Failed() {
		return
	}

	c.res.UniformBlocks = c.mergeInterstageBlocks(ir.BlockUniform)
	c.res.StorageBlocks = c.mergeInterstageBlocks(ir.BlockStorage)
	if c.log.Failed() {
		return
	}

	c.compactUniformArrays()

	if !c.processTransformFeedback() {
		return
	}

	if vs := c.res.Stages[ir.StageVertex]; vs != nil {
		if !c.assignAttributeLocations(vs) {
			return
		}
	}
	if fs := c.res.Stages[ir.StageFragment]; fs != nil {
		if !c.assignFragmentOutputLocations(fs) {
			return
		}
	}
	for i := 0; i+1 < len(c.pipeline); i++ {
		if !c.assignVaryingLocations(c.pipeline[i], c.pipeline[i+1]) {
			return
		}
	}
	if n := len(c.pipeline); n > 0 && c.pipeline[n-1].Stage != ir.StageFragment {
		if !c.assignTerminalOutputLocations(c.pipeline[n-1]) {
			return
		}
	}
	c.markBoundaryInterfaces()

	c.buildUniformList()
	c.processAtomicCounters()
	if c.log.Failed() {
		return
	}
	if !c.assignUniformLocations() {
		return
	}
	c.processSubroutines()
	if c.log.Failed() {
		return
	}

	c.checkResourceLimits()
	if c.log.Failed() {
		return
	}

	c.buildResourceList()

	// Structural self-check: a failure here is a linker bug surfaced as an
	// internal error rather than a panic.
	for _, s := range c.res.Stages {
		if s == nil {
			continue
		}
		for _, err := range ir.ValidateStage(s) {
			c.log.Errorf("internal error: %s stage: %s", s.Stage, err.Error())
		}
	}
}

// validateVersions checks ES agreement and records the program version.
func (c *context) validateVersions(units []*ir.TranslationUnit) bool {
	var version uint32
	es := false
	for i, u := range units {
		if i == 0 {
			es = u.ES
		} else if u.ES != es {
			c.log.Errorf("all shaders must use same shading language version")
			return false
		}
		if u.ES && version != 0 && u.Version != version {
			c.log.Errorf("all shaders must use same shading language version")
			return false
		}
		if u.Version > version {
			version = u.Version
		}
	}
	switch c.opts.Profile {
	case ProfileDesktop:
		if es {
			c.log.Errorf("shaders were compiled for OpenGL ES but the program is linked for desktop OpenGL")
			return false
		}
	case ProfileES:
		if len(units) > 0 && !es {
			c.log.Errorf("shaders were compiled for desktop OpenGL but the program is linked for OpenGL ES")
			return false
		}
		es = true
	}
	c.res.Version = version
	c.res.ES = es
	return true
}

// validatePipeline enforces stage-combination rules.
func (c *context) validatePipeline(perStage *[ir.StageCount][]*ir.TranslationUnit) bool {
	hasCompute := len(perStage[ir.StageCompute]) > 0
	hasOther := false
	for stage := ir.StageVertex; stage <= ir.StageFragment; stage++ {
		if len(perStage[stage]) > 0 {
			hasOther = true
		}
	}
	if hasCompute && hasOther {
		c.log.Errorf("Compute shaders may not be linked with any other type of shader in the same program")
		return false
	}
	if c.opts.Separable {
		return true
	}

	hasVertex := len(perStage[ir.StageVertex]) > 0
	if len(perStage[ir.StageGeometry]) > 0 && !hasVertex {
		c.log.Errorf("Geometry shader must be linked with vertex shader")
		return false
	}
	if (len(perStage[ir.StageTessControl]) > 0 || len(perStage[ir.StageTessEval]) > 0) && !hasVertex {
		c.log.Errorf("Tessellation shaders must be linked with vertex shader")
		return false
	}
	if len(perStage[ir.StageTessControl]) > 0 && len(perStage[ir.StageTessEval]) == 0 {
		c.log.Errorf("Tessellation control shader must be linked with tessellation evaluation shader")
		return false
	}
	if c.res.ES && len(perStage[ir.StageTessEval]) > 0 && len(perStage[ir.StageTessControl]) == 0 {
		c.log.Errorf("Tessellation evaluation shader must be linked with tessellation control shader")
		return false
	}
	return true
}

// validateStageExecutables runs the per-stage semantic checks that need the
// combined stage: entry-point obligations, emission rules and clip/cull use.
func (c *context) validateStageExecutables() bool {
	for _, s := range c.pipeline {
		switch s.Stage {
		case ir.StageVertex, ir.StageTessEval:
			c.validatePositionWrite(s)
			clip, cull := c.analyzeClipCullUsage(s)
			c.res.LastClipDistanceSize = clip
			c.res.LastCullDistanceSize = cull
		case ir.StageGeometry:
			c.validatePositionWrite(s)
			c.validateGeometryEmissions(s)
			clip, cull := c.analyzeClipCullUsage(s)
			c.res.LastClipDistanceSize = clip
			c.res.LastCullDistanceSize = cull
		case ir.StageFragment:
			c.validateFragmentExecutable(s)
		}
	}
	return !c.log.Failed()
}
