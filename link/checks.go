package link

import "github.com/gogpu/shaderlink/ir"

// stageWrites reports whether any function in the stage assigns to the
// named variable. Symbol-table presence is not enough: the declaration may
// survive while every write was removed, so the bodies are scanned.
func stageWrites(s *ir.LinkedStage, name string) bool {
	h, _, ok := s.Variable(name)
	if !ok {
		return false
	}
	for fi := range s.Functions {
		if ir.WritesVariable(s.Functions[fi].Body, h) {
			return true
		}
	}
	return false
}

// validatePositionWrite enforces the gl_Position write requirement of older
// language versions: an error below desktop GLSL 1.40, a warning below
// ES 300, nothing on newer versions.
func (c *context) validatePositionWrite(s *ir.LinkedStage) {
	if s.Stage != ir.StageVertex {
		return
	}
	if stageWrites(s, "gl_Position") {
		return
	}
	if !c.res.ES && c.res.Version < 140 {
		c.log.Errorf("vertex shader does not write to `gl_Position'")
	} else if c.res.ES && c.res.Version < 300 {
		c.log.Warningf("vertex shader does not write to `gl_Position'")
	}
}

// validateFragmentExecutable checks fragment output conventions and records
// the conservative-depth layout.
func (c *context) validateFragmentExecutable(fs *ir.LinkedStage) {
	if stageWrites(fs, "gl_FragColor") && stageWrites(fs, "gl_FragData") {
		c.log.Errorf("fragment shader writes to both `gl_FragColor' and `gl_FragData'")
		return
	}
	if _, v, ok := fs.Variable("gl_FragDepth"); ok {
		c.res.FragDepthLayout = v.Qual.DepthLayout
	}
}

// validateGeometryEmissions checks stream usage against the output layout
// and the device stream count.
func (c *context) validateGeometryEmissions(gs *ir.LinkedStage) {
	info := ir.EmissionInfo{MaxStream: -1}
	for fi := range gs.Functions {
		fn := ir.ScanEmissions(gs.Functions[fi].Body)
		if fn.MaxStream > info.MaxStream {
			info.MaxStream = fn.MaxStream
		}
		info.UsesNonZeroStream = info.UsesNonZeroStream || fn.UsesNonZeroStream
		info.UsesEndPrimitive = info.UsesEndPrimitive || fn.UsesEndPrimitive
	}

	if info.MaxStream >= int32(c.lim.MaxVertexStreams) {
		c.log.Errorf("geometry shader emits to stream %d but the device supports only %d vertex streams",
			info.MaxStream, c.lim.MaxVertexStreams)
		return
	}
	if info.UsesNonZeroStream && gs.Layout.GeomOutput != ir.PrimPoints {
		c.log.Errorf("geometry shader emits to nonzero streams but the output type is not points")
		return
	}
	c.res.GeomUsesStreams = info.UsesNonZeroStream
	c.res.GeomUsesEndPrimitive = info.UsesEndPrimitive
}

// analyzeClipCullUsage validates the clip/cull distance declarations of a
// vertex-pipeline stage and returns the active array sizes.
func (c *context) analyzeClipCullUsage(s *ir.LinkedStage) (uint32, uint32) {
	arraySize := func(name string) uint32 {
		_, v, ok := s.Variable(name)
		if !ok || !stageWrites(s, name) {
			return 0
		}
		if _, length, isArr := ir.ArrayInfo(s, v.Type); isArr {
			if length != 0 {
				return length
			}
			if v.MaxArrayAccess >= 0 {
				return uint32(v.MaxArrayAccess + 1)
			}
		}
		return 0
	}

	clip := arraySize("gl_ClipDistance")
	cull := arraySize("gl_CullDistance")

	if !c.res.ES && stageWrites(s, "gl_ClipVertex") {
		if clip > 0 {
			c.log.Errorf("%s shader writes to both `gl_ClipVertex' and `gl_ClipDistance'", s.Stage)
			return 0, 0
		}
		if cull > 0 {
			c.log.Errorf("%s shader writes to both `gl_ClipVertex' and `gl_CullDistance'", s.Stage)
			return 0, 0
		}
	}
	if clip+cull > c.lim.MaxClipPlanes {
		c.log.Errorf("%s shader: combined size of `gl_ClipDistance' and `gl_CullDistance' is too large (%d > %d)",
			s.Stage, clip+cull, c.lim.MaxClipPlanes)
		return 0, 0
	}

	s.ClipDistanceSize = clip
	s.CullDistanceSize = cull
	return clip, cull
}

// checkResourceLimits validates the linked program against the per-stage
// and combined device limits.
func (c *context) checkResourceLimits() {
	counts := func(st ir.ShaderStage) (samplers, images, counters, components uint32, counterBindings map[int32]bool) {
		counterBindings = map[int32]bool{}
		for _, u := range c.res.Uniforms {
			if u.StageRefs&st.Bit() == 0 {
				continue
			}
			n := max32(u.ArrayLength, 1)
			switch {
			case u.IsSampler():
				samplers += n
			case u.IsImage():
				images += n
			case u.IsAtomicCounter():
				counters += n
				counterBindings[u.AtomicBinding] = true
			}
			if u.BlockIndex < 0 && !u.Hidden && !u.IsAtomicCounter() && !u.IsSubroutineUniform() {
				components += ir.ComponentCount(u.Src, u.Type)
			}
		}
		return
	}
	blockCount := func(list []*CanonicalBlock, st ir.ShaderStage) uint32 {
		var n uint32
		for _, b := range list {
			if b.StageRefs&st.Bit() != 0 {
				n += max32(b.ArraySize, 1)
			}
		}
		return n
	}

	var totalSamplers, totalImages, totalCounters uint32
	for st := ir.ShaderStage(0); st < ir.StageCount; st++ {
		s := c.res.Stages[st]
		if s == nil {
			continue
		}
		sl := c.lim.Stage(st)
		samplers, images, counters, components, bindings := counts(st)
		totalSamplers += samplers
		totalImages += images
		totalCounters += counters

		if samplers > sl.MaxTextureImageUnits {
			c.log.Errorf("too many %s shader texture samplers (%d > %d)", st, samplers, sl.MaxTextureImageUnits)
		}
		if images > sl.MaxImageUniforms {
			c.log.Errorf("too many %s shader image uniforms (%d > %d)", st, images, sl.MaxImageUniforms)
		}
		if counters > sl.MaxAtomicCounters {
			c.log.Errorf("too many %s shader atomic counters (%d > %d)", st, counters, sl.MaxAtomicCounters)
		}
		if uint32(len(bindings)) > sl.MaxAtomicCounterBuffers {
			c.log.Errorf("too many %s shader atomic counter buffers (%d > %d)",
				st, len(bindings), sl.MaxAtomicCounterBuffers)
		}
		if components > sl.MaxUniformComponents {
			c.log.Errorf("too many %s shader default uniform block components (%d > %d)",
				st, components, sl.MaxUniformComponents)
		}
		if n := blockCount(c.res.UniformBlocks, st); n > sl.MaxUniformBlocks {
			c.log.Errorf("too many %s shader uniform blocks (%d > %d)", st, n, sl.MaxUniformBlocks)
		}
		if n := blockCount(c.res.StorageBlocks, st); n > sl.MaxShaderStorageBlocks {
			c.log.Errorf("too many %s shader storage blocks (%d > %d)", st, n, sl.MaxShaderStorageBlocks)
		}
	}

	if totalSamplers > c.lim.MaxCombinedTextureImageUnits {
		c.log.Errorf("too many combined texture samplers (%d > %d)", totalSamplers, c.lim.MaxCombinedTextureImageUnits)
	}
	if totalImages > c.lim.MaxCombinedImageUniforms {
		c.log.Errorf("too many combined image uniforms (%d > %d)", totalImages, c.lim.MaxCombinedImageUniforms)
	}
	if totalCounters > c.lim.MaxCombinedAtomicCounters {
		c.log.Errorf("too many combined atomic counters (%d > %d)", totalCounters, c.lim.MaxCombinedAtomicCounters)
	}

	var totalUniformBlocks, totalStorageBlocks uint32
	for _, b := range c.res.UniformBlocks {
		totalUniformBlocks += max32(b.ArraySize, 1)
		if b.ByteSize > c.lim.MaxUniformBlockSize {
			c.log.Errorf("uniform block `%s' is too large (%d > %d bytes)", b.Name, b.ByteSize, c.lim.MaxUniformBlockSize)
		}
	}
	for _, b := range c.res.StorageBlocks {
		totalStorageBlocks += max32(b.ArraySize, 1)
		if b.ByteSize > c.lim.MaxShaderStorageBlockSize {
			c.log.Errorf("buffer block `%s' is too large (%d > %d bytes)", b.Name, b.ByteSize, c.lim.MaxShaderStorageBlockSize)
		}
	}
	if totalUniformBlocks > c.lim.MaxCombinedUniformBlocks {
		c.log.Errorf("too many combined uniform blocks (%d > %d)", totalUniformBlocks, c.lim.MaxCombinedUniformBlocks)
	}
	if totalStorageBlocks > c.lim.MaxCombinedShaderStorageBlocks {
		c.log.Errorf("too many combined buffer blocks (%d > %d)", totalStorageBlocks, c.lim.MaxCombinedShaderStorageBlocks)
	}

	if fs := c.res.Stages[ir.StageFragment]; fs != nil {
		var outputs uint32
		for vi := range fs.Variables {
			v := &fs.Variables[vi]
			if v.Mode == ir.ModeOutput && !v.BuiltIn && v.AssignedLocation >= 0 {
				outputs++
			}
		}
		_, images, _, _, _ := counts(ir.StageFragment)
		total := outputs + images + blockCount(c.res.StorageBlocks, ir.StageFragment)
		if total > c.lim.MaxCombinedOutputResources {
			c.log.Errorf("too many combined image uniforms, buffer blocks and fragment outputs (%d > %d)",
				total, c.lim.MaxCombinedOutputResources)
		}
	}

	if gs := c.res.Stages[ir.StageGeometry]; gs != nil {
		if uint32(gs.Layout.GeomMaxVertices) > c.lim.MaxGeometryOutputVertices {
			c.log.Errorf("geometry shader output vertex count %d exceeds the device limit of %d",
				gs.Layout.GeomMaxVertices, c.lim.MaxGeometryOutputVertices)
		}
		if uint32(gs.Layout.GeomInvocations) > c.lim.MaxGeometryShaderInvocations {
			c.log.Errorf("geometry shader invocation count %d exceeds the device limit of %d",
				gs.Layout.GeomInvocations, c.lim.MaxGeometryShaderInvocations)
		}
	}
	if tcs := c.res.Stages[ir.StageTessControl]; tcs != nil {
		if uint32(tcs.Layout.VerticesOut) > c.lim.MaxPatchVertices {
			c.log.Errorf("tessellation control shader output patch size %d exceeds the device limit of %d",
				tcs.Layout.VerticesOut, c.lim.MaxPatchVertices)
		}
	}
	if cs := c.res.Stages[ir.StageCompute]; cs != nil {
		for d := 0; d < 3; d++ {
			if cs.Layout.LocalSize[d] > c.lim.MaxComputeWorkGroupSize[d] {
				c.log.Errorf("compute shader local work group size exceeds the device limit in dimension %d (%d > %d)",
					d, cs.Layout.LocalSize[d], c.lim.MaxComputeWorkGroupSize[d])
			}
		}
	}
}
