package link

import "github.com/gogpu/shaderlink/ir"

// Stage-wide layout declarations follow one rule: every unit that declares a
// value must declare the same value, and required declarations must appear
// in at least one unit. Merging runs before combining so the linked stage
// starts from a consistent layout.

func (c *context) mergeStageLayouts(stage ir.ShaderStage, units []*ir.TranslationUnit) (ir.StageLayout, bool) {
	var merged ir.StageLayout

	ok := true
	for _, u := range units {
		l := &u.Layout
		switch stage {
		case ir.StageTessControl:
			ok = c.mergeTessControl(&merged, l) && ok
		case ir.StageTessEval:
			ok = c.mergeTessEval(&merged, l) && ok
		case ir.StageGeometry:
			ok = c.mergeGeometry(&merged, l) && ok
		case ir.StageCompute:
			ok = c.mergeCompute(&merged, l) && ok
		case ir.StageFragment:
			merged.EarlyFragmentTests = merged.EarlyFragmentTests || l.EarlyFragmentTests
			merged.OriginUpperLeft = merged.OriginUpperLeft || l.OriginUpperLeft
			merged.PixelCenterInteger = merged.PixelCenterInteger || l.PixelCenterInteger
		}
		ok = c.mergeXfbStrides(&merged, l) && ok
	}
	if !ok {
		return merged, false
	}

	switch stage {
	case ir.StageTessControl:
		if merged.VerticesOut == 0 {
			c.log.Errorf("tessellation control shader didn't declare vertices out layout qualifier")
			return merged, false
		}
	case ir.StageTessEval:
		if merged.TessPrimitive == ir.PrimUnknown {
			c.log.Errorf("tessellation evaluation shader didn't declare input primitive mode")
			return merged, false
		}
		if merged.TessSpacing == ir.SpacingUnknown {
			merged.TessSpacing = ir.SpacingEqual
		}
		if merged.TessOrder == ir.WindingUnknown {
			merged.TessOrder = ir.WindingCCW
		}
	case ir.StageGeometry:
		if merged.GeomInput == ir.PrimUnknown {
			c.log.Errorf("geometry shader didn't declare primitive input type")
			return merged, false
		}
		if merged.GeomOutput == ir.PrimUnknown {
			c.log.Errorf("geometry shader didn't declare primitive output type")
			return merged, false
		}
		if merged.GeomMaxVertices == 0 {
			c.log.Errorf("geometry shader didn't declare max_vertices")
			return merged, false
		}
		if merged.GeomInvocations == 0 {
			merged.GeomInvocations = 1
		}
	case ir.StageCompute:
		if merged.LocalSize == [3]uint32{} {
			c.log.Errorf("compute shader didn't declare a local work group size")
			return merged, false
		}
	}
	return merged, true
}

func (c *context) mergeTessControl(merged *ir.StageLayout, l *ir.StageLayout) bool {
	if l.VerticesOut != 0 {
		if merged.VerticesOut != 0 && merged.VerticesOut != l.VerticesOut {
			c.log.Errorf("tessellation control shader defined with conflicting output vertex count (%d and %d)",
				merged.VerticesOut, l.VerticesOut)
			return false
		}
		merged.VerticesOut = l.VerticesOut
	}
	return true
}

func (c *context) mergeTessEval(merged *ir.StageLayout, l *ir.StageLayout) bool {
	if l.TessPrimitive != ir.PrimUnknown {
		if merged.TessPrimitive != ir.PrimUnknown && merged.TessPrimitive != l.TessPrimitive {
			c.log.Errorf("tessellation evaluation shader defined with conflicting input primitive modes")
			return false
		}
		merged.TessPrimitive = l.TessPrimitive
	}
	if l.TessSpacing != ir.SpacingUnknown {
		if merged.TessSpacing != ir.SpacingUnknown && merged.TessSpacing != l.TessSpacing {
			c.log.Errorf("tessellation evaluation shader defined with conflicting vertex spacing")
			return false
		}
		merged.TessSpacing = l.TessSpacing
	}
	if l.TessOrder != ir.WindingUnknown {
		if merged.TessOrder != ir.WindingUnknown && merged.TessOrder != l.TessOrder {
			c.log.Errorf("tessellation evaluation shader defined with conflicting ordering")
			return false
		}
		merged.TessOrder = l.TessOrder
	}
	merged.TessPointMode = merged.TessPointMode || l.TessPointMode
	return true
}

func (c *context) mergeGeometry(merged *ir.StageLayout, l *ir.StageLayout) bool {
	if l.GeomInput != ir.PrimUnknown {
		if merged.GeomInput != ir.PrimUnknown && merged.GeomInput != l.GeomInput {
			c.log.Errorf("geometry shader defined with conflicting input types")
			return false
		}
		merged.GeomInput = l.GeomInput
	}
	if l.GeomOutput != ir.PrimUnknown {
		if merged.GeomOutput != ir.PrimUnknown && merged.GeomOutput != l.GeomOutput {
			c.log.Errorf("geometry shader defined with conflicting output types")
			return false
		}
		merged.GeomOutput = l.GeomOutput
	}
	if l.GeomMaxVertices != 0 {
		if merged.GeomMaxVertices != 0 && merged.GeomMaxVertices != l.GeomMaxVertices {
			c.log.Errorf("geometry shader defined with conflicting output vertex count (%d and %d)",
				merged.GeomMaxVertices, l.GeomMaxVertices)
			return false
		}
		merged.GeomMaxVertices = l.GeomMaxVertices
	}
	if l.GeomInvocations != 0 {
		if merged.GeomInvocations != 0 && merged.GeomInvocations != l.GeomInvocations {
			c.log.Errorf("geometry shader defined with conflicting invocation count (%d and %d)",
				merged.GeomInvocations, l.GeomInvocations)
			return false
		}
		merged.GeomInvocations = l.GeomInvocations
	}
	return true
}

func (c *context) mergeCompute(merged *ir.StageLayout, l *ir.StageLayout) bool {
	if l.LocalSize == [3]uint32{} {
		return true
	}
	if merged.LocalSize != [3]uint32{} && merged.LocalSize != l.LocalSize {
		c.log.Errorf("compute shader defined with conflicting local sizes")
		return false
	}
	merged.LocalSize = l.LocalSize
	return true
}

func (c *context) mergeXfbStrides(merged *ir.StageLayout, l *ir.StageLayout) bool {
	for i := range l.XfbStride {
		if l.XfbStride[i] == 0 {
			continue
		}
		if merged.XfbStride[i] != 0 && merged.XfbStride[i] != l.XfbStride[i] {
			c.log.Errorf("conflicting xfb_stride qualifiers for buffer %d (%d and %d)",
				i, merged.XfbStride[i], l.XfbStride[i])
			return false
		}
		merged.XfbStride[i] = l.XfbStride[i]
	}
	return true
}
