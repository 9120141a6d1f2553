package link

import (
	"strconv"
	"strings"

	"github.com/gogpu/shaderlink/ir"
)

// FeedbackVarying is one captured output.
type FeedbackVarying struct {
	// Name is the capture spelling, including any "[index]" selector.
	Name string
	Type ir.TypeHandle
	Src  *ir.LinkedStage
	// Components is the number of 32-bit components captured.
	Components uint32
	Buffer     uint32
	// Offset is the byte offset within the buffer.
	Offset uint32
	// ArrayLength is the captured array length, 0 for non-arrays and
	// single-element captures.
	ArrayLength uint32
}

// FeedbackBuffer is one transform feedback buffer binding.
type FeedbackBuffer struct {
	Binding     uint32
	Stride      uint32
	NumVaryings uint32
}

// FeedbackInfo describes the program's transform feedback configuration.
type FeedbackInfo struct {
	Varyings []*FeedbackVarying
	Buffers  []FeedbackBuffer
	// ActiveBuffers has one bit per buffer binding in use.
	ActiveBuffers uint32
}

// parseResourceName splits a "name[index]" spelling. Without a selector it
// returns the name unchanged and hasIndex false.
func parseResourceName(name string) (base string, index uint32, hasIndex bool) {
	open := strings.LastIndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return name, 0, false
	}
	n, err := strconv.ParseUint(name[open+1:len(name)-1], 10, 32)
	if err != nil {
		return name, 0, false
	}
	return name[:open], uint32(n), true
}

// processTransformFeedback resolves the requested captures against the last
// stage before rasterization, lays them out into buffers and validates the
// declared strides.
func (c *context) processTransformFeedback() bool {
	// The capture stage is the last vertex-pipeline stage.
	var stage *ir.LinkedStage
	for i := len(c.pipeline) - 1; i >= 0; i-- {
		if c.pipeline[i].Stage != ir.StageFragment {
			stage = c.pipeline[i]
			break
		}
	}

	if len(c.opts.FeedbackVaryings) == 0 {
		if stage != nil {
			return c.checkDeclaredStrides(stage, nil)
		}
		return true
	}
	if stage == nil {
		c.log.Errorf("transform feedback varyings specified, but no vertex, tessellation or geometry shader is present")
		return false
	}

	info := &FeedbackInfo{}
	seen := map[string]bool{}
	var interleavedOffset uint32

	for i, capture := range c.opts.FeedbackVaryings {
		if seen[capture] {
			c.log.Errorf("transform feedback varying `%s' specified more than once", capture)
			return false
		}
		seen[capture] = true

		base, index, hasIndex := parseResourceName(capture)
		_, v, ok := stage.Variable(base)
		if !ok || v.Mode != ir.ModeOutput && v.Mode != ir.ModeSystemValue {
			c.log.Errorf("transform feedback varying `%s' undeclared", capture)
			return false
		}

		captureType := v.Type
		var arrayLen uint32
		if elem, length, isArr := ir.ArrayInfo(stage, v.Type); isArr {
			if hasIndex {
				if length != 0 && index >= length {
					c.log.Errorf("transform feedback varying `%s' has index %d out of bounds", base, index)
					return false
				}
				captureType = elem
			} else {
				arrayLen = length
			}
		} else if hasIndex {
			c.log.Errorf("transform feedback varying `%s' is not an array", base)
			return false
		}

		comps := ir.ComponentCount(stage, captureType)
		fv := &FeedbackVarying{
			Name:        capture,
			Type:        captureType,
			Src:         stage,
			Components:  comps,
			ArrayLength: arrayLen,
		}

		if c.opts.FeedbackMode == SeparateAttribs {
			fv.Buffer = uint32(i)
			if fv.Buffer >= c.lim.MaxTransformFeedbackBuffers {
				c.log.Errorf("too many separate transform feedback varyings (max %d)",
					c.lim.MaxTransformFeedbackBuffers)
				return false
			}
			if comps > c.lim.MaxTransformFeedbackSeparateComponents {
				c.log.Errorf("transform feedback varying `%s' uses too many components (%d > %d)",
					capture, comps, c.lim.MaxTransformFeedbackSeparateComponents)
				return false
			}
		} else {
			fv.Buffer = 0
			if scalar, ok := ir.BaseScalar(stage, captureType); ok && scalar.Width == 8 {
				// Doubles need 8-byte alignment within the buffer.
				interleavedOffset = (interleavedOffset + 7) &^ 7
			}
			fv.Offset = interleavedOffset
			interleavedOffset += comps * 4
		}

		v.AlwaysActive = true
		info.Varyings = append(info.Varyings, fv)
	}

	if c.opts.FeedbackMode == InterleavedAttribs {
		if interleavedOffset/4 > c.lim.MaxTransformFeedbackInterleavedComponents {
			c.log.Errorf("interleaved transform feedback captures too many components (%d > %d)",
				interleavedOffset/4, c.lim.MaxTransformFeedbackInterleavedComponents)
			return false
		}
		stride := interleavedOffset
		if declared := stage.Layout.XfbStride[0]; declared != 0 {
			stride = declared
		}
		info.Buffers = append(info.Buffers, FeedbackBuffer{
			Binding:     0,
			Stride:      stride,
			NumVaryings: uint32(len(info.Varyings)),
		})
		info.ActiveBuffers = 1
	} else {
		for _, fv := range info.Varyings {
			info.Buffers = append(info.Buffers, FeedbackBuffer{
				Binding:     fv.Buffer,
				Stride:      fv.Components * 4,
				NumVaryings: 1,
			})
			info.ActiveBuffers |= 1 << fv.Buffer
		}
	}

	if !c.checkDeclaredStrides(stage, info) {
		return false
	}
	c.res.Feedback = info
	return true
}

// checkDeclaredStrides validates xfb_stride layout declarations against the
// captured layout and the device limits.
func (c *context) checkDeclaredStrides(stage *ir.LinkedStage, info *FeedbackInfo) bool {
	for buf, stride := range stage.Layout.XfbStride {
		if stride == 0 {
			continue
		}
		if stride%4 != 0 {
			c.log.Errorf("transform feedback stride for buffer %d must be a multiple of 4 (was %d)",
				buf, stride)
			return false
		}
		if stride/4 > c.lim.MaxTransformFeedbackInterleavedComponents {
			c.log.Errorf("transform feedback stride for buffer %d exceeds the component limit (%d > %d)",
				buf, stride/4, c.lim.MaxTransformFeedbackInterleavedComponents)
			return false
		}
		if info == nil {
			continue
		}
		for _, fv := range info.Varyings {
			if fv.Buffer == uint32(buf) && fv.Offset+fv.Components*4 > stride {
				c.log.Errorf("transform feedback stride for buffer %d is too small (%d bytes, capture needs %d)",
					buf, stride, fv.Offset+fv.Components*4)
				return false
			}
		}
	}
	return true
}
