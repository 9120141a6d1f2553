// Package shaderlink links compiled shader translation units into a
// complete multi-stage program.
//
// Linking combines every unit of a stage into one linked stage, validates
// the interfaces between consecutive stages, merges interface blocks
// program-wide, assigns attribute, varying, fragment output and uniform
// locations, and builds the program resource list.
//
// The simplest entry point links with default desktop limits:
//
//	result, err := shaderlink.Link(units)
//
// Device limits, transform feedback captures and separable-program
// behavior are configured through Options:
//
//	opts := shaderlink.DefaultOptions()
//	opts.FeedbackVaryings = []string{"worldPos"}
//	result, err := shaderlink.LinkWithOptions(units, opts)
package shaderlink

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gogpu/shaderlink/ir"
	"github.com/gogpu/shaderlink/limits"
	"github.com/gogpu/shaderlink/link"
)

// Options configures linking.
type Options struct {
	// Profile selects the API dialect, inferred from the shaders by
	// default. Forcing a dialect fails the link when the shaders were
	// compiled for the other one.
	Profile link.Profile
	// Separable links the program for separate-pipeline use.
	Separable bool

	// FeedbackVaryings names the outputs to capture with transform
	// feedback, in capture order.
	FeedbackVaryings []string
	// FeedbackMode selects interleaved or separate capture.
	FeedbackMode link.BufferMode

	// AttributeBindings assigns vertex attribute locations ahead of
	// linking; explicit location qualifiers win over them.
	AttributeBindings map[string]uint32
	// FragDataBindings assigns fragment output locations ahead of linking.
	FragDataBindings map[string]uint32
	// FragDataIndexBindings assigns dual-source blend indices ahead of
	// linking.
	FragDataIndexBindings map[string]uint32

	// Limits is the device limit table, defaults when nil.
	Limits *limits.Limits
	// Logger receives per-phase debug output. Nil disables logging.
	Logger logrus.FieldLogger
}

// DefaultOptions returns options for a desktop program with default limits.
func DefaultOptions() Options {
	return Options{Limits: limits.Default()}
}

// Link links translation units with default options.
func Link(units []*ir.TranslationUnit) (*link.Result, error) {
	return LinkWithOptions(units, DefaultOptions())
}

// LinkWithOptions links translation units into a program. The returned
// error summarizes the info log when the link fails; the Result carries the
// full diagnostics either way.
func LinkWithOptions(units []*ir.TranslationUnit, opts Options) (*link.Result, error) {
	lim := opts.Limits
	if lim == nil {
		lim = limits.Default()
	}
	if err := lim.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device limits: %w", err)
	}

	result := link.Link(units, lim, link.Options{
		Profile:               opts.Profile,
		Separable:             opts.Separable,
		FeedbackVaryings:      opts.FeedbackVaryings,
		FeedbackMode:          opts.FeedbackMode,
		AttributeBindings:     opts.AttributeBindings,
		FragDataBindings:      opts.FragDataBindings,
		FragDataIndexBindings: opts.FragDataIndexBindings,
		Logger:                opts.Logger,
	})
	if !result.Status {
		return result, fmt.Errorf("link failed:\n%s", result.InfoLog())
	}
	return result, nil
}
