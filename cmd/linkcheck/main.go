// Command linkcheck links a representative multi-stage program against a
// device limit table and prints the resulting program resource list.
//
// Usage:
//
//	linkcheck                      # link the sample program with default limits
//	linkcheck -l device.toml       # link against a device limit table
//	linkcheck -f worldPos -f color # capture outputs with transform feedback
//	linkcheck limits               # print the effective limit table as TOML
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gogpu/shaderlink"
	"github.com/gogpu/shaderlink/ir"
	"github.com/gogpu/shaderlink/limits"
	"github.com/gogpu/shaderlink/link"
)

var (
	limitsPath      string
	verbose         bool
	separable       bool
	feedbackNames   []string
	separateAttribs bool
)

func main() {
	root := &cobra.Command{
		Use:   "linkcheck",
		Short: "link a sample shader program against a device limit table",
		RunE:  runLink,

		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().StringVarP(&limitsPath, "limits", "l", "", "device limit table (TOML)")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "log linker phases")
	root.Flags().BoolVar(&separable, "separable", false, "link as a separable program")
	root.Flags().StringArrayVarP(&feedbackNames, "feedback", "f", nil, "output to capture with transform feedback (repeatable)")
	root.Flags().BoolVar(&separateAttribs, "separate-attribs", false, "capture each feedback varying into its own buffer")

	root.AddCommand(&cobra.Command{
		Use:   "limits",
		Short: "print the effective limit table as TOML",
		RunE:  runLimits,
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "linkcheck: %v\n", err)
		os.Exit(1)
	}
}

func loadLimits() (*limits.Limits, error) {
	if limitsPath == "" {
		return limits.Default(), nil
	}
	return limits.Load(limitsPath)
}

func runLimits(cmd *cobra.Command, args []string) error {
	lim, err := loadLimits()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(lim)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runLink(cmd *cobra.Command, args []string) error {
	lim, err := loadLimits()
	if err != nil {
		return err
	}

	opts := shaderlink.DefaultOptions()
	opts.Limits = lim
	opts.Separable = separable
	opts.FeedbackVaryings = feedbackNames
	if separateAttribs {
		opts.FeedbackMode = link.SeparateAttribs
	}
	if verbose {
		logger := logrus.New()
		logger.SetLevel(logrus.DebugLevel)
		opts.Logger = logger
	}

	result, err := shaderlink.LinkWithOptions(sampleProgram(), opts)
	if result != nil {
		printDiagnostics(result.Log)
	}
	if err != nil {
		return fmt.Errorf("link failed")
	}

	color.Green("link ok (GLSL %d)", result.Version)
	printResources(result)
	return nil
}

func printDiagnostics(log *link.Log) {
	for _, d := range log.Entries() {
		if d.Severity == link.SeverityError {
			color.Red("error: %s", d.Message)
		} else {
			color.Yellow("warning: %s", d.Message)
		}
	}
}

func printResources(result *link.Result) {
	var lastKind link.ResourceKind = 255
	for _, r := range result.Resources {
		if r.Kind != lastKind {
			lastKind = r.Kind
			color.Cyan("%s:", r.Kind)
		}
		switch {
		case r.Variable != nil:
			fmt.Printf("  %-24s location %d\n", r.Name, r.Variable.Location)
		case r.Uniform != nil && r.Uniform.BlockIndex >= 0:
			fmt.Printf("  %-24s block %d\n", r.Name, r.Uniform.BlockIndex)
		case r.Uniform != nil:
			fmt.Printf("  %-24s location %d\n", r.Name, r.Uniform.Location)
		case r.Block != nil:
			fmt.Printf("  %-24s %d bytes, stages %#x\n", r.Name, r.Block.ByteSize, r.StageRefs)
		case r.AtomicBuffer != nil:
			fmt.Printf("  binding %-16d %d bytes\n", r.AtomicBuffer.Binding, r.AtomicBuffer.Size)
		case r.Feedback != nil:
			fmt.Printf("  %-24s buffer %d offset %d\n", r.Name, r.Feedback.Buffer, r.Feedback.Offset)
		case r.FeedbackBuffer != nil:
			fmt.Printf("  binding %-16d stride %d\n", r.FeedbackBuffer.Binding, r.FeedbackBuffer.Stride)
		case r.Subroutine != nil:
			fmt.Printf("  %-24s index %d\n", r.Name, r.Subroutine.Index)
		}
	}
}

// sampleProgram builds the translation units of a small textured-lighting
// program, the kind of IR a GLSL front end would hand to the linker.
func sampleProgram() []*ir.TranslationUnit {
	vs := &ir.TranslationUnit{Name: "sample.vert", Stage: ir.StageVertex, Version: 450}
	vec4 := func() ir.TypeHandle {
		return vs.AddType(ir.Type{Inner: ir.VectorType{Size: ir.Vec4, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}})
	}
	vec3 := vs.AddType(ir.Type{Inner: ir.VectorType{Size: ir.Vec3, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}})
	vec2 := vs.AddType(ir.Type{Inner: ir.VectorType{Size: ir.Vec2, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}})
	mat4 := vs.AddType(ir.Type{Inner: ir.MatrixType{Columns: ir.Vec4, Rows: ir.Vec4, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}})

	position := addUnitVar(vs, "position", vec4(), ir.ModeInput, ir.Qualifiers{})
	normal := addUnitVar(vs, "normal", vec3, ir.ModeInput, ir.Qualifiers{})
	texCoord := addUnitVar(vs, "texCoord", vec2, ir.ModeInput, ir.Qualifiers{})
	vNormal := addUnitVar(vs, "vNormal", vs.AddType(ir.Type{Inner: ir.VectorType{Size: ir.Vec3, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}}), ir.ModeOutput, ir.Qualifiers{})
	vTexCoord := addUnitVar(vs, "vTexCoord", vs.AddType(ir.Type{Inner: ir.VectorType{Size: ir.Vec2, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}}), ir.ModeOutput, ir.Qualifiers{})
	worldPos := addUnitVar(vs, "worldPos", vs.AddType(ir.Type{Inner: ir.VectorType{Size: ir.Vec3, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}}), ir.ModeOutput, ir.Qualifiers{})
	glPosition := vs.AddVariable(ir.Variable{
		Name: "gl_Position", Type: vec4(), Mode: ir.ModeSystemValue, BuiltIn: true,
		MaxArrayAccess: -1, AssignedLocation: -1,
	})
	vs.AddBlock(ir.InterfaceBlock{
		Name: "Matrices", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{
			{Name: "modelView", Type: mat4, Offset: -1},
			{Name: "projection", Type: vs.AddType(ir.Type{Inner: ir.MatrixType{Columns: ir.Vec4, Rows: ir.Vec4, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}}), Offset: -1},
		},
	})
	vs.AddFunction(ir.Function{
		Name: "main", Defined: true, SubroutineIndex: -1,
		Body: ir.Block{
			{Kind: ir.StmtAssign{Target: glPosition, TargetIndex: -1, Sources: []ir.VariableHandle{position}}},
			{Kind: ir.StmtAssign{Target: vNormal, TargetIndex: -1, Sources: []ir.VariableHandle{normal}}},
			{Kind: ir.StmtAssign{Target: vTexCoord, TargetIndex: -1, Sources: []ir.VariableHandle{texCoord}}},
			{Kind: ir.StmtAssign{Target: worldPos, TargetIndex: -1, Sources: []ir.VariableHandle{position}}},
		},
	})

	fs := &ir.TranslationUnit{Name: "sample.frag", Stage: ir.StageFragment, Version: 450}
	fvec4 := func() ir.TypeHandle {
		return fs.AddType(ir.Type{Inner: ir.VectorType{Size: ir.Vec4, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}})
	}
	fvec3 := fs.AddType(ir.Type{Inner: ir.VectorType{Size: ir.Vec3, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}})
	fvec2 := fs.AddType(ir.Type{Inner: ir.VectorType{Size: ir.Vec2, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}})
	sampler := fs.AddType(ir.Type{Inner: ir.SamplerType{Dim: ir.Dim2D, Kind: ir.Float}})

	fNormal := addUnitVar(fs, "vNormal", fvec3, ir.ModeInput, ir.Qualifiers{})
	fTexCoord := addUnitVar(fs, "vTexCoord", fvec2, ir.ModeInput, ir.Qualifiers{})
	fWorldPos := addUnitVar(fs, "worldPos", fs.AddType(ir.Type{Inner: ir.VectorType{Size: ir.Vec3, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}}), ir.ModeInput, ir.Qualifiers{})
	albedo := addUnitVar(fs, "albedo", sampler, ir.ModeUniform, ir.Qualifiers{ExplicitBinding: true, Binding: 0})
	lightDir := addUnitVar(fs, "lightDir", fs.AddType(ir.Type{Inner: ir.VectorType{Size: ir.Vec3, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}}), ir.ModeUniform, ir.Qualifiers{})
	fragColor := addUnitVar(fs, "fragColor", fvec4(), ir.ModeOutput, ir.Qualifiers{})
	fs.AddBlock(ir.InterfaceBlock{
		Name: "Matrices", Mode: ir.BlockUniform, Packing: ir.PackStd140,
		Members: []ir.BlockMember{
			{Name: "modelView", Type: fs.AddType(ir.Type{Inner: ir.MatrixType{Columns: ir.Vec4, Rows: ir.Vec4, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}}), Offset: -1},
			{Name: "projection", Type: fs.AddType(ir.Type{Inner: ir.MatrixType{Columns: ir.Vec4, Rows: ir.Vec4, Scalar: ir.ScalarType{Kind: ir.Float, Width: 4}}}), Offset: -1},
		},
	})
	fs.AddFunction(ir.Function{
		Name: "main", Defined: true, SubroutineIndex: -1,
		Body: ir.Block{
			{Kind: ir.StmtAssign{Target: fragColor, TargetIndex: -1,
				Sources: []ir.VariableHandle{fNormal, fTexCoord, fWorldPos, albedo, lightDir}}},
		},
	})

	return []*ir.TranslationUnit{vs, fs}
}

func addUnitVar(u *ir.TranslationUnit, name string, t ir.TypeHandle, mode ir.StorageMode, qual ir.Qualifiers) ir.VariableHandle {
	return u.AddVariable(ir.Variable{
		Name: name, Type: t, Mode: mode, Qual: qual,
		MaxArrayAccess: -1, AssignedLocation: -1,
	})
}
