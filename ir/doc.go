// Package ir defines the intermediate representation consumed by the linker.
//
// The IR is designed to be:
//   - Front-end agnostic: Not tied to any specific shading language syntax
//   - Complete: Carries every declaration and qualifier linking needs
//   - Efficient: Optimized for cross-unit comparison and cloning
//
// # Structure
//
// The IR is organized around a TranslationUnit type that contains:
//   - Types: All type definitions used by the unit, addressed by handle
//   - Variables: Global declarations (inputs, outputs, uniforms, buffers)
//   - Blocks: Named interface blocks with their member lists
//   - Functions: Function definitions and prototypes
//   - Layout: Stage-wide layout declarations (tessellation, geometry, compute)
//
// All cross-references are integer handles into arenas rather than pointers,
// so units can be compared structurally and cloned with a handle remap.
//
// # Linking Pipeline
//
// The typical pipeline is:
//
//	TranslationUnits (per stage) → LinkedStage (per stage) → linked program
//
// Units are read-only inputs. Combining clones their contents into a
// LinkedStage, which owns a TypeRegistry that deduplicates structurally
// identical types imported from different units.
package ir
