package residency

import (
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpures/gpucore"
)

// Mask is a set of {read, write} x {pipeline stage} accesses.
type Mask uint8

// Access bits.
const (
	VertexRead Mask = 1 << iota
	VertexWrite
	FragmentRead
	FragmentWrite
	ComputeRead
	ComputeWrite

	// None requests nothing.
	None Mask = 0

	// maskBits is the number of defined bits.
	maskBits = 6
)

// Common combinations.
const (
	AllRead  = VertexRead | FragmentRead | ComputeRead
	AllWrite = VertexWrite | FragmentWrite | ComputeWrite
)

var maskNames = [maskBits]string{
	"VertexRead", "VertexWrite", "FragmentRead", "FragmentWrite", "ComputeRead", "ComputeWrite",
}

// String returns the set bits joined by "|".
func (m Mask) String() string {
	if m == None {
		return "None"
	}
	var parts []string
	for i := range maskBits {
		if m&(1<<i) != 0 {
			parts = append(parts, maskNames[i])
		}
	}
	if m>>maskBits != 0 {
		parts = append(parts, "Unknown")
	}
	return strings.Join(parts, "|")
}

// Covers reports whether every bit of other is already in m.
func (m Mask) Covers(other Mask) bool { return m&other == other }

// Declaration is the native form of a mask: the access kind and the shader
// stages passed to Encoder.DeclareResidency.
type Declaration struct {
	Access gpucore.Access
	Stages gputypes.ShaderStage
}

// declarations is indexed by Mask and computed once.
var declarations = buildDeclarations()

func buildDeclarations() (table [1 << maskBits]Declaration) {
	for i := range table {
		m := Mask(i)
		var d Declaration
		if m&AllRead != 0 {
			d.Access |= gpucore.AccessRead
		}
		if m&AllWrite != 0 {
			d.Access |= gpucore.AccessWrite
		}
		if m&(VertexRead|VertexWrite) != 0 {
			d.Stages |= gputypes.ShaderStageVertex
		}
		if m&(FragmentRead|FragmentWrite) != 0 {
			d.Stages |= gputypes.ShaderStageFragment
		}
		if m&(ComputeRead|ComputeWrite) != 0 {
			d.Stages |= gputypes.ShaderStageCompute
		}
		table[i] = d
	}
	return table
}

// Declaration translates m into the driver's access and stage flags.
// Bits outside the defined set are ignored.
func (m Mask) Declaration() Declaration {
	return declarations[m&(1<<maskBits-1)]
}
