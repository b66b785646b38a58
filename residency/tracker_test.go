package residency

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/fakegpu"
)

func TestRequestDedup(t *testing.T) {
	var r Record

	declare, mask, err := r.Request(1, VertexRead)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !declare || mask != VertexRead {
		t.Errorf("first Request = (%v, %v), want (true, %v)", declare, mask, VertexRead)
	}

	declare, _, err = r.Request(1, VertexRead)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if declare {
		t.Error("repeated Request in same encoder should not declare")
	}

	declare, mask, err = r.Request(1, VertexWrite)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !declare || mask != VertexRead|VertexWrite {
		t.Errorf("widening Request = (%v, %v), want (true, %v)", declare, mask, VertexRead|VertexWrite)
	}
}

func TestRequestSubsetIsCovered(t *testing.T) {
	var r Record
	if _, _, err := r.Request(3, AllRead); err != nil {
		t.Fatal(err)
	}
	declare, _, err := r.Request(3, FragmentRead)
	if err != nil {
		t.Fatal(err)
	}
	if declare {
		t.Error("subset of declared mask should be covered")
	}
}

func TestRequestNewEncoderResets(t *testing.T) {
	var r Record
	if _, _, err := r.Request(1, AllRead|AllWrite); err != nil {
		t.Fatal(err)
	}
	declare, mask, err := r.Request(2, ComputeRead)
	if err != nil {
		t.Fatal(err)
	}
	if !declare || mask != ComputeRead {
		t.Errorf("new encoder Request = (%v, %v), want (true, %v)", declare, mask, ComputeRead)
	}
	if r.LastEncoder() != 2 || r.LastMask() != ComputeRead {
		t.Errorf("record = (%d, %v), want (2, %v)", r.LastEncoder(), r.LastMask(), ComputeRead)
	}
}

func TestRequestStaleEncoder(t *testing.T) {
	var r Record
	if _, _, err := r.Request(5, VertexRead); err != nil {
		t.Fatal(err)
	}
	_, _, err := r.Request(4, VertexRead)
	if err == nil {
		t.Fatal("Request with older encoder should fail")
	}
	if !errors.Is(err, gpucore.ErrStaleEncoder) {
		t.Errorf("error = %v, want ErrStaleEncoder", err)
	}
	if !gpucore.IsContractViolation(err) {
		t.Errorf("error = %v, want contract violation", err)
	}
	if r.LastEncoder() != 5 || r.LastMask() != VertexRead {
		t.Error("stale request must not modify the record")
	}
}

func TestDeclarationTable(t *testing.T) {
	tests := []struct {
		mask   Mask
		access gpucore.Access
		stages gputypes.ShaderStage
	}{
		{None, gpucore.AccessNone, gputypes.ShaderStageNone},
		{VertexRead, gpucore.AccessRead, gputypes.ShaderStageVertex},
		{FragmentWrite, gpucore.AccessWrite, gputypes.ShaderStageFragment},
		{ComputeRead | ComputeWrite, gpucore.AccessRead | gpucore.AccessWrite, gputypes.ShaderStageCompute},
		{VertexRead | FragmentRead, gpucore.AccessRead, gputypes.ShaderStagesVertexFragment},
		{AllRead | AllWrite, gpucore.AccessRead | gpucore.AccessWrite, gputypes.ShaderStagesAll},
	}
	for _, tt := range tests {
		t.Run(tt.mask.String(), func(t *testing.T) {
			d := tt.mask.Declaration()
			if d.Access != tt.access {
				t.Errorf("Access = %v, want %v", d.Access, tt.access)
			}
			if d.Stages != tt.stages {
				t.Errorf("Stages = %v, want %v", d.Stages, tt.stages)
			}
		})
	}
}

func TestDeclareEmitsUnion(t *testing.T) {
	var r Record
	enc := &fakegpu.Encoder{}
	h := gpucore.ViewHandle(7)

	for _, m := range []Mask{FragmentRead, FragmentRead, ComputeWrite} {
		if err := Declare(&r, enc, 1, h, m); err != nil {
			t.Fatalf("Declare() error = %v", err)
		}
	}

	if len(enc.Declarations) != 2 {
		t.Fatalf("declarations = %d, want 2", len(enc.Declarations))
	}
	last := enc.Declarations[1]
	if last.Handle != h {
		t.Errorf("handle = %v, want %v", last.Handle, h)
	}
	if last.Access != gpucore.AccessRead|gpucore.AccessWrite {
		t.Errorf("access = %v, want Read|Write", last.Access)
	}
	if last.Stages != gputypes.ShaderStageFragment|gputypes.ShaderStageCompute {
		t.Errorf("stages = %v, want Fragment|Compute", last.Stages)
	}
}

func TestMaskString(t *testing.T) {
	if got := (VertexRead | ComputeWrite).String(); got != "VertexRead|ComputeWrite" {
		t.Errorf("String() = %q", got)
	}
	if got := None.String(); got != "None" {
		t.Errorf("String() = %q, want None", got)
	}
}
