package native

import (
	"encoding/binary"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gpures/backend"
	"github.com/gogpu/gpures/counter"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/resource"
	"github.com/gogpu/gpures/residency"
)

// =============================================================================
// Recording HAL doubles built on the noop backend
// =============================================================================

// recordingEncoder records barriers and clears.
type recordingEncoder struct {
	noop.CommandEncoder

	textureBarriers []hal.TextureBarrier
	bufferBarriers  []hal.BufferBarrier
	clears          int
}

func (e *recordingEncoder) TransitionTextures(b []hal.TextureBarrier) {
	e.textureBarriers = append(e.textureBarriers, b...)
}

func (e *recordingEncoder) TransitionBuffers(b []hal.BufferBarrier) {
	e.bufferBarriers = append(e.bufferBarriers, b...)
}

func (e *recordingEncoder) ClearBuffer(_ hal.Buffer, _, _ uint64) { e.clears++ }

// recordingDevice hands out recordingEncoders and can fail view creation.
type recordingDevice struct {
	noop.Device

	encoder   *recordingEncoder
	failViews bool
	views     int
	destroyed int
}

func (d *recordingDevice) CreateCommandEncoder(_ *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	d.encoder = &recordingEncoder{}
	return d.encoder, nil
}

func (d *recordingDevice) CreateTextureView(t hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	if d.failViews {
		return nil, errors.New("unsupported reinterpretation")
	}
	d.views++
	return d.Device.CreateTextureView(t, desc)
}

func (d *recordingDevice) DestroyTextureView(hal.TextureView) { d.destroyed++ }

// slowQueue completes submissions only up to done.
type slowQueue struct {
	noop.Queue
	done uint64
}

func (q *slowQueue) PollCompleted() uint64 { return q.done }

func newTestBridge(t *testing.T) (*Factory, *Clock, *recordingDevice, *slowQueue) {
	t.Helper()
	dev := &recordingDevice{}
	q := &slowQueue{}
	f, err := NewFactory(dev)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewClock(q)
	if err != nil {
		t.Fatal(err)
	}
	return f, c, dev, q
}

// =============================================================================
// Factory
// =============================================================================

func TestFactoryTextureViews(t *testing.T) {
	f, _, dev, _ := newTestBridge(t)
	res, err := resource.NewTexture(f, gpucore.TextureDesc{
		Label:              "cube",
		Width:              64,
		Height:             64,
		DepthOrArrayLayers: 6,
		Dimension:          gputypes.TextureDimension2D,
		Format:             gputypes.TextureFormatRGBA8Unorm,
		Usage:              gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}

	key := res.CreateView(gpucore.ViewDescriptor{
		Format: gputypes.TextureFormatRGBA8Unorm, Kind: gpucore.ViewKindCube, MipCount: 1, SliceCount: 6,
	})
	v, err := res.ResolveView(key, res.Current())
	if err != nil {
		t.Fatalf("ResolveView() error = %v", err)
	}
	if _, ok := f.HALView(v.ID()); !ok {
		t.Error("view not registered in factory")
	}
	if dev.views != 1 {
		t.Errorf("HAL views = %d, want 1", dev.views)
	}

	if err := res.Current().Release(); err != nil {
		t.Fatal(err)
	}
	if dev.destroyed != 1 {
		t.Errorf("HAL views destroyed = %d, want 1", dev.destroyed)
	}
	if _, ok := f.HALTexture(res.Current().Texture()); ok {
		t.Error("texture still registered after release")
	}
}

func TestFactoryViewFailures(t *testing.T) {
	f, _, dev, _ := newTestBridge(t)
	tex, err := f.CreateTexture(gpucore.TextureDesc{Width: 4, Height: 4, Format: gputypes.TextureFormatRGBA8Unorm})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		tex  gpucore.TextureID
		desc gpucore.ViewDescriptor
		fail bool
		want error
	}{
		{"1D array", tex, gpucore.ViewDescriptor{Kind: gpucore.ViewKind1DArray, MipCount: 1, SliceCount: 2}, false, ErrUnsupportedViewKind},
		{"unknown texture", 999, gpucore.ViewDescriptor{Kind: gpucore.ViewKind2D, MipCount: 1, SliceCount: 1}, false, ErrUnknownHandle},
		{"device failure", tex, gpucore.ViewDescriptor{Kind: gpucore.ViewKind2D, MipCount: 1, SliceCount: 1}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev.failViews = tt.fail
			_, err := f.CreateView(tt.tex, tt.desc)
			if err == nil {
				t.Fatal("CreateView() should fail")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFactoryMapBuffer(t *testing.T) {
	f, c, _, _ := newTestBridge(t)
	id, err := f.CreateBuffer(gpucore.BufferDesc{Label: "upload", Size: 16, HostVisible: true})
	if err != nil {
		t.Fatal(err)
	}
	data, err := f.MapBuffer(id)
	if err != nil {
		t.Fatalf("MapBuffer() error = %v", err)
	}
	if len(data) != 16 {
		t.Fatalf("len(data) = %d, want 16", len(data))
	}

	// Queue writes land in the mapped noop memory.
	b, _ := f.HALBuffer(id)
	if err := c.Queue().WriteBuffer(b, 4, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if data[4] != 1 || data[7] != 4 {
		t.Errorf("mapped bytes = %v, want write visible", data[4:8])
	}

	if _, err := f.MapBuffer(12345); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("MapBuffer(unknown) error = %v, want ErrUnknownHandle", err)
	}
}

// =============================================================================
// Clock
// =============================================================================

func TestClockTranslatesSubmissionIndexes(t *testing.T) {
	_, c, _, q := newTestBridge(t)

	var seqs []gpucore.SequenceID
	for range 3 {
		seq := c.Next()
		if err := c.Submit(seq); err != nil {
			t.Fatalf("Submit(%d) error = %v", seq, err)
		}
		seqs = append(seqs, seq)
	}

	if got := c.Completed(); got != 0 {
		t.Errorf("Completed() = %d, want 0", got)
	}
	q.done = 2
	if got := c.Completed(); got != seqs[1] {
		t.Errorf("Completed() = %d, want %d", got, seqs[1])
	}
	if c.InFlight() != 1 {
		t.Errorf("InFlight() = %d, want 1", c.InFlight())
	}
	q.done = 3
	if got := c.Completed(); got != seqs[2] {
		t.Errorf("Completed() = %d, want %d", got, seqs[2])
	}
}

func TestClockSkippedSequence(t *testing.T) {
	_, c, _, q := newTestBridge(t)
	c.Next()        // batch abandoned before submission
	seq := c.Next() // submitted as HAL index 1
	if err := c.Submit(seq); err != nil {
		t.Fatal(err)
	}
	q.done = 1
	if got := c.Completed(); got != seq {
		t.Errorf("Completed() = %d, want %d", got, seq)
	}
}

func TestClockSubmitOrder(t *testing.T) {
	_, c, _, _ := newTestBridge(t)
	a, b := c.Next(), c.Next()
	if err := c.Submit(b); err != nil {
		t.Fatal(err)
	}
	if err := c.Submit(a); !errors.Is(err, gpucore.ErrStaleSequence) {
		t.Errorf("out-of-order Submit() error = %v, want ErrStaleSequence", err)
	}
	if err := c.Submit(b + 5); !errors.Is(err, gpucore.ErrStaleSequence) {
		t.Errorf("Submit(unissued) error = %v, want ErrStaleSequence", err)
	}
}

// =============================================================================
// Encoder
// =============================================================================

func TestEncoderResidencyBarriers(t *testing.T) {
	f, c, dev, _ := newTestBridge(t)
	res, err := resource.NewTexture(f, gpucore.TextureDesc{
		Label: "target", Width: 8, Height: 8, MipLevelCount: 2,
		Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatal(err)
	}
	key := res.CreateView(gpucore.ViewDescriptor{
		Format: gputypes.TextureFormatRGBA8Unorm, Kind: gpucore.ViewKind2D, FirstMip: 1, MipCount: 1, SliceCount: 1,
	})

	enc, err := NewEncoder(f, c, "pass")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := res.UseView(key, enc, 1, residency.FragmentRead); err != nil {
		t.Fatal(err)
	}
	if _, err := res.UseView(key, enc, 1, residency.FragmentRead); err != nil {
		t.Fatal(err)
	}
	if _, err := res.UseView(key, enc, 1, residency.ComputeWrite); err != nil {
		t.Fatal(err)
	}

	barriers := dev.encoder.textureBarriers
	if len(barriers) != 2 {
		t.Fatalf("texture barriers = %d, want 2", len(barriers))
	}
	if barriers[0].Range.BaseMipLevel != 1 || barriers[0].Range.MipLevelCount != 1 {
		t.Errorf("barrier range = %+v, want mip 1", barriers[0].Range)
	}
	want := []hal.TextureUsageTransition{
		{OldUsage: 0, NewUsage: gputypes.TextureUsageTextureBinding},
		{OldUsage: gputypes.TextureUsageTextureBinding, NewUsage: gputypes.TextureUsageStorageBinding},
	}
	for i, w := range want {
		if barriers[i].Usage != w {
			t.Errorf("barrier %d usage = %+v, want %+v", i, barriers[i].Usage, w)
		}
	}

	if _, err := enc.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if _, err := enc.Finish(); !errors.Is(err, ErrEncoderFinished) {
		t.Errorf("second Finish() error = %v, want ErrEncoderFinished", err)
	}
}

func TestEncoderBufferBarrierFromCreationUsage(t *testing.T) {
	f, c, dev, _ := newTestBridge(t)
	created := gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst
	res, err := resource.NewBuffer(f, gpucore.BufferDesc{Label: "vertices", Size: 64, Usage: created})
	if err != nil {
		t.Fatal(err)
	}

	enc, err := NewEncoder(f, c, "pass")
	if err != nil {
		t.Fatal(err)
	}
	if err := res.Current().Use(enc, 1, residency.VertexRead); err != nil {
		t.Fatal(err)
	}
	if err := res.Current().Use(enc, 1, residency.ComputeWrite); err != nil {
		t.Fatal(err)
	}

	barriers := dev.encoder.bufferBarriers
	want := []hal.BufferUsageTransition{
		{OldUsage: created, NewUsage: gputypes.BufferUsageUniform},
		{OldUsage: gputypes.BufferUsageUniform, NewUsage: gputypes.BufferUsageStorage},
	}
	if len(barriers) != len(want) {
		t.Fatalf("buffer barriers = %d, want %d", len(barriers), len(want))
	}
	for i, w := range want {
		if barriers[i].Usage != w {
			t.Errorf("barrier %d usage = %+v, want %+v", i, barriers[i].Usage, w)
		}
	}
	enc.Destroy()
}

func TestEncoderCounterSeeds(t *testing.T) {
	f, c, dev, _ := newTestBridge(t)
	counters := counter.New(f, counter.Config{BlockSlots: 4})

	seq := c.Next()
	if _, err := counters.Allocate(seq, 0); err != nil {
		t.Fatal(err)
	}
	seeded, _ := counters.Allocate(seq, 0xCAFE)

	enc, err := NewEncoder(f, c, "counters")
	if err != nil {
		t.Fatal(err)
	}
	if err := counters.FlushInitializations(seq, enc); err != nil {
		t.Fatal(err)
	}
	if enc.Fills() != 2 || dev.encoder.clears != 1 {
		t.Errorf("fills = %d, clears = %d, want 2, 1", enc.Fills(), dev.encoder.clears)
	}

	// noop buffers keep their memory, so the seed can be read back.
	loc, _ := counters.Get(seeded)
	data, err := f.MapBuffer(loc.Buffer)
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint32(data[loc.Offset:]); got != 0xCAFE {
		t.Errorf("seeded value = %#x, want 0xCAFE", got)
	}

	cmd, err := enc.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Submit(seq, cmd); err != nil {
		t.Fatal(err)
	}
}

func TestEncoderUnknownHandle(t *testing.T) {
	f, c, _, _ := newTestBridge(t)
	enc, err := NewEncoder(f, c, "bad")
	if err != nil {
		t.Fatal(err)
	}
	enc.DeclareResidency(gpucore.BufferHandle(77), gpucore.AccessRead, gputypes.ShaderStageVertex)
	if _, err := enc.Finish(); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("Finish() error = %v, want ErrUnknownHandle", err)
	}
}

// =============================================================================
// Provider
// =============================================================================

type testProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p *testProvider) Device() gpucontext.Device             { return p.device }
func (p *testProvider) Queue() gpucontext.Queue               { return p.queue }
func (p *testProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (p *testProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *testProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{Name: "noop"} }

type halTestProvider struct {
	testProvider
}

func (p *halTestProvider) HalDevice() any { return p.device }
func (p *halTestProvider) HalQueue() any  { return p.queue }

func TestNewFromProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider gpucontext.DeviceProvider
		wantErr  bool
	}{
		{"typed device", &testProvider{device: &noop.Device{}, queue: &noop.Queue{}}, false},
		{"hal provider", &halTestProvider{testProvider{device: &noop.Device{}, queue: &noop.Queue{}}}, false},
		{"no hal", &testProvider{}, true},
		{"nil", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c, err := NewFromProvider(tt.provider)
			if tt.wantErr {
				if !errors.Is(err, ErrNoHALProvider) {
					t.Errorf("error = %v, want ErrNoHALProvider", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFromProvider() error = %v", err)
			}
			if f == nil || c == nil {
				t.Error("NewFromProvider() returned nil factory or clock")
			}
		})
	}
}

func TestRegisteredBackend(t *testing.T) {
	if !backend.IsRegistered(backend.Native) {
		t.Fatal("native backend is not registered")
	}
	b, err := backend.Open(backend.Native, &testProvider{device: &noop.Device{}, queue: &noop.Queue{}})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, ok := b.Factory.(*Factory); !ok {
		t.Errorf("Factory = %T, want *Factory", b.Factory)
	}
	if _, ok := b.Clock.(*Clock); !ok {
		t.Errorf("Clock = %T, want *Clock", b.Clock)
	}

	if _, err := backend.Open(backend.Native, &testProvider{}); !errors.Is(err, ErrNoHALProvider) {
		t.Errorf("Open(no hal) error = %v, want ErrNoHALProvider", err)
	}
}
