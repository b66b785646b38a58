package native

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
)

// textureUsageFor maps a declared access to the texture usage it is
// transitioned to.
func textureUsageFor(access gpucore.Access) gputypes.TextureUsage {
	if access&gpucore.AccessWrite != 0 {
		return gputypes.TextureUsageStorageBinding
	}
	return gputypes.TextureUsageTextureBinding
}

// bufferUsageFor maps a declared access to the buffer usage it is
// transitioned to.
func bufferUsageFor(access gpucore.Access) gputypes.BufferUsage {
	if access&gpucore.AccessWrite != 0 {
		return gputypes.BufferUsageStorage
	}
	return gputypes.BufferUsageUniform
}

// Encoder is a gpucore.Encoder recording into a hal.CommandEncoder.
//
// Residency declarations become texture and buffer barriers. Zero fills
// become ClearBuffer commands; other fill values are written through the
// queue. Errors from the HAL are kept and returned by Finish, since the
// gpucore.Encoder methods cannot fail.
//
// An Encoder is used by one goroutine.
type Encoder struct {
	factory *Factory
	queue   hal.Queue
	enc     hal.CommandEncoder
	label   string

	declarations int
	fills        int
	err          error
	finished     bool
}

// NewEncoder creates a command encoder on the factory's device and begins
// recording.
func NewEncoder(f *Factory, c *Clock, label string) (*Encoder, error) {
	enc, err := f.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, errors.Wrapf(err, "native: create encoder %q", label)
	}
	if err := enc.BeginEncoding(label); err != nil {
		enc.Destroy()
		return nil, errors.Wrapf(err, "native: begin encoder %q", label)
	}
	return &Encoder{factory: f, queue: c.queue, enc: enc, label: label}, nil
}

func (e *Encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
	logging.Logger().Warn("native: encoder command dropped", "encoder", e.label, "err", err)
}

// DeclareResidency implements gpucore.Encoder.
func (e *Encoder) DeclareResidency(h gpucore.Handle, access gpucore.Access, stages gputypes.ShaderStage) {
	if e.finished {
		e.fail(ErrEncoderFinished)
		return
	}
	switch h.Kind {
	case gpucore.HandleTexture, gpucore.HandleView:
		b, err := e.factory.transitionTexture(h, textureUsageFor(access))
		if err != nil {
			e.fail(err)
			return
		}
		e.enc.TransitionTextures([]hal.TextureBarrier{b})
	case gpucore.HandleBuffer:
		b, err := e.factory.transitionBuffer(gpucore.BufferID(h.ID), bufferUsageFor(access))
		if err != nil {
			e.fail(err)
			return
		}
		e.enc.TransitionBuffers([]hal.BufferBarrier{b})
	default:
		e.fail(errors.Wrapf(ErrUnknownHandle, "declare %s", h))
		return
	}
	e.declarations++
	logging.Logger().Debug("native: residency barrier",
		"handle", h.String(), "access", access.String(), "stages", uint32(stages))
}

// EmitFill implements gpucore.Encoder. size is rounded down to whole
// 4-byte words.
func (e *Encoder) EmitFill(buffer gpucore.BufferID, offset, size uint64, value uint32) {
	if e.finished {
		e.fail(ErrEncoderFinished)
		return
	}
	b, ok := e.factory.HALBuffer(buffer)
	if !ok {
		e.fail(errors.Wrapf(ErrUnknownHandle, "fill buffer %d", buffer))
		return
	}
	size &^= 3
	if value == 0 {
		e.enc.ClearBuffer(b, offset, size)
		e.fills++
		return
	}
	data := make([]byte, size)
	for i := uint64(0); i < size; i += 4 {
		binary.LittleEndian.PutUint32(data[i:], value)
	}
	if err := e.queue.WriteBuffer(b, offset, data); err != nil {
		e.fail(errors.Wrapf(err, "seed buffer %d", buffer))
		return
	}
	e.fills++
}

// Declarations returns the number of barriers recorded.
func (e *Encoder) Declarations() int { return e.declarations }

// Fills returns the number of fills recorded.
func (e *Encoder) Fills() int { return e.fills }

// Finish ends recording and returns the command buffer, or the first error
// a command hit.
func (e *Encoder) Finish() (hal.CommandBuffer, error) {
	if e.finished {
		return nil, ErrEncoderFinished
	}
	e.finished = true
	if e.err != nil {
		e.enc.DiscardEncoding()
		return nil, e.err
	}
	cmd, err := e.enc.EndEncoding()
	if err != nil {
		return nil, errors.Wrapf(err, "native: end encoder %q", e.label)
	}
	return cmd, nil
}

// Destroy releases the HAL encoder.
func (e *Encoder) Destroy() { e.enc.Destroy() }

var _ gpucore.Encoder = (*Encoder)(nil)
