// Package residency deduplicates residency declarations per encoder.
//
// A Record lives next to every physical object that can be bound (an
// allocation or one of its views). Within one encoder the first request for
// a record is declared, later requests are declared again only when they add
// access bits, and then with the union of everything requested so far since
// the driver call replaces rather than extends a previous declaration.
//
// Encoder ids must be strictly increasing per queue. Records are not safe for
// concurrent use; they are touched by the goroutine building the encoder.
package residency

import (
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
)

// Record remembers what has been declared for one object in the most recent
// encoder. The zero value is ready to use and has seen no encoder.
type Record struct {
	lastEncoder uint64
	lastMask    Mask
}

// LastEncoder returns the encoder id of the most recent request.
func (r *Record) LastEncoder() uint64 { return r.lastEncoder }

// LastMask returns the mask accumulated for LastEncoder.
func (r *Record) LastMask() Mask { return r.lastMask }

// Request reports whether a declaration must be emitted for mask in encoder
// and, if so, the mask to declare.
//
// Encoder ids start at 1; a request with an encoder id lower than the last
// one recorded is a contract violation.
func (r *Record) Request(encoder uint64, mask Mask) (declare bool, union Mask, err error) {
	switch {
	case encoder > r.lastEncoder:
		r.lastEncoder = encoder
		r.lastMask = mask
		return true, mask, nil

	case encoder == r.lastEncoder:
		if r.lastMask.Covers(mask) {
			return false, r.lastMask, nil
		}
		r.lastMask |= mask
		return true, r.lastMask, nil

	default:
		return false, None, gpucore.Violation(gpucore.ErrStaleEncoder,
			"residency requested for encoder %d after encoder %d", encoder, r.lastEncoder)
	}
}

// Declare runs Request and, when a declaration is needed, emits it for h
// through enc.
func Declare(r *Record, enc gpucore.Encoder, encoder uint64, h gpucore.Handle, mask Mask) error {
	declare, union, err := r.Request(encoder, mask)
	if err != nil {
		return err
	}
	if !declare {
		return nil
	}
	d := union.Declaration()
	logging.Logger().Debug("residency: declare",
		"handle", h.String(), "encoder", encoder, "mask", union.String())
	enc.DeclareResidency(h, d.Access, d.Stages)
	return nil
}
