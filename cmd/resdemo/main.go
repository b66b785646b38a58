// Command resdemo drives the gpures core through a few frames on the noop
// HAL backend and reports what it allocated, renamed, declared and freed.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gpures"
	"github.com/gogpu/gpures/backend/native"
	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/residency"
	"github.com/gogpu/gpures/staging"
)

func main() {
	var (
		frames   = flag.Int("frames", 4, "frames to record")
		discards = flag.Int("discards", 3, "dynamic buffer discards per frame")
		capacity = flag.Int("capacity", 3, "renaming pool capacity")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	factory, err := native.NewFactory(&noop.Device{})
	if err != nil {
		log.Fatalf("factory: %v", err)
	}
	clock, err := native.NewClock(&noop.Queue{})
	if err != nil {
		log.Fatalf("clock: %v", err)
	}
	dev, err := gpures.NewDevice(factory, clock,
		gpures.WithRenameCapacity(*capacity),
		gpures.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("device: %v", err)
	}
	defer dev.Close()

	if err := run(dev, factory, clock, *frames, *discards); err != nil {
		log.Fatalf("resdemo: %v", err)
	}
}

func run(dev *gpures.Device, factory *native.Factory, clock *native.Clock, frames, discards int) error {
	vb, err := dev.NewDynamicBuffer(gpucore.BufferDesc{
		Label:       "vertices",
		Size:        64 << 10,
		Usage:       gputypes.BufferUsageVertex,
		HostVisible: true,
	})
	if err != nil {
		return err
	}
	tex, err := dev.NewTexture(gpucore.TextureDesc{
		Label:         "albedo",
		Width:         256,
		Height:        256,
		MipLevelCount: 3,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding,
	})
	if err != nil {
		return err
	}
	sampled := tex.CreateView(gpucore.ViewDescriptor{
		Format: gputypes.TextureFormatRGBA8Unorm, Kind: gpucore.ViewKind2D, MipCount: 3, SliceCount: 1,
	})
	arrayed, err := tex.CheckedCastDimensionality(sampled, true)
	if err != nil {
		return err
	}

	readback, err := dev.NewStaging(staging.Desc{
		Label:       "readback",
		Format:      gputypes.TextureFormatRGBA8Unorm,
		Width:       256,
		Height:      256,
		Depth:       1,
		MipLevels:   1,
		ArrayLayers: 1,
		Access:      staging.MapRead,
	})
	if err != nil {
		return err
	}
	sub := readback.Subresource(0, 0)

	var renames, fills, barriers int
	for frame := range uint64(frames) {
		seq := clock.Next()
		enc, err := native.NewEncoder(factory, clock, "frame")
		if err != nil {
			return err
		}

		for range discards {
			cur, err := dev.Discard(vb, frame, seq)
			if err != nil {
				return err
			}
			if data := cur.Mapped(); len(data) > 0 {
				data[0] = byte(frame)
			}
			renames++
		}

		h, err := dev.Counters().Allocate(seq, uint32(frame))
		if err != nil {
			return err
		}
		if err := dev.Counters().FlushInitializations(seq, enc); err != nil {
			return err
		}
		if _, err := tex.UseView(sampled, enc, uint64(seq), residency.FragmentRead); err != nil {
			return err
		}
		if _, err := tex.UseView(arrayed, enc, uint64(seq), residency.ComputeRead|residency.ComputeWrite); err != nil {
			return err
		}
		if err := vb.Current().Use(enc, uint64(seq), residency.VertexRead); err != nil {
			return err
		}
		if err := dev.Counters().Discard(seq, h); err != nil {
			return err
		}

		if err := readback.UseAsCopyDestination(sub, seq); err != nil {
			return err
		}

		cmd, err := enc.Finish()
		if err != nil {
			return err
		}
		if err := clock.Submit(seq, cmd); err != nil {
			return err
		}
		fills += enc.Fills()
		barriers += enc.Declarations()

		mapped, err := dev.MapWait(context.Background(), readback, sub, staging.MapRead)
		if err != nil {
			return err
		}
		log.Printf("frame %d: readback ready, %d bytes, row pitch %d", frame, len(mapped.Data), mapped.RowPitch)
		if err := readback.Unmap(sub); err != nil {
			return err
		}

		counters, allocations := dev.Poll()
		log.Printf("frame %d: seq %d, reclaimed %d counters, freed %d allocations",
			frame, seq, counters, allocations)
	}

	log.Printf("done: %d renames over a pool of %d, %d fills, %d barriers, %d views on current texture",
		renames, vb.Pool().Capacity(), fills, barriers, tex.Current().CachedViews())
	return nil
}
