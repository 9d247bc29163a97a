// Package sampler provides a looping WAV player. The file is decoded and
// resampled to the engine rate at prepare time, so the render path only ever
// reads from memory. A sampler can be elected timeline master, in which case
// its playhead drives the patch position and its loop wrap raises the global
// reset pulse.
package sampler

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the module type with the engine registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("sampler", func() module.Module { return New() })
}

const inRateCV = 0

const (
	pRate = iota
	pLoop
	pBPM
)

const resampleQuality = 4

// decodeChunk is the drain granularity for prepare-time decoding.
const decodeChunk = 2048

// Sampler plays a decoded stereo buffer with linear interpolation.
type Sampler struct {
	name string
	l, r []float32

	// Render-thread state.
	pos   float64
	reset bool
	st    transport.State

	// Published for the clock's master read and the rhythm scan.
	posSamples atomic.Int64
	loopLen    atomic.Int64
	rateBits   atomic.Uint64
	bpmBits    atomic.Uint64
	active     atomic.Bool
}

// New creates a Sampler.
func New() *Sampler {
	return &Sampler{}
}

// Describe implements module.Module.
func (s *Sampler) Describe(module.Config) module.Descriptor {
	return module.Descriptor{
		Inputs: []module.Pin{
			{Name: "rate_cv"},
		},
		Outputs: []module.Pin{
			{Name: "out_l"},
			{Name: "out_r"},
		},
		Params: []module.Param{
			{ID: "rate", Name: "Rate", Min: 0.25, Max: 4, Default: 1},
			{ID: "loop", Name: "Loop", Min: 0, Max: 1, Default: 1},
			{ID: "bpm", Name: "BPM Claim", Min: 0, Max: 999, Default: 0},
		},
		Options: []module.Option{
			{ID: "file", Default: ""},
		},
		Routes: []module.Route{
			{ParamID: "rate", Input: "rate_cv"},
		},
	}
}

// Prepare implements module.Module. Decoding and resampling happen here, on
// the control plane; a failure bypasses the instance instead of landing a
// sampler with no audio.
func (s *Sampler) Prepare(info module.StreamInfo, cfg module.Config) error {
	path := cfg.Option("file", "")
	if path == "" {
		return fmt.Errorf("sampler: file option is required")
	}

	l, r, err := loadWAV(path, beep.SampleRate(info.SampleRate))
	if err != nil {
		return fmt.Errorf("sampler: load %q: %w", path, err)
	}
	s.name = filepath.Base(path)
	s.l, s.r = l, r
	s.rateBits.Store(math.Float64bits(1))
	return nil
}

// loadWAV decodes a WAV file and resamples it to the engine rate.
func loadWAV(path string, rate beep.SampleRate) (l, r []float32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	stream, format, err := wav.Decode(f)
	if err != nil {
		return nil, nil, err
	}
	defer stream.Close()

	var src beep.Streamer = stream
	if format.SampleRate != rate {
		src = beep.Resample(resampleQuality, format.SampleRate, rate, stream)
	}

	chunk := make([][2]float64, decodeChunk)
	for {
		n, ok := src.Stream(chunk)
		for i := 0; i < n; i++ {
			l = append(l, float32(chunk[i][0]))
			r = append(r, float32(chunk[i][1]))
		}
		if !ok {
			break
		}
	}
	if len(l) == 0 {
		return nil, nil, fmt.Errorf("no samples decoded")
	}
	return l, r, nil
}

// SetTimingInfo implements module.Module.
func (s *Sampler) SetTimingInfo(st transport.State) {
	s.st = st
	if st.ForceReset {
		s.reset = true
	}
}

// Process implements module.Module.
func (s *Sampler) Process(pc *module.ProcessContext) {
	outL := pc.Out[0]
	outR := pc.Out[1]
	length := float64(len(s.l))

	rate := pc.Param(pRate)
	loop := pc.Param(pLoop) >= 0.5
	s.bpmBits.Store(math.Float64bits(pc.Param(pBPM)))
	if loop {
		s.loopLen.Store(int64(len(s.l)))
	} else {
		s.loopLen.Store(0)
	}

	if s.reset {
		// When the pulse coincides with this sampler's own imminent wrap it
		// is the echo of the clock's prediction; the in-block wrap below
		// rewinds sample-accurately, so rewinding here too would clip the
		// loop tail by up to a block.
		ownWrap := loop && s.pos+rate*float64(pc.Frames) >= length
		if !ownWrap {
			s.pos = 0
		}
		s.reset = false
	}

	playing := s.st.Playing && len(s.l) > 0

	for i := 0; i < pc.Frames; i++ {
		if !playing || (!loop && s.pos >= length) {
			outL[i] = 0
			outR[i] = 0
			continue
		}

		idx := int(s.pos)
		frac := float32(s.pos - float64(idx))
		next := idx + 1
		if next >= len(s.l) {
			if loop {
				next = 0
			} else {
				next = idx
			}
		}
		outL[i] = s.l[idx] + (s.l[next]-s.l[idx])*frac
		outR[i] = s.r[idx] + (s.r[next]-s.r[idx])*frac

		s.pos += rate
		if loop && s.pos >= length {
			s.pos -= length
		}
	}

	s.posSamples.Store(int64(s.pos))
	s.rateBits.Store(math.Float64bits(rate))
	s.active.Store(playing && (loop || s.pos < length))
}

// TimelineState implements module.TimelineSource. The clock reads this at the
// top of the next block, when the published position is exactly where the
// playhead will resume.
func (s *Sampler) TimelineState() transport.TimelineState {
	return transport.TimelineState{
		PositionSamples: s.posSamples.Load(),
		LengthSamples:   s.loopLen.Load(),
		Rate:            math.Float64frombits(s.rateBits.Load()),
		BPM:             math.Float64frombits(s.bpmBits.Load()),
	}
}

// RhythmInfo implements module.RhythmProvider.
func (s *Sampler) RhythmInfo() transport.RhythmInfo {
	bpm := 0.0
	if s.active.Load() {
		bpm = math.Float64frombits(s.bpmBits.Load())
	}
	return transport.RhythmInfo{
		DisplayName: s.name,
		BPM:         bpm,
		IsActive:    s.active.Load(),
		IsSynced:    false,
		SourceType:  "sampler",
	}
}

// Close implements module.Module.
func (s *Sampler) Close() error {
	s.l = nil
	s.r = nil
	return nil
}
