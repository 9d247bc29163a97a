// Package pitchtrack estimates the fundamental frequency of its input and
// emits it as a pitch CV alongside a confidence signal, so a patch can play
// an oscillator from a live instrument.
//
// The FFT runs on a worker goroutine. The render thread accumulates samples
// into one of two pre-allocated windows and hands a full window over without
// blocking; if analysis falls behind, incoming audio is dropped from the
// analysis (never from the patch) until a window frees up.
package pitchtrack

import (
	"fmt"
	"math"
	"math/cmplx"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/maddyblue/go-dsp/fft"

	"github.com/Cignor/Collider-sub010/internal/module"
	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the module type with the engine registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("pitchtrack", func() module.Module { return New() })
}

const inSignal = 0

const (
	outPitch = iota
	outConfidence
)

const pMinFreq = 0

const (
	minWindow     = 256
	maxWindow     = 8192
	defaultWindow = "2048"
)

// Tracker is the render-side half of the analyzer.
type Tracker struct {
	sampleRate float64

	fill  []float64
	fillN int
	jobs  chan []float64
	free  chan []float64
	done  chan struct{}
	wg    sync.WaitGroup

	minFreqBits atomic.Uint64
	pitchBits   atomic.Uint64
	confBits    atomic.Uint64
}

// New creates a Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Describe implements module.Module.
func (tr *Tracker) Describe(module.Config) module.Descriptor {
	return module.Descriptor{
		Inputs: []module.Pin{
			{Name: "in"},
		},
		Outputs: []module.Pin{
			{Name: "pitch"},
			{Name: "confidence"},
		},
		Params: []module.Param{
			{ID: "min_freq", Name: "Min Frequency", Min: 20, Max: 2000, Default: 50},
		},
		Options: []module.Option{
			{ID: "window", Default: defaultWindow},
		},
	}
}

// Prepare implements module.Module.
func (tr *Tracker) Prepare(info module.StreamInfo, cfg module.Config) error {
	n, err := strconv.Atoi(cfg.Option("window", defaultWindow))
	if err != nil {
		return fmt.Errorf("pitchtrack: window: %w", err)
	}
	if n < minWindow || n > maxWindow || n&(n-1) != 0 {
		return fmt.Errorf("pitchtrack: window %d is not a power of two in [%d, %d]", n, minWindow, maxWindow)
	}

	tr.sampleRate = info.SampleRate
	tr.jobs = make(chan []float64, 1)
	tr.free = make(chan []float64, 2)
	tr.free <- make([]float64, n)
	tr.free <- make([]float64, n)
	tr.done = make(chan struct{})
	tr.wg.Add(1)
	go tr.worker(n)
	return nil
}

func (tr *Tracker) worker(n int) {
	defer tr.wg.Done()

	windowed := make([]float64, n)
	hann := make([]float64, n)
	for i := range hann {
		hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}

	for {
		select {
		case <-tr.done:
			return
		case buf := <-tr.jobs:
			for i, v := range buf {
				windowed[i] = v * hann[i]
			}
			tr.free <- buf

			pitch, conf := analyze(windowed, tr.sampleRate, math.Float64frombits(tr.minFreqBits.Load()))
			tr.pitchBits.Store(math.Float64bits(pitch))
			tr.confBits.Store(math.Float64bits(conf))
		}
	}
}

// analyze picks the strongest spectral peak above minFreq and refines it with
// parabolic interpolation over the neighboring bins.
func analyze(windowed []float64, sampleRate, minFreq float64) (pitch, confidence float64) {
	n := len(windowed)
	spectrum := fft.FFTReal(windowed)

	half := n/2 + 1
	mags := make([]float64, half)
	var total float64
	for i := 0; i < half; i++ {
		mags[i] = cmplx.Abs(spectrum[i]) / float64(n)
		total += mags[i]
	}

	minBin := int(minFreq * float64(n) / sampleRate)
	if minBin < 1 {
		minBin = 1
	}
	peak := minBin
	for i := minBin; i < half-1; i++ {
		if mags[i] > mags[peak] {
			peak = i
		}
	}

	const floor = 1e-9
	if total < floor || mags[peak] < floor {
		return 0, 0
	}

	// Parabolic refinement; the true peak of a windowed sine sits between
	// bins.
	delta := 0.0
	if peak > 0 && peak < half-1 {
		denom := mags[peak-1] - 2*mags[peak] + mags[peak+1]
		if math.Abs(denom) > floor {
			delta = 0.5 * (mags[peak-1] - mags[peak+1]) / denom
		}
	}
	pitch = (float64(peak) + delta) * sampleRate / float64(n)

	lo := peak - 1
	if lo < 0 {
		lo = 0
	}
	hi := peak + 1
	if hi >= half {
		hi = half - 1
	}
	confidence = (mags[lo] + mags[peak] + mags[hi]) / total
	if confidence > 1 {
		confidence = 1
	}
	return pitch, confidence
}

// SetTimingInfo implements module.Module.
func (tr *Tracker) SetTimingInfo(transport.State) {}

// Process implements module.Module.
func (tr *Tracker) Process(pc *module.ProcessContext) {
	tr.minFreqBits.Store(math.Float64bits(pc.Param(pMinFreq)))

	if pc.InputConnected(inSignal) {
		in := pc.In[inSignal]
		for i := 0; i < pc.Frames; i++ {
			if tr.fill == nil {
				select {
				case tr.fill = <-tr.free:
					tr.fillN = 0
				default:
					// Analysis is behind; skip this stretch.
				}
				if tr.fill == nil {
					break
				}
			}
			tr.fill[tr.fillN] = float64(in[i])
			tr.fillN++
			if tr.fillN == len(tr.fill) {
				select {
				case tr.jobs <- tr.fill:
					tr.fill = nil
				default:
					tr.fillN = 0
				}
			}
		}
	}

	pitch := float32(math.Float64frombits(tr.pitchBits.Load()))
	conf := float32(math.Float64frombits(tr.confBits.Load()))
	pitchOut := pc.Out[outPitch]
	confOut := pc.Out[outConfidence]
	for i := 0; i < pc.Frames; i++ {
		pitchOut[i] = pitch
		confOut[i] = conf
	}
}

// Close implements module.Module.
func (tr *Tracker) Close() error {
	if tr.done != nil {
		close(tr.done)
		tr.wg.Wait()
	}
	return nil
}
