package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
)

// Report is one interval's worth of aggregated frame statistics.
type Report struct {
	FPS             float64
	Frames          int
	Drawn           int
	Skipped         int
	BindGroupBuilds int
	DroppedFrames   int
	HeapMB          float64
	AllocRateMB     float64
	GCCount         uint32
	LastPauseUs     uint64
	MaxPauseUs      uint64
	SysMB           float64
}

// Profiler aggregates renderer.FrameStats and memory statistics and logs them at info level
// once per interval.
type Profiler struct {
	frameCount      int
	drawn           int
	skipped         int
	bindGroupBuilds int
	dropped         int

	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	now  func() time.Time
	last Report
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options such as WithInterval
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		now:            time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Tick records one rendered frame.
//
// Parameters:
//   - stats: the statistics RenderFrame returned for the frame
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(stats renderer.FrameStats) bool {
	p.frameCount++
	p.add(stats)
	return p.flush()
}

// Drop records a frame that was skipped before anything was submitted, such as a frame lost to
// surface reconfiguration.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Drop() bool {
	p.dropped++
	return p.flush()
}

// Last returns the most recently logged report.
func (p *Profiler) Last() Report {
	return p.last
}

func (p *Profiler) add(stats renderer.FrameStats) {
	p.drawn += stats.Drawn
	p.skipped += stats.Skipped
	p.bindGroupBuilds += stats.BindGroupBuilds
}

func (p *Profiler) flush() bool {
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval || elapsed <= 0 {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	r := Report{
		FPS:             float64(p.frameCount) / elapsed.Seconds(),
		Frames:          p.frameCount,
		Drawn:           p.drawn,
		Skipped:         p.skipped,
		BindGroupBuilds: p.bindGroupBuilds,
		DroppedFrames:   p.dropped,
		HeapMB:          float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:           float64(p.memStats.Sys) / 1024 / 1024,
		AllocRateMB:     float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds(),
		GCCount:         p.memStats.NumGC,
	}

	// PauseNs is a circular buffer of the last 256 pauses
	if gcCount := r.GCCount; gcCount > 0 {
		r.LastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		start := p.lastGCCount
		if gcCount-start > 256 {
			start = gcCount - 256
		}
		for i := start; i < gcCount; i++ {
			r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	common.Logger().Info("frame stats",
		"fps", r.FPS,
		"frames", r.Frames,
		"drawn", r.Drawn,
		"skipped", r.Skipped,
		"bind_group_builds", r.BindGroupBuilds,
		"dropped", r.DroppedFrames,
		"heap_mb", r.HeapMB,
		"alloc_rate_mb", r.AllocRateMB,
		"gc", r.GCCount,
		"gc_last_us", r.LastPauseUs,
		"gc_max_us", r.MaxPauseUs,
		"sys_mb", r.SysMB,
	)

	p.last = r
	p.frameCount = 0
	p.drawn, p.skipped, p.bindGroupBuilds, p.dropped = 0, 0, 0, 0
	p.lastTime = currentTime
	p.lastGCCount = r.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
