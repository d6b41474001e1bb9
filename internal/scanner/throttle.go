package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// LoadSampler reports current host CPU and memory utilisation in percent.
type LoadSampler interface {
	Sample(ctx context.Context) (cpuPct, memPct float64, err error)
}

// HostSampler samples the local host through gopsutil.
type HostSampler struct {
	// Interval is the CPU measurement window.
	Interval time.Duration
}

func (h HostSampler) Sample(ctx context.Context) (float64, float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, h.Interval, false)
	if err != nil {
		return 0, 0, fmt.Errorf("sampling cpu: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("sampling memory: %w", err)
	}
	var c float64
	if len(pcts) > 0 {
		c = pcts[0]
	}
	return c, vm.UsedPercent, nil
}

// Throttle applies backpressure before inference calls when the host is
// saturated. A nil Throttle never pauses.
type Throttle struct {
	sampler   LoadSampler
	threshold float64
	pause     time.Duration
	onPause   func()
}

// NewThrottle returns a throttle that pauses for pause whenever CPU or
// memory use is above threshold percent.
func NewThrottle(s LoadSampler, threshold float64, pause time.Duration) *Throttle {
	return &Throttle{sampler: s, threshold: threshold, pause: pause}
}

// Wait samples host load once and sleeps when it is above the threshold.
// Sampling errors are logged and never block the caller.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.sampler == nil || t.threshold <= 0 {
		return nil
	}
	cpuPct, memPct, err := t.sampler.Sample(ctx)
	if err != nil {
		slog.Debug("Load sample failed", "error", err)
		return nil
	}
	if cpuPct <= t.threshold && memPct <= t.threshold {
		return nil
	}
	slog.Debug("Host saturated, pausing before inference", "cpu", cpuPct, "mem", memPct, "pause", t.pause)
	if t.onPause != nil {
		t.onPause()
	}
	timer := time.NewTimer(t.pause)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
