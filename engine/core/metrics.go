package core

import (
	"sync"

	"github.com/joedavisdev/kiln/engine/containers"
)

const frameWindow int = 30

type MetricsState struct {
	frameTimes         *containers.RingQueue[float64]
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64
}

var onceMetrics sync.Once
var metricsState *MetricsState = nil

func MetricsInitialize() error {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{
			frameTimes: containers.NewRingQueue[float64](frameWindow),
		}
	})
	return nil
}

// MetricsUpdate records one frame's elapsed time (seconds) and refreshes
// the rolling frame-time average and the per-second FPS counter.
func MetricsUpdate(frameElapsedTime float64) {
	if metricsState == nil {
		return
	}
	frameMS := frameElapsedTime * 1000.0

	if metricsState.frameTimes.IsFull() {
		metricsState.frameTimes.Dequeue()
	}
	metricsState.frameTimes.Enqueue(frameMS)

	sum := 0.0
	metricsState.frameTimes.Range(func(ms float64) { sum += ms })
	metricsState.MSavg = sum / float64(metricsState.frameTimes.Len())

	metricsState.AccumulatedFrameMS += frameMS
	if metricsState.AccumulatedFrameMS > 1000 {
		metricsState.FPS = float64(metricsState.Frames)
		metricsState.AccumulatedFrameMS -= 1000
		metricsState.Frames = 0
	}

	metricsState.Frames++
}

func MetricsFPS() float64 {
	return metricsState.FPS
}

func MetricsFrameTime() float64 {
	return metricsState.MSavg
}

func MetricsFrame() (float64, float64) {
	return metricsState.FPS, metricsState.MSavg
}
