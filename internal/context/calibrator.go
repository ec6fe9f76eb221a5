package context

import "sync"

// TokenCalibrator learns the ratio between the estimated session total and
// the input token count the model actually reported. The ratio only feeds
// Stats; turn token counts never change.
type TokenCalibrator struct {
	mu         sync.Mutex
	samples    []calibrationSample
	ratio      float64 // estimated/actual
	maxSamples int
}

type calibrationSample struct {
	estimated int
	actual    int
}

// NewTokenCalibrator creates a calibrator keeping up to maxSamples samples
// (100 when maxSamples <= 0).
func NewTokenCalibrator(maxSamples int) *TokenCalibrator {
	if maxSamples <= 0 {
		maxSamples = 100
	}
	return &TokenCalibrator{
		ratio:      1.0,
		maxSamples: maxSamples,
	}
}

// Record adds a sample. Samples with a non-positive side are ignored.
func (c *TokenCalibrator) Record(estimated, actual int) {
	if actual <= 0 || estimated <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples = append(c.samples, calibrationSample{estimated: estimated, actual: actual})
	if len(c.samples) > c.maxSamples {
		c.samples = c.samples[len(c.samples)-c.maxSamples:]
	}

	var totalEstimated, totalActual int
	for _, s := range c.samples {
		totalEstimated += s.estimated
		totalActual += s.actual
	}
	c.ratio = float64(totalEstimated) / float64(totalActual)
}

// Adjust converts an estimate into the calibrated figure.
func (c *TokenCalibrator) Adjust(estimated int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.samples) == 0 || c.ratio <= 0 {
		return estimated
	}
	return int(float64(estimated) / c.ratio)
}

// Ratio returns the current learned ratio (estimated/actual)
func (c *TokenCalibrator) Ratio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ratio
}

// SampleCount returns how many samples are retained
func (c *TokenCalibrator) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}
