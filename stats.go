package vimba

import (
	"github.com/pkg/errors"
)

// FrameRate is a moving average filter over the intervals between device
// timestamps of consecutive frames, for displaying a smoothed frame rate.
type FrameRate struct {
	tickFrequency uint64

	index  int
	n      int
	sum    float64
	values []float64

	last    DataFrame
	started bool
	gaps    uint64
}

// NewFrameRate returns a new frame rate filter with a history of given size.
// TickFrequency is the number of device timestamp ticks per second.
func NewFrameRate(size int, tickFrequency uint64) (*FrameRate, error) {
	if size <= 0 {
		return nil, errors.Errorf("size must be > 0, got %d", size)
	}
	if tickFrequency == 0 {
		return nil, errors.Errorf("tick frequency must be > 0")
	}
	return &FrameRate{
		tickFrequency: tickFrequency,
		values:        make([]float64, size),
	}, nil
}

// Update adds a frame to the filter and returns the smoothed frames per
// second. Until two frames have been seen, Update returns 0. A timestamp
// that does not increase results in an error and leaves the filter
// unchanged.
func (fr *FrameRate) Update(df DataFrame) (float64, error) {
	if fr.values == nil {
		return 0, errors.Errorf("invalid FrameRate, use NewFrameRate")
	}
	if !fr.started {
		fr.started = true
		fr.last = df
		return 0, nil
	}
	if df.Timestamp <= fr.last.Timestamp {
		return 0, errors.Errorf("timestamp %d of frame %d not after %d", df.Timestamp, df.FrameID, fr.last.Timestamp)
	}
	if df.FrameID > fr.last.FrameID+1 {
		fr.gaps += df.FrameID - fr.last.FrameID - 1
	}

	interval := float64(df.Timestamp-fr.last.Timestamp) / float64(fr.tickFrequency)
	fr.last = df

	fr.sum -= fr.values[fr.index]
	fr.sum += interval
	fr.values[fr.index] = interval
	fr.index++
	if fr.index >= len(fr.values) {
		fr.index = 0
	}
	if fr.n < len(fr.values) {
		fr.n++
	}
	return float64(fr.n) / fr.sum, nil
}

// Dropped returns the number of frame IDs skipped between updates, e.g.
// frames the device dropped or that were not complete.
func (fr *FrameRate) Dropped() uint64 {
	return fr.gaps
}
