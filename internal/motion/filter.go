// Package motion turns raw gyroscope samples from the handheld into relative
// pointer deltas.
//
// The pipeline, in order: calibration offset, dead zone, sensitivity scale,
// optional Y inversion, exponential smoothing, rounding. Rounding is half-up
// (floor(v+0.5)), so 0.5 becomes 1 and -0.5 becomes 0.
// The unrounded smoothed value is kept in State and used as the base for the
// next sample, so sub-pixel motion accumulates instead of being lost.
package motion

import (
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidSensitivity is returned when sensitivity is not strictly positive
	ErrInvalidSensitivity = errors.New("motion: sensitivity must be > 0")

	// ErrInvalidSmoothing is returned when smoothing is outside [0,1]
	ErrInvalidSmoothing = errors.New("motion: smoothing must be between 0 and 1")

	// ErrInvalidDeadZone is returned when the dead zone is negative
	ErrInvalidDeadZone = errors.New("motion: dead zone must be >= 0")
)

// Sample is one orientation reading from the handheld.
type Sample struct {
	GyroX      float64 `json:"gyroX"`
	GyroY      float64 `json:"gyroY"`
	LeftClick  bool    `json:"leftClick"`
	RightClick bool    `json:"rightClick"`
}

// State is the smoothing memory carried between samples.
type State struct {
	LastDx float64
	LastDy float64
}

// Config holds the filter tunables. Build it with NewConfig so invalid values
// are rejected up front; Apply never validates.
type Config struct {
	Sensitivity float64 // pixels per gyro unit
	Smoothing   float64 // 1 tracks input exactly, 0 never moves off the prior state
	DeadZone    float64
	CalibX      float64
	CalibY      float64
	InvertY     bool
}

// DefaultConfig returns the tuning the desktop app ships with.
func DefaultConfig() Config {
	return Config{
		Sensitivity: 10.0,
		Smoothing:   0.20,
		DeadZone:    0.02,
		InvertY:     true,
	}
}

// NewConfig validates the parameters and returns a Config.
func NewConfig(sensitivity, smoothing, deadZone, calibX, calibY float64, invertY bool) (Config, error) {
	cfg := Config{
		Sensitivity: sensitivity,
		Smoothing:   smoothing,
		DeadZone:    deadZone,
		CalibX:      calibX,
		CalibY:      calibY,
		InvertY:     invertY,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	switch {
	case !(c.Sensitivity > 0) || math.IsInf(c.Sensitivity, 0):
		return errors.Wrapf(ErrInvalidSensitivity, "got %v", c.Sensitivity)
	case !(c.Smoothing >= 0 && c.Smoothing <= 1):
		return errors.Wrapf(ErrInvalidSmoothing, "got %v", c.Smoothing)
	case !(c.DeadZone >= 0) || math.IsInf(c.DeadZone, 0):
		return errors.Wrapf(ErrInvalidDeadZone, "got %v", c.DeadZone)
	}
	return nil
}

// Raw returns the pre-smoothing delta for a sample: calibrated, dead-zoned,
// scaled and optionally Y-inverted.
func Raw(s Sample, cfg Config) (rawDx, rawDy float64) {
	gx := s.GyroX - cfg.CalibX
	gy := s.GyroY - cfg.CalibY

	if math.Abs(gx) < cfg.DeadZone {
		gx = 0
	}
	if math.Abs(gy) < cfg.DeadZone {
		gy = 0
	}

	rawDx = gx * cfg.Sensitivity
	rawDy = gy * cfg.Sensitivity
	if cfg.InvertY {
		rawDy = -rawDy
	}
	return rawDx, rawDy
}

// Apply runs one sample through the filter. It is pure: the same inputs always
// produce the same outputs.
func Apply(s Sample, cfg Config, st State) (dx, dy int, next State) {
	rawDx, rawDy := Raw(s, cfg)

	a := cfg.Smoothing
	next.LastDx = st.LastDx*(1-a) + rawDx*a
	next.LastDy = st.LastDy*(1-a) + rawDy*a

	return roundHalfUp(next.LastDx), roundHalfUp(next.LastDy), next
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
