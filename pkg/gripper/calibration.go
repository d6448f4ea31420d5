package gripper

import (
	"encoding/json"
	"fmt"
	"os"
)

// MotorCalibration maps the raw position range of a servo to [-100, 100].
type MotorCalibration struct {
	ID       int `json:"id"`
	RangeMin int `json:"range_min"`
	RangeMax int `json:"range_max"`
}

// LoadCalibration loads a servo calibration from a JSON file.
func LoadCalibration(path string) (MotorCalibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MotorCalibration{}, fmt.Errorf("read calibration file: %w", err)
	}
	var cal MotorCalibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return MotorCalibration{}, fmt.Errorf("parse calibration JSON: %w", err)
	}
	return cal, nil
}

// Save writes the calibration to path.
func (c MotorCalibration) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Normalize converts a raw servo position to a normalized value in the range [-100, 100].
func (c MotorCalibration) Normalize(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	return (float64(raw-c.RangeMin)/rangeSize)*200 - 100
}

// Denormalize converts a normalized value [-100, 100] to a raw servo position.
func (c MotorCalibration) Denormalize(norm float64) int {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int((norm+100)/200*rangeSize) + c.RangeMin
}

// Valid reports whether the range has been recorded.
func (c MotorCalibration) Valid() bool {
	return c.RangeMax > c.RangeMin
}
