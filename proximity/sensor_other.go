//go:build !linux

package proximity

// NewSensorManager returns a manager without a proximity sensor; desktop
// platforms other than linux expose none.
func NewSensorManager() (SensorManager, error) {
	return None(), nil
}
