//go:build !linux

package bluetooth

// NewAdapter returns an adapter that reports no Bluetooth hardware; headset
// routing is only implemented for BlueZ.
func NewAdapter() (Adapter, error) {
	return Absent("unsupported platform"), nil
}
