package bluetooth

import "errors"

var errUnsupported = errors.New("bluetooth: no adapter")

type noAdapter struct{ reason string }

// Absent is an adapter that reports no Bluetooth hardware. The route manager
// then never offers the BLUETOOTH device.
func Absent(reason string) Adapter {
	return noAdapter{reason: reason}
}

func (noAdapter) Present() bool                       { return false }
func (noAdapter) HasPermission() bool                 { return false }
func (a noAdapter) Describe() string                  { return "bluetooth adapter: " + a.reason }
func (noAdapter) Listen(Events) error                 { return errUnsupported }
func (noAdapter) Unlisten()                           {}
func (noAdapter) OpenProfile() error                  { return errUnsupported }
func (noAdapter) CloseProfile()                       {}
func (noAdapter) ConnectedHeadsets() []HeadsetDevice  { return nil }
func (noAdapter) IsAudioConnected(HeadsetDevice) bool { return false }
func (noAdapter) StartSCO() error                     { return errUnsupported }
func (noAdapter) StopSCO() error                      { return nil }
func (noAdapter) SetSCORouting(bool)                  {}
