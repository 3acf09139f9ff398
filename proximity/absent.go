package proximity

type noSensors struct{}

// None is a manager without a proximity sensor.
func None() SensorManager { return noSensors{} }

func (noSensors) DefaultProximitySensor() Sensor  { return nil }
func (noSensors) Register(Sensor, Listener) error { return nil }
func (noSensors) Unregister(Sensor, Listener)     {}
