package proximity

import "sync"

type FakeSensor struct {
	MaxRange float64
}

func (s *FakeSensor) Name() string          { return "fake proximity" }
func (s *FakeSensor) Vendor() string        { return "rtcaudio" }
func (s *FakeSensor) MaximumRange() float64 { return s.MaxRange }
func (s *FakeSensor) Resolution() float64   { return 1 }

// FakeSensorManager lets tests emit proximity samples. A nil Sensor models
// hardware without a proximity sensor.
type FakeSensorManager struct {
	Sensor      *FakeSensor
	RegisterErr error

	mu        sync.Mutex
	listeners []Listener
}

func NewFakeSensorManager(maxRange float64) *FakeSensorManager {
	return &FakeSensorManager{Sensor: &FakeSensor{MaxRange: maxRange}}
}

func (f *FakeSensorManager) DefaultProximitySensor() Sensor {
	if f.Sensor == nil {
		return nil
	}
	return f.Sensor
}

func (f *FakeSensorManager) Register(_ Sensor, l Listener) error {
	if f.RegisterErr != nil {
		return f.RegisterErr
	}
	f.mu.Lock()
	f.listeners = append(f.listeners, l)
	f.mu.Unlock()
	return nil
}

func (f *FakeSensorManager) Unregister(_ Sensor, l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, x := range f.listeners {
		if x == l {
			f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
			return
		}
	}
}

func (f *FakeSensorManager) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// Emit delivers one sample to every registered listener.
func (f *FakeSensorManager) Emit(distance float64) {
	for _, l := range f.snapshot() {
		l.OnSensorChanged(Sample{Distance: distance, Accuracy: AccuracyHigh})
	}
}

func (f *FakeSensorManager) Near() { f.Emit(0) }

func (f *FakeSensorManager) Far() {
	if f.Sensor != nil {
		f.Emit(f.Sensor.MaxRange)
	}
}

func (f *FakeSensorManager) EmitAccuracy(a Accuracy) {
	for _, l := range f.snapshot() {
		l.OnAccuracyChanged(f.Sensor, a)
	}
}

func (f *FakeSensorManager) snapshot() []Listener {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Listener(nil), f.listeners...)
}
