// Package proximity reports whether something (usually a head) is close to
// the device, so calls can switch between earpiece and speaker.
package proximity

import (
	"fmt"

	"rtcaudio/log"
)

type Accuracy int

const (
	AccuracyNoContact Accuracy = iota - 1
	AccuracyUnreliable
	AccuracyLow
	AccuracyMedium
	AccuracyHigh
)

type Sensor interface {
	Name() string
	Vendor() string
	// MaximumRange is the largest distance the sensor reports, in cm.
	// Binary sensors report either 0 or MaximumRange.
	MaximumRange() float64
	Resolution() float64
}

type Sample struct {
	Distance float64
	Accuracy Accuracy
}

type Listener interface {
	OnSensorChanged(s Sample)
	OnAccuracyChanged(sensor Sensor, a Accuracy)
}

// SensorManager gives access to the hardware proximity sensor.
type SensorManager interface {
	// DefaultProximitySensor returns nil when the hardware has none.
	DefaultProximitySensor() Sensor
	Register(sensor Sensor, l Listener) error
	Unregister(sensor Sensor, l Listener)
}

// Scheduler runs a func on the owner's control thread.
type Scheduler interface {
	Post(fn func()) bool
}

// PostTo wraps sm so that listener callbacks are posted to s instead of
// running on the sensor's own goroutine.
func PostTo(s Scheduler, sm SensorManager) SensorManager {
	return &postingManager{SensorManager: sm, sched: s, wrapped: make(map[Listener]Listener)}
}

type postingManager struct {
	SensorManager
	sched   Scheduler
	wrapped map[Listener]Listener
}

func (p *postingManager) Register(sensor Sensor, l Listener) error {
	pl := &postingListener{sched: p.sched, l: l}
	if err := p.SensorManager.Register(sensor, pl); err != nil {
		return err
	}
	p.wrapped[l] = pl
	return nil
}

func (p *postingManager) Unregister(sensor Sensor, l Listener) {
	pl, ok := p.wrapped[l]
	if !ok {
		return
	}
	delete(p.wrapped, l)
	p.SensorManager.Unregister(sensor, pl)
}

type postingListener struct {
	sched Scheduler
	l     Listener
}

func (p *postingListener) OnSensorChanged(s Sample) {
	p.sched.Post(func() { p.l.OnSensorChanged(s) })
}

func (p *postingListener) OnAccuracyChanged(sensor Sensor, a Accuracy) {
	p.sched.Post(func() { p.l.OnAccuracyChanged(sensor, a) })
}

// Monitor tracks the NEAR/FAR state of the proximity sensor. All methods and
// callbacks must run on the owner's control thread.
type Monitor struct {
	sensors  SensorManager
	onChange func()

	sensor     Sensor
	lastNear   bool
	registered bool
}

func NewMonitor(sensors SensorManager, onChange func()) *Monitor {
	return &Monitor{sensors: sensors, onChange: onChange}
}

// Start registers for samples. It returns false when the device has no
// proximity sensor.
func (m *Monitor) Start() bool {
	if !m.initDefaultSensor() {
		return false
	}
	if m.registered {
		return true
	}
	if err := m.sensors.Register(m.sensor, m); err != nil {
		log.Warnf("proximity register: %v", err)
		return false
	}
	m.registered = true
	return true
}

func (m *Monitor) Stop() {
	if m.sensor == nil || !m.registered {
		return
	}
	m.sensors.Unregister(m.sensor, m)
	m.registered = false
}

func (m *Monitor) SensorReportsNearState() bool {
	return m.lastNear
}

func (m *Monitor) OnAccuracyChanged(_ Sensor, a Accuracy) {
	if a == AccuracyUnreliable {
		log.Warn("the values returned by this sensor cannot be trusted")
	}
}

func (m *Monitor) OnSensorChanged(s Sample) {
	// Binary sensors report 0 (near) or their maximum range (far).
	if s.Distance < m.sensor.MaximumRange() {
		log.Debug("proximity sensor => NEAR state")
		m.lastNear = true
	} else {
		log.Debug("proximity sensor => FAR state")
		m.lastNear = false
	}
	if m.onChange != nil {
		m.onChange()
	}
}

func (m *Monitor) initDefaultSensor() bool {
	if m.sensor != nil {
		return true
	}
	m.sensor = m.sensors.DefaultProximitySensor()
	if m.sensor == nil {
		return false
	}
	log.Info(describe(m.sensor))
	return true
}

func describe(s Sensor) string {
	return fmt.Sprintf("proximity sensor: name=%s, vendor=%s, resolution=%.1f, max range=%.1f",
		s.Name(), s.Vendor(), s.Resolution(), s.MaximumRange())
}
