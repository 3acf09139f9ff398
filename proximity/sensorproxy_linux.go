//go:build linux

package proximity

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"rtcaudio/log"
)

const (
	proxyService   = "net.hadess.SensorProxy"
	proxyPath      = dbus.ObjectPath("/net/hadess/SensorProxy")
	proxyInterface = "net.hadess.SensorProxy"
	propsInterface = "org.freedesktop.DBus.Properties"

	// iio-sensor-proxy only reports a boolean; map it to a binary sensor.
	proxyMaxRange = 5.0
)

type proxySensor struct{}

func (proxySensor) Name() string          { return "iio-sensor-proxy proximity" }
func (proxySensor) Vendor() string        { return proxyService }
func (proxySensor) MaximumRange() float64 { return proxyMaxRange }
func (proxySensor) Resolution() float64   { return proxyMaxRange }

// sensorProxy reads the proximity sensor through iio-sensor-proxy on the
// system bus.
type sensorProxy struct {
	conn *dbus.Conn
	obj  dbus.BusObject

	mu        sync.Mutex
	listeners map[Listener]chan struct{}
}

func NewSensorManager() (SensorManager, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}
	return &sensorProxy{
		conn:      conn,
		obj:       conn.Object(proxyService, proxyPath),
		listeners: make(map[Listener]chan struct{}),
	}, nil
}

func (p *sensorProxy) DefaultProximitySensor() Sensor {
	v, err := p.obj.GetProperty(proxyInterface + ".HasProximity")
	if err != nil {
		log.Debugf("iio-sensor-proxy: %v", err)
		return nil
	}
	if has, ok := v.Value().(bool); !ok || !has {
		return nil
	}
	return proxySensor{}
}

func (p *sensorProxy) Register(_ Sensor, l Listener) error {
	if err := p.obj.Call(proxyInterface+".ClaimProximity", 0).Err; err != nil {
		return fmt.Errorf("claim proximity: %w", err)
	}
	if err := p.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(proxyPath),
		dbus.WithMatchInterface(propsInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		p.obj.Call(proxyInterface+".ReleaseProximity", 0)
		return fmt.Errorf("match signal: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	p.conn.Signal(signals)
	stop := make(chan struct{})

	p.mu.Lock()
	p.listeners[l] = stop
	p.mu.Unlock()

	if near, err := p.near(); err == nil {
		l.OnSensorChanged(p.sample(near))
	}

	go func() {
		defer p.conn.RemoveSignal(signals)
		for {
			select {
			case <-stop:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if near, changed := proximityChange(sig); changed {
					l.OnSensorChanged(p.sample(near))
				}
			}
		}
	}()
	return nil
}

func (p *sensorProxy) Unregister(_ Sensor, l Listener) {
	p.mu.Lock()
	stop, ok := p.listeners[l]
	delete(p.listeners, l)
	p.mu.Unlock()
	if !ok {
		return
	}
	close(stop)
	p.conn.RemoveMatchSignal(
		dbus.WithMatchObjectPath(proxyPath),
		dbus.WithMatchInterface(propsInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	)
	if err := p.obj.Call(proxyInterface+".ReleaseProximity", 0).Err; err != nil {
		log.Warnf("release proximity: %v", err)
	}
}

func (p *sensorProxy) near() (bool, error) {
	v, err := p.obj.GetProperty(proxyInterface + ".ProximityNear")
	if err != nil {
		return false, err
	}
	near, _ := v.Value().(bool)
	return near, nil
}

func (p *sensorProxy) sample(near bool) Sample {
	if near {
		return Sample{Distance: 0, Accuracy: AccuracyHigh}
	}
	return Sample{Distance: proxyMaxRange, Accuracy: AccuracyHigh}
}

func proximityChange(sig *dbus.Signal) (near, changed bool) {
	if sig.Path != proxyPath || len(sig.Body) < 2 {
		return false, false
	}
	if iface, _ := sig.Body[0].(string); iface != proxyInterface {
		return false, false
	}
	props, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return false, false
	}
	v, ok := props["ProximityNear"]
	if !ok {
		return false, false
	}
	near, ok = v.Value().(bool)
	return near, ok
}

func (p *sensorProxy) Close() {
	p.conn.Close()
}
