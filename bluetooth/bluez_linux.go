//go:build linux

package bluetooth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"rtcaudio/log"
)

const (
	bluezService     = "org.bluez"
	adapterInterface = "org.bluez.Adapter1"
	deviceInterface  = "org.bluez.Device1"
	transportIface   = "org.bluez.MediaTransport1"
	propsIface       = "org.freedesktop.DBus.Properties"
	objManagerIface  = "org.freedesktop.DBus.ObjectManager"

	hfpUUID = "0000111e-0000-1000-8000-00805f9b34fb"
	hspUUID = "00001108-0000-1000-8000-00805f9b34fb"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// bluezAdapter talks to BlueZ over the system bus. The headset profile is the
// HFP/HSP connection of a paired device; the SCO link is its media transport.
type bluezAdapter struct {
	conn *dbus.Conn

	mu      sync.Mutex
	events  Events
	signals chan *dbus.Signal
	done    chan struct{}
	paths   map[string]dbus.ObjectPath
}

func NewAdapter() (Adapter, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}
	return &bluezAdapter{conn: conn, paths: make(map[string]dbus.ObjectPath)}, nil
}

func (b *bluezAdapter) objects() (managedObjects, error) {
	var objs managedObjects
	err := b.conn.Object(bluezService, "/").Call(objManagerIface+".GetManagedObjects", 0).Store(&objs)
	return objs, err
}

func (b *bluezAdapter) adapterPath() (dbus.ObjectPath, map[string]dbus.Variant, bool) {
	objs, err := b.objects()
	if err != nil {
		return "", nil, false
	}
	for path, ifaces := range objs {
		if props, ok := ifaces[adapterInterface]; ok {
			return path, props, true
		}
	}
	return "", nil, false
}

func (b *bluezAdapter) Present() bool {
	_, _, ok := b.adapterPath()
	return ok
}

func (b *bluezAdapter) HasPermission() bool {
	_, err := b.objects()
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) && dbusErr.Name == "org.freedesktop.DBus.Error.AccessDenied" {
		return false
	}
	return err == nil
}

func (b *bluezAdapter) Describe() string {
	path, props, ok := b.adapterPath()
	if !ok {
		return "bluetooth adapter: none"
	}
	return fmt.Sprintf("bluetooth adapter: path=%s name=%v address=%v powered=%v",
		path, props["Alias"].Value(), props["Address"].Value(), props["Powered"].Value())
}

func (b *bluezAdapter) Listen(ev Events) error {
	if err := b.conn.AddMatchSignal(
		dbus.WithMatchSender(bluezService),
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("match properties: %w", err)
	}
	if err := b.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, bluezService),
	); err != nil {
		return fmt.Errorf("match owner: %w", err)
	}

	signals := make(chan *dbus.Signal, 32)
	done := make(chan struct{})
	b.conn.Signal(signals)

	b.mu.Lock()
	b.events = ev
	b.signals = signals
	b.done = done
	b.mu.Unlock()

	b.replaySticky(ev)
	go b.dispatch(ev, signals, done)
	return nil
}

// replaySticky reports the current headset and audio state the way a newly
// registered receiver would see it.
func (b *bluezAdapter) replaySticky(ev Events) {
	for _, dev := range b.ConnectedHeadsets() {
		ev.HeadsetConnectionChanged(dev, Connected, true)
		st := AudioDisconnected
		if b.IsAudioConnected(dev) {
			st = AudioConnected
		}
		ev.HeadsetAudioChanged(dev, st, true)
	}
}

func (b *bluezAdapter) dispatch(ev Events, signals chan *dbus.Signal, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			b.handleSignal(ev, sig)
		}
	}
}

func (b *bluezAdapter) handleSignal(ev Events, sig *dbus.Signal) {
	if sig.Name == "org.freedesktop.DBus.NameOwnerChanged" {
		if len(sig.Body) == 3 {
			if newOwner, _ := sig.Body[2].(string); newOwner == "" {
				ev.ProfileDisconnected()
			}
		}
		return
	}
	if len(sig.Body) < 2 {
		return
	}
	iface, _ := sig.Body[0].(string)
	changed, _ := sig.Body[1].(map[string]dbus.Variant)

	switch iface {
	case deviceInterface:
		v, ok := changed["Connected"]
		if !ok {
			return
		}
		dev, ok := b.device(sig.Path)
		if !ok {
			return
		}
		if connected, _ := v.Value().(bool); connected {
			ev.HeadsetConnectionChanged(dev, Connected, false)
		} else {
			ev.HeadsetConnectionChanged(dev, Disconnected, false)
		}
	case transportIface:
		v, ok := changed["State"]
		if !ok {
			return
		}
		dev, ok := b.deviceForTransport(sig.Path)
		if !ok {
			return
		}
		switch state, _ := v.Value().(string); state {
		case "active":
			ev.HeadsetAudioChanged(dev, AudioConnected, false)
		case "pending":
			ev.HeadsetAudioChanged(dev, AudioConnecting, false)
		case "idle":
			ev.HeadsetAudioChanged(dev, AudioDisconnected, false)
		}
	}
}

func (b *bluezAdapter) device(path dbus.ObjectPath) (HeadsetDevice, bool) {
	objs, err := b.objects()
	if err != nil {
		return HeadsetDevice{}, false
	}
	props, ok := objs[path][deviceInterface]
	if !ok || !isHeadset(props) {
		return HeadsetDevice{}, false
	}
	return b.remember(path, props), true
}

func (b *bluezAdapter) deviceForTransport(path dbus.ObjectPath) (HeadsetDevice, bool) {
	objs, err := b.objects()
	if err != nil {
		return HeadsetDevice{}, false
	}
	for devPath, ifaces := range objs {
		props, ok := ifaces[deviceInterface]
		if ok && strings.HasPrefix(string(path), string(devPath)+"/") {
			return b.remember(devPath, props), true
		}
	}
	return HeadsetDevice{}, false
}

func (b *bluezAdapter) remember(path dbus.ObjectPath, props map[string]dbus.Variant) HeadsetDevice {
	addr, _ := props["Address"].Value().(string)
	name, _ := props["Alias"].Value().(string)
	b.mu.Lock()
	b.paths[addr] = path
	b.mu.Unlock()
	return HeadsetDevice{Address: addr, Name: name}
}

func isHeadset(props map[string]dbus.Variant) bool {
	uuids, _ := props["UUIDs"].Value().([]string)
	for _, u := range uuids {
		if u == hfpUUID || u == hspUUID {
			return true
		}
	}
	return false
}

func (b *bluezAdapter) Unlisten() {
	b.mu.Lock()
	signals, done := b.signals, b.done
	b.events, b.signals, b.done = nil, nil, nil
	b.mu.Unlock()
	if signals == nil {
		return
	}
	close(done)
	b.conn.RemoveSignal(signals)
	b.conn.RemoveMatchSignal(
		dbus.WithMatchSender(bluezService),
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	)
	b.conn.RemoveMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, bluezService),
	)
}

// OpenProfile has nothing to bind on BlueZ; the profile is ready as soon as
// the daemon answers.
func (b *bluezAdapter) OpenProfile() error {
	if _, err := b.objects(); err != nil {
		return fmt.Errorf("bluez: %w", err)
	}
	b.mu.Lock()
	ev := b.events
	b.mu.Unlock()
	if ev != nil {
		go ev.ProfileConnected()
	}
	return nil
}

func (b *bluezAdapter) CloseProfile() {}

func (b *bluezAdapter) ConnectedHeadsets() []HeadsetDevice {
	objs, err := b.objects()
	if err != nil {
		log.Debugf("bluez objects: %v", err)
		return nil
	}
	var out []HeadsetDevice
	for path, ifaces := range objs {
		props, ok := ifaces[deviceInterface]
		if !ok || !isHeadset(props) {
			continue
		}
		if connected, _ := props["Connected"].Value().(bool); !connected {
			continue
		}
		out = append(out, b.remember(path, props))
	}
	return out
}

func (b *bluezAdapter) IsAudioConnected(dev HeadsetDevice) bool {
	b.mu.Lock()
	devPath, ok := b.paths[dev.Address]
	b.mu.Unlock()
	if !ok {
		return false
	}
	objs, err := b.objects()
	if err != nil {
		return false
	}
	for path, ifaces := range objs {
		props, ok := ifaces[transportIface]
		if !ok || !strings.HasPrefix(string(path), string(devPath)+"/") {
			continue
		}
		if state, _ := props["State"].Value().(string); state == "active" {
			return true
		}
	}
	return false
}

func (b *bluezAdapter) headsetPath() (dbus.ObjectPath, error) {
	devices := b.ConnectedHeadsets()
	if len(devices) == 0 {
		return "", errors.New("no connected headset")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paths[devices[0].Address], nil
}

// StartSCO connects the hands-free profile; the voice transport follows
// asynchronously.
func (b *bluezAdapter) StartSCO() error {
	path, err := b.headsetPath()
	if err != nil {
		return err
	}
	obj := b.conn.Object(bluezService, path)
	go func() {
		if err := obj.Call(deviceInterface+".ConnectProfile", 0, hfpUUID).Err; err != nil {
			log.Warnf("bluez connect HFP: %v", err)
		}
	}()
	return nil
}

func (b *bluezAdapter) StopSCO() error {
	path, err := b.headsetPath()
	if err != nil {
		return err
	}
	obj := b.conn.Object(bluezService, path)
	go func() {
		if err := obj.Call(deviceInterface+".DisconnectProfile", 0, hfpUUID).Err; err != nil {
			log.Warnf("bluez disconnect HFP: %v", err)
		}
	}()
	return nil
}

// SetSCORouting is handled by the sound server once the transport is active.
func (b *bluezAdapter) SetSCORouting(on bool) {
	log.Debugf("bluez: SCO routing %v", on)
}

func (b *bluezAdapter) Close() {
	b.Unlisten()
	b.conn.Close()
}
