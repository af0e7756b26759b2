// Package wpa implements the wifi.Network capability on top of the
// wpa_supplicant D-Bus control interface.
package wpa

import (
	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

const (
	SupplicantService   = "fi.w1.wpa_supplicant1"
	SupplicantPath      = "/fi/w1/wpa_supplicant1"
	SupplicantInterface = "fi.w1.wpa_supplicant1"

	InterfaceInterface = "fi.w1.wpa_supplicant1.Interface"

	DBusPropertiesInterface = "org.freedesktop.DBus.Properties"

	// State property value once association and key negotiation are done.
	stateCompleted = "completed"
)

// Supplicant drives one managed WiFi interface.
type Supplicant struct {
	conn        *dbus.Conn
	ifacePath   dbus.ObjectPath
	networkPath dbus.ObjectPath
	ssid        string
	psk         string
	logger      func(string, ...interface{})
}

// New connects to the system bus and resolves the wpa_supplicant object for
// ifname. The interface must already be managed by wpa_supplicant.
func New(ifname, ssid, psk string, logger func(string, ...interface{})) (*Supplicant, error) {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to system bus")
	}

	obj := conn.Object(SupplicantService, SupplicantPath)

	var ifacePath dbus.ObjectPath
	err = obj.Call(SupplicantInterface+".GetInterface", 0, ifname).Store(&ifacePath)
	if err != nil {
		return nil, errors.Wrapf(err, "wpa_supplicant does not manage %s", ifname)
	}

	logger("[WPA] using interface %s (%s)", ifname, ifacePath)

	return &Supplicant{
		conn:      conn,
		ifacePath: ifacePath,
		ssid:      ssid,
		psk:       psk,
		logger:    logger,
	}, nil
}

// Connect registers the configured network (once) and selects it, starting
// an association attempt. It returns before the link is up; poll
// IsConnected for the result.
func (s *Supplicant) Connect() error {
	obj := s.conn.Object(SupplicantService, s.ifacePath)

	if s.networkPath == "" {
		props := map[string]interface{}{
			"ssid": s.ssid,
			"psk":  s.psk,
		}
		err := obj.Call(InterfaceInterface+".AddNetwork", 0, props).Store(&s.networkPath)
		if err != nil {
			return errors.Wrapf(err, "failed to add network %q", s.ssid)
		}
		s.logger("[WPA] network %q registered (%s)", s.ssid, s.networkPath)
	}

	call := obj.Call(InterfaceInterface+".SelectNetwork", 0, s.networkPath)
	if call.Err != nil {
		return errors.Wrap(call.Err, "failed to select network")
	}
	return nil
}

// Disconnect tears the association down.
func (s *Supplicant) Disconnect() error {
	obj := s.conn.Object(SupplicantService, s.ifacePath)
	call := obj.Call(InterfaceInterface+".Disconnect", 0)
	if call.Err != nil {
		return errors.Wrap(call.Err, "failed to disconnect")
	}
	return nil
}

// IsConnected reports whether the supplicant state is "completed".
func (s *Supplicant) IsConnected() bool {
	state, err := s.getProperty("State")
	if err != nil {
		s.logger("[WPA] failed to read state: %v", err)
		return false
	}
	str, ok := state.Value().(string)
	return ok && str == stateCompleted
}

// SignalStrength returns the current RSSI in dBm from SignalPoll, or -127
// when it cannot be read.
func (s *Supplicant) SignalStrength() int {
	obj := s.conn.Object(SupplicantService, s.ifacePath)

	var poll map[string]dbus.Variant
	err := obj.Call(InterfaceInterface+".SignalPoll", 0).Store(&poll)
	if err != nil {
		return -127
	}

	rssi, ok := poll["rssi"]
	if !ok {
		return -127
	}
	if v, ok := rssi.Value().(int32); ok {
		return int(v)
	}
	return -127
}

// Close closes the bus connection.
func (s *Supplicant) Close() error {
	return s.conn.Close()
}

func (s *Supplicant) getProperty(property string) (dbus.Variant, error) {
	obj := s.conn.Object(SupplicantService, s.ifacePath)

	var value dbus.Variant
	err := obj.Call(DBusPropertiesInterface+".Get", 0, InterfaceInterface, property).Store(&value)
	if err != nil {
		return value, errors.Wrapf(err, "failed to get property %s", property)
	}
	return value, nil
}
