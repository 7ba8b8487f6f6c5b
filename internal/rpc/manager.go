package rpc

import (
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

// manager is the exported root object. It lists the registered device
// paths and fronts the search operations.
type manager struct {
	svc *Service

	mu        sync.Mutex
	props     *prop.Properties
	paths     []dbus.ObjectPath
	searching bool
}

func newManager(svc *Service) *manager {
	return &manager{svc: svc}
}

func (m *manager) export() error {
	conn := m.svc.conn
	if err := conn.Export(m, BasePath, ManagerIface); err != nil {
		return err
	}

	props, err := prop.Export(conn, BasePath, prop.Map{
		ManagerIface: {
			"Devices": {
				Value:    []dbus.ObjectPath{},
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"Searching": {
				Value:    false,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"JSONDataVersions": {
				Value:    JSONDataVersions,
				Writable: false,
				Emit:     prop.EmitConst,
			},
		},
	})
	if err != nil {
		return err
	}
	m.props = props

	node := &introspect.Node{
		Name: string(BasePath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:    ManagerIface,
				Methods: introspect.Methods(m),
				Properties: []introspect.Property{
					{Name: "Devices", Type: "ao", Access: "read"},
					{Name: "Searching", Type: "b", Access: "read"},
					{Name: "JSONDataVersions", Type: "au", Access: "read"},
				},
				Signals: []introspect.Signal{
					{Name: "UnregisteredDevice", Args: []introspect.Arg{{Name: "device", Type: "o", Direction: "out"}}},
					{Name: "SearchStopped", Args: []introspect.Arg{{Name: "status", Type: "i", Direction: "out"}}},
				},
			},
		},
	}
	return conn.Export(introspect.NewIntrospectable(node), BasePath, "org.freedesktop.DBus.Introspectable")
}

// StartSearch begins scanning for devices in registration mode.
func (m *manager) StartSearch(sender dbus.Sender) *dbus.Error {
	if err := m.svc.backend.StartSearch(string(sender)); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// StopSearch ends the caller's search.
func (m *manager) StopSearch(sender dbus.Sender) *dbus.Error {
	if err := m.svc.backend.StopSearch(string(sender)); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (m *manager) setSearching(on bool) {
	m.mu.Lock()
	changed := m.searching != on
	m.searching = on
	props := m.props
	m.mu.Unlock()
	if changed && props != nil {
		props.SetMust(ManagerIface, "Searching", on)
	}
}

func (m *manager) addPath(path dbus.ObjectPath) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.paths {
		if p == path {
			return
		}
	}
	m.paths = append(m.paths, path)
	m.publishPathsLocked()
}

func (m *manager) removePath(path dbus.ObjectPath) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.paths {
		if p == path {
			m.paths = append(m.paths[:i], m.paths[i+1:]...)
			m.publishPathsLocked()
			return
		}
	}
}

func (m *manager) publishPathsLocked() {
	if m.props == nil {
		return
	}
	paths := make([]dbus.ObjectPath, len(m.paths))
	copy(paths, m.paths)
	m.props.SetMust(ManagerIface, "Devices", paths)
}
