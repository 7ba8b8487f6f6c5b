package rpc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/tuhiproject/tuhi/internal/wire"
)

// Bus identity of the daemon.
const (
	BusName      = "org.freedesktop.tuhi1"
	BasePath     = dbus.ObjectPath("/org/freedesktop/tuhi1")
	ManagerIface = "org.freedesktop.tuhi1.Manager"
	DeviceIface  = "org.freedesktop.tuhi1.Device"
)

// JSONDataVersions lists the drawing file versions GetJSONData can
// produce.
var JSONDataVersions = []uint32{1}

// DeviceState is the published snapshot of one registered device.
type DeviceState struct {
	Address           string
	Name              string
	Dimensions        [2]uint32
	BatteryPercent    uint32
	BatteryState      uint32
	DrawingsAvailable []uint64
	Listening         bool
	Live              bool
}

// Backend executes bus requests. Methods that act on behalf of one
// client receive the bus name of the caller, so the daemon can undo
// that client's listens and searches when it drops off the bus.
type Backend interface {
	StartSearch(sender string) error
	StopSearch(sender string) error
	Register(address string) error
	StartListening(sender, address string) error
	StopListening(sender, address string) error
	StartLive(sender, address string, fd int) error
	StopLive(sender, address string) error
	GetJSONData(address string, version uint32, timestamp uint64) (string, error)
	ClientGone(sender string)
}

// Service owns the bus connection and the exported object tree.
type Service struct {
	conn    *dbus.Conn
	backend Backend
	log     zerolog.Logger

	manager *manager
	devices *deviceTree
}

// Listen claims the bus name and exports the manager. Devices are
// added afterwards from registry snapshots.
func Listen(backend Backend, log zerolog.Logger) (*Service, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	s, err := listenOn(conn, backend, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func listenOn(conn *dbus.Conn, backend Backend, log zerolog.Logger) (*Service, error) {
	s := &Service{
		conn:    conn,
		backend: backend,
		log:     log.With().Str("component", "dbus").Logger(),
	}
	s.manager = newManager(s)
	s.devices = newDeviceTree(s)

	if err := s.manager.export(); err != nil {
		return nil, err
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("requesting bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("bus name %s already taken", BusName)
	}

	if err := s.watchClients(); err != nil {
		return nil, err
	}
	s.log.Info().Str("name", BusName).Msg("bus name claimed")
	return s, nil
}

// Close releases the bus connection.
func (s *Service) Close() error {
	return s.conn.Close()
}

// watchClients turns a client dropping off the bus into an implicit
// stop of everything it owned.
func (s *Service) watchClients() error {
	if err := s.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		return fmt.Errorf("watching bus clients: %w", err)
	}
	ch := make(chan *dbus.Signal, 16)
	s.conn.Signal(ch)
	go func() {
		for sig := range ch {
			if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" || len(sig.Body) != 3 {
				continue
			}
			name, _ := sig.Body[0].(string)
			oldOwner, _ := sig.Body[1].(string)
			newOwner, _ := sig.Body[2].(string)
			if strings.HasPrefix(name, ":") && oldOwner != "" && newOwner == "" {
				s.log.Debug().Str("client", name).Msg("client left the bus")
				s.backend.ClientGone(name)
			}
		}
	}()
	return nil
}

// AddDevice exports one device object and publishes it on the manager.
func (s *Service) AddDevice(state DeviceState) error {
	return s.devices.add(state)
}

// RemoveDevice withdraws a device object.
func (s *Service) RemoveDevice(address string) {
	s.devices.remove(address)
}

// UpdateDevice publishes a fresh snapshot, emitting PropertiesChanged
// for the fields that moved.
func (s *Service) UpdateDevice(state DeviceState) {
	s.devices.update(state)
}

// SetSearching publishes the manager's search state.
func (s *Service) SetSearching(on bool) {
	s.manager.setSearching(on)
}

// EmitUnregisteredDevice announces a device seen in registration mode.
func (s *Service) EmitUnregisteredDevice(address string) {
	s.emit(BasePath, ManagerIface+".UnregisteredDevice", devicePath(address))
}

// EmitSearchStopped announces the end of a search.
func (s *Service) EmitSearchStopped(status int32) {
	s.emit(BasePath, ManagerIface+".SearchStopped", status)
}

// EmitButtonPressRequired asks the user to confirm a registration on
// the tablet.
func (s *Service) EmitButtonPressRequired(address string) {
	s.emit(devicePath(address), DeviceIface+".ButtonPressRequired")
}

// EmitListeningStopped announces the end of a listen, 0 or -errno.
func (s *Service) EmitListeningStopped(address string, status int32) {
	s.emit(devicePath(address), DeviceIface+".ListeningStopped", status)
}

// EmitLiveStopped announces the end of live mode, 0 or -errno.
func (s *Service) EmitLiveStopped(address string, status int32) {
	s.emit(devicePath(address), DeviceIface+".LiveStopped", status)
}

// EmitSyncState announces transfer activity: 1 while syncing, 0 idle.
func (s *Service) EmitSyncState(address string, state int32) {
	s.emit(devicePath(address), DeviceIface+".SyncState", state)
}

func (s *Service) emit(path dbus.ObjectPath, name string, values ...any) {
	if err := s.conn.Emit(path, name, values...); err != nil {
		s.log.Warn().Err(err).Str("signal", name).Msg("emitting signal")
	}
}

// devicePath maps a device address onto the object tree.
func devicePath(address string) dbus.ObjectPath {
	clean := strings.NewReplacer(":", "_", "-", "_").Replace(address)
	return BasePath + dbus.ObjectPath("/"+clean)
}

// errnoStatus folds an operation result into the bus return
// convention: 0 on success, negative errno otherwise.
func errnoStatus(err error) int32 {
	if err == nil {
		return 0
	}
	var werr *wire.Error
	if errors.As(err, &werr) {
		return -int32(werr.Kind.Errno())
	}
	return -int32(unix.EIO)
}
