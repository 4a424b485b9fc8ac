package udisks

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Bus is the slice of the system bus the source uses.
type Bus interface {
	// ManagedObjects calls ObjectManager.GetManagedObjects on UDisks2.
	ManagedObjects(ctx context.Context) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error)
	// Properties returns all properties of iface on the object at path.
	Properties(ctx context.Context, path dbus.ObjectPath, iface string) (map[string]dbus.Variant, error)
	// InterfacesAdded subscribes to UDisks2 InterfacesAdded signals.
	InterfacesAdded() (<-chan *dbus.Signal, func(), error)
	Close() error
}

type systemBus struct {
	conn *dbus.Conn
}

// ConnectSystemBus opens a private connection to the system bus.
func ConnectSystemBus() (Bus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return &systemBus{conn: conn}, nil
}

func (b *systemBus) ManagedObjects(ctx context.Context) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := b.conn.Object(busName, rootPath).CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0)
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", err)
	}
	return objects, nil
}

func (b *systemBus) Properties(ctx context.Context, path dbus.ObjectPath, iface string) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	call := b.conn.Object(busName, path).CallWithContext(ctx, "org.freedesktop.DBus.Properties.GetAll", 0, iface)
	if err := call.Store(&props); err != nil {
		return nil, fmt.Errorf("get %s properties of %s: %w", iface, path, err)
	}
	return props, nil
}

func (b *systemBus) InterfacesAdded() (<-chan *dbus.Signal, func(), error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchSender(busName),
		dbus.WithMatchInterface(objectManagerIface),
		dbus.WithMatchMember("InterfacesAdded"),
	}
	if err := b.conn.AddMatchSignal(opts...); err != nil {
		return nil, nil, fmt.Errorf("subscribe to InterfacesAdded: %w", err)
	}
	ch := make(chan *dbus.Signal, 16)
	b.conn.Signal(ch)
	cancel := func() {
		b.conn.RemoveSignal(ch)
		_ = b.conn.RemoveMatchSignal(opts...)
	}
	return ch, cancel, nil
}

func (b *systemBus) Close() error {
	return b.conn.Close()
}
