package bluetooth

import (
	"context"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezService = "org.bluez"
	ifaceAdapter = "org.bluez.Adapter1"
	ifaceDevice  = "org.bluez.Device1"
)

// managedObjects is the reply of ObjectManager.GetManagedObjects on org.bluez.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

func getManagedObjects(ctx context.Context, conn *dbus.Conn) (managedObjects, error) {
	root := conn.Object(bluezService, dbus.ObjectPath("/"))
	call := root.CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0)
	if call.Err != nil {
		return nil, call.Err
	}
	var managed managedObjects
	if err := call.Store(&managed); err != nil {
		return nil, err
	}
	return managed, nil
}

func adapterPath(adapterID string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + strings.TrimSpace(adapterID))
}

// adapterProps returns the Adapter1 properties of adapterID, or nil when BlueZ
// does not know it.
func (m managedObjects) adapterProps(adapterID string) map[string]dbus.Variant {
	ifaces, ok := m[adapterPath(adapterID)]
	if !ok {
		return nil
	}
	return ifaces[ifaceAdapter]
}

// adapters lists the adapter ids (hci0, hci1, ...) in name order.
func (m managedObjects) adapters() []string {
	var out []string
	for path, ifaces := range m {
		if _, ok := ifaces[ifaceAdapter]; !ok {
			continue
		}
		out = append(out, strings.TrimPrefix(string(path), "/org/bluez/"))
	}
	sort.Strings(out)
	return out
}

// deviceTxPowers collects Device1.TxPower for every device object under the
// adapter, keyed by upper-case address.
func (m managedObjects) deviceTxPowers(adapterID string) map[string]int {
	prefix := string(adapterPath(adapterID)) + "/dev_"
	out := map[string]int{}
	for path, ifaces := range m {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		dev, ok := ifaces[ifaceDevice]
		if !ok {
			continue
		}
		address, ok := getString(dev, "Address")
		if !ok || strings.TrimSpace(address) == "" {
			continue
		}
		if tx := getInt16AsIntPtr(dev, "TxPower"); tx != nil {
			out[strings.ToUpper(strings.TrimSpace(address))] = *tx
		}
	}
	return out
}

// setAdapterPowered sets Adapter1.Powered=true.
func setAdapterPowered(ctx context.Context, conn *dbus.Conn, adapterID string) error {
	obj := conn.Object(bluezService, adapterPath(adapterID))
	return obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Set", 0,
		ifaceAdapter, "Powered", dbus.MakeVariant(true)).Err
}

func getString(props map[string]dbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

func getBoolPtr(props map[string]dbus.Variant, key string) *bool {
	v, ok := props[key]
	if !ok {
		return nil
	}
	b, ok := v.Value().(bool)
	if !ok {
		return nil
	}
	return &b
}

func getInt16AsIntPtr(props map[string]dbus.Variant, key string) *int {
	v, ok := props[key]
	if !ok {
		return nil
	}
	var out int
	switch x := v.Value().(type) {
	case int16:
		out = int(x)
	case int32:
		out = int(x)
	case int:
		out = x
	default:
		return nil
	}
	return &out
}
