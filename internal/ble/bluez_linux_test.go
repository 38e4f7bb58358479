//go:build linux

package ble

import (
	"context"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/config"
)

var _ Adapter = (*BlueZ)(nil)

func TestNewBlueZ(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.BluetoothConfig
		wantID string
	}{
		{name: "configured", cfg: config.BluetoothConfig{Adapter: "hci0"}, wantID: "hci0"},
		{name: "unset", cfg: config.BluetoothConfig{}, wantID: config.SupportedAdapter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBlueZ(tt.cfg)
			if b.adapter != bluetooth.DefaultAdapter {
				t.Error("adapter is not the BlueZ default adapter")
			}
			if b.id != tt.wantID {
				t.Errorf("id = %q, want %q", b.id, tt.wantID)
			}
		})
	}
}

func TestPoweredChange(t *testing.T) {
	tests := []struct {
		name        string
		sig         *dbus.Signal
		wantPowered bool
		wantOK      bool
	}{
		{
			name: "powered on",
			sig: &dbus.Signal{
				Name: propertiesChanged,
				Body: []any{bluezAdapterIface, map[string]dbus.Variant{"Powered": dbus.MakeVariant(true)}, []string{}},
			},
			wantPowered: true,
			wantOK:      true,
		},
		{
			name: "powered off",
			sig: &dbus.Signal{
				Name: propertiesChanged,
				Body: []any{bluezAdapterIface, map[string]dbus.Variant{"Powered": dbus.MakeVariant(false)}, []string{}},
			},
			wantOK: true,
		},
		{
			name: "other property",
			sig: &dbus.Signal{
				Name: propertiesChanged,
				Body: []any{bluezAdapterIface, map[string]dbus.Variant{"Discovering": dbus.MakeVariant(true)}, []string{}},
			},
		},
		{
			name: "other interface",
			sig: &dbus.Signal{
				Name: propertiesChanged,
				Body: []any{"org.bluez.Device1", map[string]dbus.Variant{"Powered": dbus.MakeVariant(true)}, []string{}},
			},
		},
		{
			name: "other signal",
			sig:  &dbus.Signal{Name: "org.freedesktop.DBus.ObjectManager.InterfacesAdded"},
		},
		{
			name: "nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			powered, ok := poweredChange(tt.sig)
			if powered != tt.wantPowered || ok != tt.wantOK {
				t.Errorf("poweredChange() = (%v, %v), want (%v, %v)", powered, ok, tt.wantPowered, tt.wantOK)
			}
		})
	}
}

type fakeProps struct {
	value any
	err   error
}

func (f fakeProps) GetProperty(string) (dbus.Variant, error) {
	if f.err != nil {
		return dbus.Variant{}, f.err
	}
	return dbus.MakeVariant(f.value), nil
}

func TestReadPowered(t *testing.T) {
	on, err := readPowered(fakeProps{value: true})
	if err != nil || !on {
		t.Errorf("readPowered(true) = (%v, %v)", on, err)
	}

	if _, err := readPowered(fakeProps{value: "yes"}); err == nil {
		t.Error("readPowered(string) expected error")
	}

	boom := errors.New("no adapter")
	if _, err := readPowered(fakeProps{err: boom}); !errors.Is(err, boom) {
		t.Errorf("readPowered() error = %v, want %v", err, boom)
	}
}

func TestBlueZ_StartScanningBeforeRun(t *testing.T) {
	b := NewBlueZ(config.BluetoothConfig{Adapter: "hci0"})
	if err := b.StartScanning(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("StartScanning() error = %v, want ErrNotRunning", err)
	}
	if err := b.StopScanning(); err != nil {
		t.Errorf("StopScanning() on idle adapter error = %v", err)
	}
}

type foreignPeripheral struct{}

func (foreignPeripheral) Address() string { return "00:00:00:00:00:00" }

func TestBlueZ_ConnectForeignPeripheral(t *testing.T) {
	b := NewBlueZ(config.BluetoothConfig{Adapter: "hci0"})
	if _, err := b.Connect(context.Background(), foreignPeripheral{}); !errors.Is(err, ErrUnknownPeripheral) {
		t.Errorf("Connect() error = %v, want ErrUnknownPeripheral", err)
	}
}
