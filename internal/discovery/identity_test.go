package discovery

import (
	"testing"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/ble"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/device"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		adv    ble.Advertisement
		want   device.Identity
		wantOK bool
	}{
		{
			name:   "rise name wins over address",
			adv:    ble.Advertisement{LocalName: "RISE108", Address: "AA:BB:CC:DD:EE:FF"},
			want:   device.NameIdentity("RISE108"),
			wantOK: true,
		},
		{
			name:   "sentinel name falls back to address",
			adv:    ble.Advertisement{LocalName: "S", Address: "AA:BB:CC:DD:EE:FF"},
			want:   device.AddressIdentity("aabbccddeeff"),
			wantOK: true,
		},
		{
			name:   "no name uses address",
			adv:    ble.Advertisement{Address: "aa-bb-cc-dd-ee-ff"},
			want:   device.AddressIdentity("aabbccddeeff"),
			wantOK: true,
		},
		{
			name:   "lower case rise is not the family",
			adv:    ble.Advertisement{LocalName: "rise1", Address: "11:22:33:44:55:66"},
			want:   device.AddressIdentity("112233445566"),
			wantOK: true,
		},
		{
			name: "nothing to resolve",
			adv:  ble.Advertisement{LocalName: "S"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.adv)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Resolve() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	adv := ble.Advertisement{LocalName: "S", Address: "AA:BB:CC:DD:EE:FF"}
	first, _ := Resolve(adv)
	for i := 0; i < 10; i++ {
		if got, _ := Resolve(adv); got != first {
			t.Fatalf("Resolve() changed from %v to %v", first, got)
		}
	}
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"RISE108", "RISE108"},
		{"AA:BB:CC:DD:EE:FF", "aabbccddeeff"},
		{"aabbccddeeff", "aabbccddeeff"},
		{" AA-BB-CC-DD-EE-FF ", "aabbccddeeff"},
		{"Kitchen", "Kitchen"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeID(tt.in); got != tt.want {
			t.Errorf("NormalizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
