//go:build linux

package printer

import "testing"

func TestParseBluetoothctlDevices(t *testing.T) {
	out := `Device 66:22:B3:1A:00:01 PT-210
Device 86:67:7A:0F:12:34 Kitchen Printer
Controller 00:1A:7D:DA:71:13 host
Device 00:11:22:33:44:55
`
	devices := parseBluetoothctlDevices(out)
	if len(devices) != 3 {
		t.Fatalf("Expected 3 devices, got %d", len(devices))
	}
	if devices[1].MacAddress != "86:67:7A:0F:12:34" || devices[1].DeviceName != "Kitchen Printer" {
		t.Errorf("Unexpected device: %+v", devices[1])
	}
	if devices[2].DeviceName != "" || devices[2].DisplayName() != "Unknown Device" {
		t.Errorf("Expected unnamed device, got %+v", devices[2])
	}
}
