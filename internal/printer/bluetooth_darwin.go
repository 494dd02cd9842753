//go:build darwin

package printer

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/thereceipt/bill-printer/internal/registry"
)

// Paired SPP printers show up as /dev/cu.<name>; the port path doubles as
// the device address.
var skipPatterns = []string{"Bluetooth-Incoming-Port", "debug-console", "KeySerial", "usbserial", "usbmodem"}

func listPairedDevices(ctx context.Context) ([]registry.Device, error) {
	ports, _ := filepath.Glob("/dev/cu.*")

	var devices []registry.Device
	for _, port := range ports {
		skip := false
		for _, pattern := range skipPatterns {
			if strings.Contains(port, pattern) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		devices = append(devices, registry.Device{
			DeviceName: strings.TrimPrefix(filepath.Base(port), "cu."),
			MacAddress: port,
		})
	}

	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	return devices, nil
}

func openBluetoothLink(ctx context.Context, mac string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return openSerial(mac, mac, 0, nil)
}
