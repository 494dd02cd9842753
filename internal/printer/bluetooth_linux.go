//go:build linux

package printer

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/thereceipt/bill-printer/internal/registry"
)

// rfcommChannel is the serial port profile channel used by thermal printers
const rfcommChannel = 1

// listPairedDevices returns all paired Bluetooth devices via bluetoothctl
func listPairedDevices(ctx context.Context) ([]registry.Device, error) {
	if _, err := exec.LookPath("bluetoothctl"); err != nil {
		return nil, fmt.Errorf("bluetoothctl not found - install with: sudo apt install bluez: %w", err)
	}

	show, err := exec.CommandContext(ctx, "bluetoothctl", "show").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to query Bluetooth adapter: %w", err)
	}
	if strings.Contains(string(show), "Powered: no") {
		return nil, ErrRadioOff
	}

	out, err := exec.CommandContext(ctx, "bluetoothctl", "devices", "Paired").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list paired devices: %w", err)
	}

	devices := parseBluetoothctlDevices(string(out))
	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	return devices, nil
}

// parseBluetoothctlDevices parses "Device XX:XX:XX:XX:XX:XX Name" lines
func parseBluetoothctlDevices(out string) []registry.Device {
	var devices []registry.Device
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Device ") {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(line, "Device "), " ", 2)
		d := registry.Device{MacAddress: parts[0]}
		if len(parts) == 2 {
			d.DeviceName = strings.TrimSpace(parts[1])
		}
		devices = append(devices, d)
	}
	return devices
}

// openBluetoothLink reuses an rfcomm device already bound to mac, or
// establishes one with rfcomm connect
func openBluetoothLink(ctx context.Context, mac string) (io.WriteCloser, error) {
	if devPath := boundRFCOMMDevice(mac); devPath != "" {
		return openSerial(devPath, mac, 0, nil)
	}

	devPath, release, err := establishRFCOMM(ctx, mac)
	if err != nil {
		return nil, err
	}
	return openSerial(devPath, mac, 0, release)
}

// boundRFCOMMDevice finds an existing /dev/rfcommN for mac
func boundRFCOMMDevice(mac string) string {
	out, err := exec.Command("rfcomm", "-a").Output()
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		// Format: "rfcomm0: 66:22:B3:1A:00:01 channel 1 clean"
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.EqualFold(fields[1], mac) {
			continue
		}
		devPath := "/dev/" + strings.TrimSuffix(fields[0], ":")
		if _, err := os.Stat(devPath); err == nil {
			return devPath
		}
	}
	return ""
}

// findAvailableRFCOMMDevice finds an unused /dev/rfcommN device number
func findAvailableRFCOMMDevice() (string, int, error) {
	for i := 0; i < 10; i++ {
		devPath := fmt.Sprintf("/dev/rfcomm%d", i)
		if _, err := os.Stat(devPath); os.IsNotExist(err) {
			return devPath, i, nil
		}
	}
	return "", -1, fmt.Errorf("no available RFCOMM device slots")
}

// privilegeHelper returns pkexec or sudo, whichever is installed
func privilegeHelper() string {
	for _, helper := range []string{"pkexec", "sudo"} {
		if _, err := exec.LookPath(helper); err == nil {
			return helper
		}
	}
	return ""
}

func privileged(ctx context.Context, helper string, args ...string) *exec.Cmd {
	if helper == "sudo" {
		return exec.CommandContext(ctx, "sudo", append([]string{"-n"}, args...)...)
	}
	return exec.CommandContext(ctx, helper, args...)
}

// establishRFCOMM runs rfcomm connect in the background and returns once the
// device node appears. The release func tears the link down.
func establishRFCOMM(ctx context.Context, mac string) (string, func() error, error) {
	if _, err := exec.LookPath("rfcomm"); err != nil {
		return "", nil, fmt.Errorf("rfcomm not found - install with: sudo apt install bluez: %w", err)
	}

	devPath, devNum, err := findAvailableRFCOMMDevice()
	if err != nil {
		return "", nil, err
	}

	helper := privilegeHelper()
	if helper == "" {
		return "", nil, fmt.Errorf("%w: root privileges required for rfcomm", ErrNotSupported)
	}

	linkCtx, cancel := context.WithCancel(context.Background())
	cmd := privileged(linkCtx, helper, "rfcomm", "connect",
		fmt.Sprintf("/dev/rfcomm%d", devNum), mac, fmt.Sprint(rfcommChannel))
	if err := cmd.Start(); err != nil {
		cancel()
		return "", nil, fmt.Errorf("failed to start rfcomm: %w", err)
	}

	release := func() error {
		cancel()
		privileged(context.Background(), helper, "rfcomm", "release", devPath).Run()
		return cmd.Wait()
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(15 * time.Second)

	for {
		select {
		case <-ctx.Done():
			release()
			return "", nil, ctx.Err()
		case <-deadline:
			release()
			return "", nil, fmt.Errorf("timeout waiting for %s to appear", devPath)
		case <-ticker.C:
			if _, err := os.Stat(devPath); err == nil {
				return devPath, release, nil
			}
		}
	}
}
