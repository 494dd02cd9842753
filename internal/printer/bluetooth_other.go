//go:build !linux && !darwin

package printer

import (
	"context"
	"io"

	"github.com/thereceipt/bill-printer/internal/registry"
)

func listPairedDevices(ctx context.Context) ([]registry.Device, error) {
	return nil, ErrNotSupported
}

func openBluetoothLink(ctx context.Context, mac string) (io.WriteCloser, error) {
	return nil, ErrNotSupported
}
