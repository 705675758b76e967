package mount

import (
	"fmt"
	"io"

	"github.com/tarm/serial"
)

// SerialConfig describes the serial link to the mount controller.
type SerialConfig struct {
	// Device is the serial device path (e.g. /dev/ttyS0)
	Device string

	// Baud is the line speed (the ROTSE controller runs at 9600)
	Baud int
}

// OpenSerial opens the mount's serial port.
// Reads block until data arrives; response timeouts are enforced by Client.
func OpenSerial(cfg SerialConfig) (io.ReadWriteCloser, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial device not configured")
	}
	baud := cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	port, err := serial.OpenPort(&serial.Config{Name: cfg.Device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return port, nil
}
