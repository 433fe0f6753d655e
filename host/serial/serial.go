// Package serial opens the host side of the controller's serial
// bridge.
package serial

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// Config selects the device and line settings.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout int // milliseconds
}

// Port is the minimal interface servoctl needs.
type Port interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

// Open opens a serial port with the given configuration.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return port, nil
}
