package serialio

import (
	"fmt"

	"go.bug.st/serial"
)

// RealFactory opens real serial ports via go.bug.st/serial.
type RealFactory struct{}

// Open opens the serial port at path with the given options.
func (RealFactory) Open(path string, opts PortOptions) (Porter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	return port, nil
}

// ListPorts returns the serial port paths visible to the host, for the
// port-picker surfaces in the API.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
