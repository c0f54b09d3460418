package mcr

import (
	"sort"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// listPorts is swapped in tests.
var listPorts = serial.GetPortsList

// ListPorts returns the serial ports present on the system, sorted.
func ListPorts() ([]string, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list serial ports")
	}
	sort.Strings(ports)
	for _, p := range ports {
		logrus.WithField("port", p).Debug("found serial port")
	}
	return ports, nil
}

// PortAvailable reports whether port is currently present.
func PortAvailable(port string) (bool, error) {
	ports, err := ListPorts()
	if err != nil {
		return false, err
	}
	for _, p := range ports {
		if p == port {
			return true, nil
		}
	}
	return false, nil
}
