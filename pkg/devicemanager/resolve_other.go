//go:build !linux

package devicemanager

import (
	"errors"
)

type statResolver struct{}

func NewStatResolver() DeviceResolver {
	return statResolver{}
}

func (statResolver) DeviceNumber(path string) (uint64, error) {
	return 0, errors.New("device numbers are only resolved on linux")
}
