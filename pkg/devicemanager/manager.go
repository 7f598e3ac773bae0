/*
   Copyright @ 2021 bocloud <fushaosong@beyondcent.com>.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package devicemanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"k8s.io/mount-utils"
	"k8s.io/utils/clock"

	"github.com/carina-io/kdisk/pkg/udisks"
	"github.com/carina-io/kdisk/utils/log"
)

var (
	// ErrNotFound the path does not resolve to any udisks block object
	ErrNotFound = errors.New("device not found")
	// ErrNoBlock the resolved object lost its block interface
	ErrNoBlock = errors.New("object is not a block device")
	// ErrBusy a format on the same device is still pending
	ErrBusy = errors.New("device is busy formatting")
)

// Session is one round of conversation with the disk management service.
// *udisks.Client implements it.
type Session interface {
	BlockForDevice(rdev uint64) (*udisks.Object, bool)
	Object(path dbus.ObjectPath) (*udisks.Object, bool)
	JobsForObject(obj *udisks.Object) []*udisks.Job
	Unmount(ctx context.Context, obj *udisks.Object, options map[string]dbus.Variant) error
	Format(ctx context.Context, obj *udisks.Object, fsType string, options map[string]dbus.Variant) error
	CancelJob(ctx context.Context, job *udisks.Job, options map[string]dbus.Variant) error
	Close() error
}

// Connector opens a new Session, every operation uses its own.
type Connector func(ctx context.Context) (Session, error)

// UDisksConnector connects to udisksd on the bus at address, the system bus when empty.
func UDisksConnector(address string) Connector {
	return func(ctx context.Context) (Session, error) {
		c, err := udisks.Connect(ctx, address)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

type DeviceManager struct {
	// Connector opens the service session
	Connector Connector
	// Resolver maps device nodes to device numbers
	Resolver DeviceResolver
	// Mounter reads the kernel mount table
	Mounter mount.Interface
	// FormatTimeout bounds a whole unmount+format run, 0 waits forever
	FormatTimeout time.Duration
	Clock         clock.PassiveClock

	mu sync.RWMutex
}

func NewDeviceManager(busAddress string, formatTimeout time.Duration) *DeviceManager {
	return &DeviceManager{
		Connector:     UDisksConnector(busAddress),
		Resolver:      NewStatResolver(),
		Mounter:       mount.New(""),
		FormatTimeout: formatTimeout,
		Clock:         clock.RealClock{},
	}
}

// open stats path, opens a session and resolves the device object.
// The session is returned open only together with a nil error.
func (dm *DeviceManager) open(ctx context.Context, path string) (Session, *device, error) {
	rdev, err := dm.Resolver.DeviceNumber(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}

	session, err := dm.Connector(ctx)
	if err != nil {
		return nil, nil, err
	}

	dev, err := resolve(session, path, rdev)
	if err != nil {
		closeSession(session, path)
		return nil, nil, err
	}
	return session, dev, nil
}

func closeSession(session Session, path string) {
	if err := session.Close(); err != nil {
		log.Warnf("close udisks session for %s failed: %v", path, err)
	}
}

func (dm *DeviceManager) now() time.Time {
	if dm.Clock == nil {
		return time.Now()
	}
	return dm.Clock.Now()
}

// SetFormatTimeout applies to formats started afterwards.
func (dm *DeviceManager) SetFormatTimeout(d time.Duration) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.FormatTimeout = d
}

func (dm *DeviceManager) formatTimeout() time.Duration {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.FormatTimeout
}
