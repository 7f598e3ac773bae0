package devicemanager

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"k8s.io/mount-utils"

	"github.com/carina-io/kdisk/pkg/udisks"
)

const (
	sdbPath  = dbus.ObjectPath("/org/freedesktop/UDisks2/block_devices/sdb")
	sdb1Path = dbus.ObjectPath("/org/freedesktop/UDisks2/block_devices/sdb1")
	dm0Path  = dbus.ObjectPath("/org/freedesktop/UDisks2/block_devices/dm_2d0")
	job1Path = dbus.ObjectPath("/org/freedesktop/UDisks2/jobs/1")
	job2Path = dbus.ObjectPath("/org/freedesktop/UDisks2/jobs/2")

	sdbRdev  = uint64(8<<8 | 16)
	sdb1Rdev = uint64(8<<8 | 17)
	dm0Rdev  = uint64(253 << 8)
)

type formatCall struct {
	path    dbus.ObjectPath
	fsType  string
	options map[string]dbus.Variant
}

// fakeService records every call a Session receives.
type fakeService struct {
	mu      sync.Mutex
	objects []*udisks.Object

	connectErr error
	unmountErr error
	formatErr  error
	cancelErr  error
	// formatGate blocks Format until closed or the context ends
	formatGate chan struct{}
	// unmountGate blocks Unmount until closed or the context ends
	unmountGate chan struct{}

	opened   int
	closed   int
	unmounts []dbus.ObjectPath
	formats  []formatCall
	cancels  []dbus.ObjectPath
}

func newFakeService(objects ...*udisks.Object) *fakeService {
	return &fakeService{objects: objects}
}

func (f *fakeService) connect(ctx context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.opened++
	return &fakeSession{svc: f}, nil
}

func (f *fakeService) counts() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

func (f *fakeService) formatCalls() []formatCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]formatCall(nil), f.formats...)
}

func (f *fakeService) unmountCalls() []dbus.ObjectPath {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dbus.ObjectPath(nil), f.unmounts...)
}

func (f *fakeService) cancelCalls() []dbus.ObjectPath {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dbus.ObjectPath(nil), f.cancels...)
}

type fakeSession struct {
	svc    *fakeService
	closed bool
}

func (s *fakeSession) BlockForDevice(rdev uint64) (*udisks.Object, bool) {
	for _, o := range s.svc.objects {
		if b, ok := o.Block(); ok && b.DeviceNumber == rdev {
			return o, true
		}
	}
	return nil, false
}

func (s *fakeSession) Object(path dbus.ObjectPath) (*udisks.Object, bool) {
	for _, o := range s.svc.objects {
		if o.Path == path {
			return o, true
		}
	}
	return nil, false
}

func (s *fakeSession) JobsForObject(obj *udisks.Object) []*udisks.Job {
	var jobs []*udisks.Job
	for _, o := range s.svc.objects {
		if j, ok := o.Job(); ok && j.Involves(obj.Path) {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

func (s *fakeSession) Unmount(ctx context.Context, obj *udisks.Object, options map[string]dbus.Variant) error {
	s.svc.mu.Lock()
	s.svc.unmounts = append(s.svc.unmounts, obj.Path)
	gate, err := s.svc.unmountGate, s.svc.unmountErr
	s.svc.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *fakeSession) Format(ctx context.Context, obj *udisks.Object, fsType string, options map[string]dbus.Variant) error {
	s.svc.mu.Lock()
	s.svc.formats = append(s.svc.formats, formatCall{path: obj.Path, fsType: fsType, options: options})
	gate, err := s.svc.formatGate, s.svc.formatErr
	s.svc.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *fakeSession) CancelJob(ctx context.Context, job *udisks.Job, options map[string]dbus.Variant) error {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	s.svc.cancels = append(s.svc.cancels, job.Path)
	return s.svc.cancelErr
}

func (s *fakeSession) Close() error {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	if s.closed {
		return errors.New("session closed twice")
	}
	s.closed = true
	s.svc.closed++
	return nil
}

type fakeResolver map[string]uint64

func (r fakeResolver) DeviceNumber(path string) (uint64, error) {
	if rdev, ok := r[path]; ok {
		return rdev, nil
	}
	return 0, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
}

func blockObject(path dbus.ObjectPath, b udisks.Block, fs *udisks.Filesystem) *udisks.Object {
	ifaces := map[string]map[string]dbus.Variant{
		udisks.BlockInterface: b.Properties(),
	}
	if fs != nil {
		ifaces[udisks.FilesystemInterface] = fs.Properties()
	}
	return udisks.NewObject(path, ifaces)
}

func jobObject(path dbus.ObjectPath, j udisks.Job) *udisks.Object {
	return udisks.NewObject(path, map[string]map[string]dbus.Variant{
		udisks.JobInterface: j.Properties(),
	})
}

// standardObjects: sdb whole disk without filesystem, sdb1 mounted vfat
// partition, dm-0 an unlocked LUKS container on sdb.
func standardObjects() []*udisks.Object {
	return []*udisks.Object{
		blockObject(sdbPath, udisks.Block{Device: "/dev/sdb", DeviceNumber: sdbRdev, Size: 64e9}, nil),
		blockObject(sdb1Path, udisks.Block{Device: "/dev/sdb1", DeviceNumber: sdb1Rdev, Size: 15_500_000_000, IdLabel: "USBSTICK", IdType: "vfat"},
			&udisks.Filesystem{MountPoints: []string{"/media/user/USBSTICK"}}),
		blockObject(dm0Path, udisks.Block{Device: "/dev/dm-0", DeviceNumber: dm0Rdev, Size: 63e9, CryptoBackingDevice: sdbPath},
			&udisks.Filesystem{}),
	}
}

func standardResolver() fakeResolver {
	return fakeResolver{
		"/dev/sdb":             sdbRdev,
		"/dev/sdb1":            sdb1Rdev,
		"/dev/dm-0":            dm0Rdev,
		"/dev/mapper/luks-sdb": dm0Rdev,
		"/dev/loop9":           7<<8 | 9,
	}
}

func newTestManager(svc *fakeService) *DeviceManager {
	return &DeviceManager{
		Connector: svc.connect,
		Resolver:  standardResolver(),
		Mounter:   mount.NewFakeMounter(nil),
	}
}
