package run

import (
	"context"
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"
	"k8s.io/mount-utils"

	"github.com/carina-io/kdisk/pkg/devicemanager"
	"github.com/carina-io/kdisk/pkg/udisks"
)

const (
	sdbPath  = dbus.ObjectPath("/org/freedesktop/UDisks2/block_devices/sdb")
	sdb1Path = dbus.ObjectPath("/org/freedesktop/UDisks2/block_devices/sdb1")
	jobPath  = dbus.ObjectPath("/org/freedesktop/UDisks2/jobs/3")
)

// fakeUDisks serves sdb and its vfat partition sdb1. Format blocks until
// release is closed or the job is cancelled, a format job on sdb1 is
// visible meanwhile.
type fakeUDisks struct {
	mu        sync.Mutex
	release   chan struct{}
	cancelled chan struct{}
	once      sync.Once
	running   bool
	cancels int
	objects map[dbus.ObjectPath]*udisks.Object
}

func newFakeUDisks() *fakeUDisks {
	return &fakeUDisks{
		release:   make(chan struct{}),
		cancelled: make(chan struct{}),
		objects: map[dbus.ObjectPath]*udisks.Object{
			sdbPath: udisks.NewObject(sdbPath, map[string]map[string]dbus.Variant{
				udisks.BlockInterface: udisks.Block{Device: "/dev/sdb", DeviceNumber: 8<<8 | 16, Size: 32e9}.Properties(),
			}),
			sdb1Path: udisks.NewObject(sdb1Path, map[string]map[string]dbus.Variant{
				udisks.BlockInterface:      udisks.Block{Device: "/dev/sdb1", DeviceNumber: 8<<8 | 17, Size: 8e9, IdLabel: "STICK", IdType: "vfat"}.Properties(),
				udisks.FilesystemInterface: udisks.Filesystem{}.Properties(),
			}),
		},
	}
}

func (f *fakeUDisks) manager() *devicemanager.DeviceManager {
	return &devicemanager.DeviceManager{
		Connector: func(ctx context.Context) (devicemanager.Session, error) { return f, nil },
		Resolver:  resolver{"/dev/sdb": 8<<8 | 16, "/dev/sdb1": 8<<8 | 17},
		Mounter:   mount.NewFakeMounter(nil),
	}
}

func (f *fakeUDisks) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

func (f *fakeUDisks) BlockForDevice(rdev uint64) (*udisks.Object, bool) {
	for _, o := range f.objects {
		if b, ok := o.Block(); ok && b.DeviceNumber == rdev {
			return o, true
		}
	}
	return nil, false
}

func (f *fakeUDisks) Object(path dbus.ObjectPath) (*udisks.Object, bool) {
	o, ok := f.objects[path]
	return o, ok
}

func (f *fakeUDisks) JobsForObject(obj *udisks.Object) []*udisks.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running || obj.Path != sdb1Path {
		return nil
	}
	return []*udisks.Job{{Path: jobPath, Operation: "format-mkfs", Objects: []dbus.ObjectPath{sdb1Path}, Progress: 0.5, ProgressValid: true, Cancelable: true}}
}

func (f *fakeUDisks) Unmount(ctx context.Context, obj *udisks.Object, options map[string]dbus.Variant) error {
	return nil
}

func (f *fakeUDisks) Format(ctx context.Context, obj *udisks.Object, fsType string, options map[string]dbus.Variant) error {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	select {
	case <-f.release:
		return nil
	case <-f.cancelled:
		return errors.New("org.freedesktop.UDisks2.Error.Cancelled: Job was cancelled")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelJob makes the running Format fail.
func (f *fakeUDisks) CancelJob(ctx context.Context, job *udisks.Job, options map[string]dbus.Variant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	f.once.Do(func() { close(f.cancelled) })
	return nil
}

func (f *fakeUDisks) Close() error {
	return nil
}

type resolver map[string]uint64

func (r resolver) DeviceNumber(path string) (uint64, error) {
	if n, ok := r[path]; ok {
		return n, nil
	}
	return 0, errors.New("stat " + path + ": no such file or directory")
}
