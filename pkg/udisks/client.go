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

package udisks

import (
	"context"
	"fmt"
	"sort"

	"github.com/godbus/dbus/v5"

	"github.com/carina-io/kdisk/utils/log"
)

// Client is one session with udisksd: a private bus connection plus the
// object snapshot taken when it was opened.
type Client struct {
	conn    *dbus.Conn
	objects map[dbus.ObjectPath]*Object
}

// Connect opens a private connection to address, the system bus when empty,
// and loads the managed objects.
func Connect(ctx context.Context, address string) (*Client, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if address == "" {
		conn, err = dbus.ConnectSystemBus(dbus.WithContext(ctx))
	} else {
		conn, err = dbus.Connect(address, dbus.WithContext(ctx))
	}
	if err != nil {
		return nil, fmt.Errorf("connect to dbus %q: %w", address, err)
	}

	c := &Client{conn: conn}
	if err := c.Refresh(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func newClient(objects ...*Object) *Client {
	c := &Client{objects: map[dbus.ObjectPath]*Object{}}
	for _, o := range objects {
		c.objects[o.Path] = o
	}
	return c
}

// Refresh replaces the snapshot with the current GetManagedObjects reply.
func (c *Client) Refresh(ctx context.Context) error {
	managed := map[dbus.ObjectPath]map[string]map[string]dbus.Variant{}
	call := c.conn.Object(BusName, RootPath).CallWithContext(ctx, objectManagerInterface+".GetManagedObjects", 0)
	if err := call.Store(&managed); err != nil {
		return fmt.Errorf("get managed objects: %w", err)
	}

	objects := make(map[dbus.ObjectPath]*Object, len(managed))
	for path, ifaces := range managed {
		objects[path] = NewObject(path, ifaces)
	}
	c.objects = objects
	log.Debugf("udisks snapshot loaded %d objects", len(objects))
	return nil
}

// Objects returns the snapshot ordered by object path.
func (c *Client) Objects() []*Object {
	result := make([]*Object, 0, len(c.objects))
	for _, o := range c.objects {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result
}

func (c *Client) Object(path dbus.ObjectPath) (*Object, bool) {
	o, ok := c.objects[path]
	return o, ok
}

// BlockForDevice finds the block object whose DeviceNumber equals rdev.
func (c *Client) BlockForDevice(rdev uint64) (*Object, bool) {
	for _, o := range c.Objects() {
		if b, ok := o.Block(); ok && b.DeviceNumber == rdev {
			return o, true
		}
	}
	return nil, false
}

// JobsForObject returns the jobs whose Objects include obj, ordered by job path.
func (c *Client) JobsForObject(obj *Object) []*Job {
	var jobs []*Job
	if obj == nil {
		return jobs
	}
	for _, o := range c.Objects() {
		if j, ok := o.Job(); ok && j.Involves(obj.Path) {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

// Unmount calls Filesystem.Unmount and waits for the reply.
func (c *Client) Unmount(ctx context.Context, obj *Object, options map[string]dbus.Variant) error {
	return c.call(ctx, obj.Path, FilesystemInterface+".Unmount", ensureOptions(options))
}

// Format calls Block.Format, udisksd replies once the job has finished.
func (c *Client) Format(ctx context.Context, obj *Object, fsType string, options map[string]dbus.Variant) error {
	return c.call(ctx, obj.Path, BlockInterface+".Format", fsType, ensureOptions(options))
}

func (c *Client) CancelJob(ctx context.Context, job *Job, options map[string]dbus.Variant) error {
	return c.call(ctx, job.Path, JobInterface+".Cancel", ensureOptions(options))
}

func (c *Client) call(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) error {
	if c.conn == nil {
		return fmt.Errorf("%s on %s: not connected", method, path)
	}
	log.Debugf("dbus call %s %s", path, method)
	if err := c.conn.Object(BusName, path).CallWithContext(ctx, method, 0, args...).Err; err != nil {
		return fmt.Errorf("%s on %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func ensureOptions(options map[string]dbus.Variant) map[string]dbus.Variant {
	if options == nil {
		return map[string]dbus.Variant{}
	}
	return options
}
