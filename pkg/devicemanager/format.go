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
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/carina-io/kdisk/pkg/udisks"
	"github.com/carina-io/kdisk/utils/log"
)

// Status is the result of a format, with the values UI callers already poll for.
type Status int32

const (
	StatusPending   Status = 0
	StatusSucceeded Status = 1
	StatusFailed    Status = -1
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// State of the unmount -> format chain.
type State int32

const (
	StateResolved State = iota
	StateUnmounting
	StateFormatting
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateResolved:
		return "resolved"
	case StateUnmounting:
		return "unmounting"
	case StateFormatting:
		return "formatting"
	case StateTerminal:
		return "terminal"
	}
	return "unknown"
}

type FormatRequest struct {
	// Device is the device node, e.g. /dev/sdb1
	Device string `json:"path"`
	// Type is the udisks filesystem type: empty, vfat, ntfs, exfat, ext4 ...
	Type string `json:"type"`
	// Erase is the erase mode, empty for none
	Erase string `json:"erase,omitempty"`
	Label string `json:"label"`
	// OnComplete runs once, after the status is written
	OnComplete func(Status) `json:"-"`
}

// FormatTask is the handle of one asynchronous format.
type FormatTask struct {
	req        FormatRequest
	status     int32
	state      int32
	done       chan struct{}
	startedAt  time.Time
	finishedAt time.Time
}

func newFormatTask(req FormatRequest, now time.Time) *FormatTask {
	return &FormatTask{
		req:       req,
		state:     int32(StateResolved),
		done:      make(chan struct{}),
		startedAt: now,
	}
}

func (t *FormatTask) Request() FormatRequest {
	return t.req
}

func (t *FormatTask) Status() Status {
	return Status(atomic.LoadInt32(&t.status))
}

func (t *FormatTask) State() State {
	return State(atomic.LoadInt32(&t.state))
}

// Done is closed once the status is final.
func (t *FormatTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finished or ctx is done. Giving up waiting does
// not stop the format.
func (t *FormatTask) Wait(ctx context.Context) (Status, error) {
	select {
	case <-t.done:
		return t.Status(), nil
	case <-ctx.Done():
		return t.Status(), ctx.Err()
	}
}

func (t *FormatTask) StartedAt() time.Time {
	return t.startedAt
}

// Duration is zero while the task is pending.
func (t *FormatTask) Duration() time.Duration {
	select {
	case <-t.done:
		return t.finishedAt.Sub(t.startedAt)
	default:
		return 0
	}
}

func (t *FormatTask) setState(s State) {
	log.Debugf("format %s: %s -> %s", t.req.Device, t.State(), s)
	atomic.StoreInt32(&t.state, int32(s))
}

// finish writes the result exactly once.
func (t *FormatTask) finish(s Status, now time.Time) {
	if !atomic.CompareAndSwapInt32(&t.status, int32(StatusPending), int32(s)) {
		log.Errorf("format %s already finished with %s, drop %s", t.req.Device, t.Status(), s)
		return
	}
	t.finishedAt = now
	t.setState(StateTerminal)
	close(t.done)
	if t.req.OnComplete != nil {
		t.req.OnComplete(s)
	}
}

// Format resolves the device and returns at once; the unmount and format
// steps run in the background and the returned task carries the result.
// Resolution failures finish the task as failed before Format returns.
func (dm *DeviceManager) Format(ctx context.Context, req FormatRequest) *FormatTask {
	task := newFormatTask(req, dm.now())

	session, dev, err := dm.open(ctx, req.Device)
	if err != nil {
		log.Errorf("format %s: %v", req.Device, err)
		task.finish(StatusFailed, dm.now())
		return task
	}

	log.Infof("format %s (%s) as %q, erase %q", req.Device, dev.Path, req.Type, req.Erase)
	go dm.runFormat(ctx, task, session, dev.Object, dm.formatTimeout())
	return task
}

// runFormat owns session and releases it before the result is published.
func (dm *DeviceManager) runFormat(ctx context.Context, task *FormatTask, session Session, obj *udisks.Object, timeout time.Duration) {
	status := StatusFailed
	defer func() {
		closeSession(session, task.req.Device)
		task.finish(status, dm.now())
		log.Infof("format %s %s in %s", task.req.Device, status, task.Duration())
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// unmount errors are ignored, a busy device makes Format fail on its own
	if _, ok := obj.Filesystem(); ok {
		task.setState(StateUnmounting)
		if err := session.Unmount(ctx, obj, map[string]dbus.Variant{}); err != nil {
			log.Warnf("unmount %s failed, formatting anyway: %v", task.req.Device, err)
		}
	}

	task.setState(StateFormatting)
	opts := BuildFormatOptions(task.req)
	if err := session.Format(ctx, obj, task.req.Type, opts.Variants()); err != nil {
		log.Errorf("format %s failed: %v", task.req.Device, err)
		return
	}
	status = StatusSucceeded
}
