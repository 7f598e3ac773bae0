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
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/carina-io/kdisk/utils/log"
)

// TaskRegistry remembers the latest format task per device path so that a
// caller can poll for the result after Format returned. Pending tasks never
// expire, finished ones are dropped after the retention time.
type TaskRegistry struct {
	dm        *DeviceManager
	retention time.Duration
	mu        sync.Mutex
	tasks     *cache.Cache
}

// NewTaskRegistry retention 0 keeps finished tasks forever.
func NewTaskRegistry(dm *DeviceManager, retention time.Duration) *TaskRegistry {
	expiration := retention
	if expiration <= 0 {
		expiration = cache.NoExpiration
	}
	return &TaskRegistry{
		dm:        dm,
		retention: retention,
		tasks:     cache.New(expiration, expiration),
	}
}

// Start begins a format unless one is still pending on the same device, in
// which case the pending task is returned with ErrBusy.
func (r *TaskRegistry) Start(ctx context.Context, req FormatRequest) (*FormatTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.get(req.Device); ok && t.Status() == StatusPending {
		return t, ErrBusy
	}

	task := r.dm.Format(ctx, req)
	r.tasks.Set(req.Device, task, cache.NoExpiration)
	go r.expireAfterDone(task)
	return task, nil
}

func (r *TaskRegistry) expireAfterDone(task *FormatTask) {
	<-task.Done()

	r.mu.Lock()
	defer r.mu.Unlock()
	device := task.Request().Device
	if current, ok := r.get(device); ok && current == task {
		r.tasks.Set(device, task, cache.DefaultExpiration)
		log.Debugf("format task of %s kept for %s", device, r.retention)
	}
}

func (r *TaskRegistry) get(device string) (*FormatTask, bool) {
	v, ok := r.tasks.Get(device)
	if !ok {
		return nil, false
	}
	return v.(*FormatTask), true
}

func (r *TaskRegistry) Get(device string) (*FormatTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(device)
}

// Tasks returns the known tasks ordered by device path.
func (r *TaskRegistry) Tasks() []*FormatTask {
	items := r.tasks.Items()
	result := make([]*FormatTask, 0, len(items))
	for _, item := range items {
		result = append(result, item.Object.(*FormatTask))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Request().Device < result[j].Request().Device
	})
	return result
}

// Manager exposes the DeviceManager the registry formats with.
func (r *TaskRegistry) Manager() *DeviceManager {
	return r.dm
}
