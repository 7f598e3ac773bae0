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

	"github.com/godbus/dbus/v5"

	"github.com/carina-io/kdisk/pkg/devicemanager/types"
	"github.com/carina-io/kdisk/utils/log"
)

// GetFormatBytesDone returns the progress fraction of the first job running on
// the device, 0 when there is none or its progress is not valid.
// Further jobs on the same device are not consulted.
func (dm *DeviceManager) GetFormatBytesDone(ctx context.Context, path string) float64 {
	session, obj, err := dm.open(ctx, path)
	if err != nil {
		log.Debugf("get progress of %s: %v", path, err)
		return 0
	}
	defer closeSession(session, path)

	jobs := session.JobsForObject(obj.Object)
	if len(jobs) == 0 || !jobs[0].ProgressValid {
		return 0
	}
	return jobs[0].Progress
}

// CancelFormat cancels the first job running on the device and waits for the
// service to answer. Having no job is not an error and cancel failures are
// only logged.
func (dm *DeviceManager) CancelFormat(ctx context.Context, path string) {
	session, obj, err := dm.open(ctx, path)
	if err != nil {
		log.Debugf("cancel format of %s: %v", path, err)
		return
	}
	defer closeSession(session, path)

	jobs := session.JobsForObject(obj.Object)
	if len(jobs) == 0 {
		log.Debugf("no job to cancel on %s", path)
		return
	}
	log.Infof("cancel job %s (%s) on %s", jobs[0].Path, jobs[0].Operation, path)
	if err := session.CancelJob(ctx, jobs[0], map[string]dbus.Variant{}); err != nil {
		log.Warnf("cancel job %s on %s failed: %v", jobs[0].Path, path, err)
	}
}

// Jobs lists every job running on the device.
func (dm *DeviceManager) Jobs(ctx context.Context, path string) ([]types.JobInfo, error) {
	session, obj, err := dm.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer closeSession(session, path)

	result := []types.JobInfo{}
	for _, j := range session.JobsForObject(obj.Object) {
		result = append(result, types.JobInfo{
			ObjectPath:    string(j.Path),
			Operation:     j.Operation,
			Progress:      j.Progress,
			ProgressValid: j.ProgressValid,
			Bytes:         j.Bytes,
			Rate:          j.Rate,
			Cancelable:    j.Cancelable,
		})
	}
	return result, nil
}
