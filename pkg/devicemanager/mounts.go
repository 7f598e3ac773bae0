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
	"fmt"
)

// MountPoints lists where the device is mounted according to the kernel mount
// table. Entries are matched by device number, so /dev/disk/by-* links work.
func (dm *DeviceManager) MountPoints(path string) ([]string, error) {
	rdev, err := dm.Resolver.DeviceNumber(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}

	mps, err := dm.Mounter.List()
	if err != nil {
		return nil, fmt.Errorf("list mount points: %w", err)
	}

	result := []string{}
	for _, mp := range mps {
		if mp.Device == "" || mp.Device[0] != '/' {
			continue
		}
		n, err := dm.Resolver.DeviceNumber(mp.Device)
		if err != nil || n != rdev {
			continue
		}
		result = append(result, mp.Path)
	}
	return result, nil
}
