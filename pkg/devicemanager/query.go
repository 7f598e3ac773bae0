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

	"github.com/carina-io/kdisk"
	"github.com/carina-io/kdisk/pkg/devicemanager/types"
	"github.com/carina-io/kdisk/utils/log"
)

// GetDeviceLabel returns the filesystem label, false when it is empty or the
// device cannot be resolved.
func (dm *DeviceManager) GetDeviceLabel(ctx context.Context, path string) (string, bool) {
	session, obj, err := dm.open(ctx, path)
	if err != nil {
		log.Debugf("get label of %s: %v", path, err)
		return "", false
	}
	defer closeSession(session, path)

	block, ok := obj.Block()
	if !ok || block.IdLabel == "" {
		return "", false
	}
	return block.IdLabel, true
}

// GetDeviceSize returns the capacity in decimal gigabytes, 0 when unknown.
func (dm *DeviceManager) GetDeviceSize(ctx context.Context, path string) float64 {
	session, obj, err := dm.open(ctx, path)
	if err != nil {
		log.Debugf("get size of %s: %v", path, err)
		return 0
	}
	defer closeSession(session, path)

	block, ok := obj.Block()
	if !ok {
		return 0
	}
	return float64(block.Size) / kdisk.GigaByte
}

// Find reports whether path resolves to a udisks block object.
func (dm *DeviceManager) Find(ctx context.Context, path string) bool {
	session, _, err := dm.open(ctx, path)
	if err != nil {
		log.Debugf("find %s: %v", path, err)
		return false
	}
	closeSession(session, path)
	return true
}

// Info collects what a UI shows before formatting.
func (dm *DeviceManager) Info(ctx context.Context, path string) (*types.DeviceInfo, error) {
	session, obj, err := dm.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer closeSession(session, path)

	block, ok := obj.Block()
	if !ok {
		return nil, ErrNoBlock
	}
	info := &types.DeviceInfo{
		Path:       path,
		ObjectPath: string(obj.Path),
		Device:     block.Device,
		Size:       block.Size,
		SizeGB:     float64(block.Size) / kdisk.GigaByte,
		Label:      block.IdLabel,
		Filesystem: block.IdType,
		ReadOnly:   block.ReadOnly,
	}
	info.CryptoBacked = obj.cryptoBacked
	if fs, ok := obj.Filesystem(); ok {
		info.HasFilesystem = true
		info.MountPoints = fs.MountPoints
	}
	if mps, err := dm.MountPoints(info.Device); err == nil && len(mps) > 0 {
		info.MountPoints = mps
	}
	return info, nil
}
