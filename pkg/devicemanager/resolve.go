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

	"github.com/carina-io/kdisk/pkg/udisks"
	"github.com/carina-io/kdisk/utils/log"
)

// DeviceResolver maps a device node path to its device number (st_rdev).
type DeviceResolver interface {
	DeviceNumber(path string) (uint64, error)
}

// device is a resolved block object.
type device struct {
	*udisks.Object
	// cryptoBacked is set when the path named an unlocked container
	cryptoBacked bool
}

// resolve finds the block object for rdev. An unlocked encrypted container is
// replaced by its crypto backing device, formatting always targets the
// physical device.
func resolve(session Session, path string, rdev uint64) (*device, error) {
	obj, ok := session.BlockForDevice(rdev)
	if !ok {
		return nil, fmt.Errorf("%w: no block object for %s", ErrNotFound, path)
	}

	block, ok := obj.Block()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBlock, obj.Path)
	}
	if block.HasCryptoBackingDevice() {
		if backing, ok := session.Object(block.CryptoBackingDevice); ok {
			log.Debugf("%s is an unlocked container, using backing device %s", path, backing.Path)
			return &device{Object: backing, cryptoBacked: true}, nil
		}
	}
	return &device{Object: obj}, nil
}
