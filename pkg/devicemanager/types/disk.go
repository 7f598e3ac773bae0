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

package types

type DeviceInfo struct {
	// Path is the device node that was asked for
	Path string `json:"path"`
	// ObjectPath of the udisks block object, the crypto backing one for unlocked containers
	ObjectPath string `json:"objectPath"`
	// Device is the device node udisks reports for ObjectPath
	Device string `json:"device"`
	// Size is the device capacity in byte
	Size uint64 `json:"size"`
	// SizeGB is Size in decimal gigabytes
	SizeGB float64 `json:"sizeGB"`
	Label  string  `json:"label"`
	// Filesystem is the detected type, empty when unknown
	Filesystem string `json:"filesystem"`
	ReadOnly   bool   `json:"readOnly"`
	// CryptoBacked is true when Path was an unlocked encrypted container
	CryptoBacked bool `json:"cryptoBacked"`
	// HasFilesystem is true when udisks can mount the device
	HasFilesystem bool     `json:"hasFilesystem"`
	MountPoints   []string `json:"mountPoints"`
}

type JobInfo struct {
	ObjectPath    string  `json:"objectPath"`
	Operation     string  `json:"operation"`
	Progress      float64 `json:"progress"`
	ProgressValid bool    `json:"progressValid"`
	Bytes         uint64  `json:"bytes"`
	Rate          uint64  `json:"rate"`
	Cancelable    bool    `json:"cancelable"`
}
