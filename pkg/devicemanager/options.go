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
	"github.com/godbus/dbus/v5"

	"github.com/carina-io/kdisk"
	"github.com/carina-io/kdisk/pkg/devicemanager/types"
	"github.com/carina-io/kdisk/utils"
)

// FormatOptions is derived from a FormatRequest, never supplied directly.
type FormatOptions struct {
	// Label is nil when no label option is sent
	Label               *string
	TakeOwnership       bool
	Erase               string
	UpdatePartitionType bool
}

// BuildFormatOptions applies the option policy:
// label unless the type is "empty", take-ownership unless the type has no
// unix ownership (vfat, ntfs, exfat), erase only when a mode was asked for,
// update-partition-type always.
func BuildFormatOptions(req FormatRequest) FormatOptions {
	opts := FormatOptions{
		Erase:               req.Erase,
		UpdatePartitionType: true,
	}
	if req.Type != kdisk.FilesystemEmpty {
		label := req.Label
		opts.Label = &label
	}
	if !utils.ContainsString(kdisk.NoOwnershipFilesystems, req.Type) {
		opts.TakeOwnership = true
	}
	return opts
}

// Variants encodes the options as the a{sv} argument of Block.Format.
func (o FormatOptions) Variants() map[string]dbus.Variant {
	v := map[string]dbus.Variant{}
	if o.Label != nil {
		v[types.OptionLabel] = dbus.MakeVariant(*o.Label)
	}
	if o.TakeOwnership {
		v[types.OptionTakeOwnership] = dbus.MakeVariant(true)
	}
	if o.Erase != "" {
		v[types.OptionErase] = dbus.MakeVariant(o.Erase)
	}
	if o.UpdatePartitionType {
		v[types.OptionUpdatePartitionType] = dbus.MakeVariant(true)
	}
	return v
}
