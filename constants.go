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

package kdisk

const (
	// Version project
	Version = "beta"

	// FilesystemEmpty wipes signatures without creating a filesystem
	FilesystemEmpty = "empty"
	// FilesystemVfat FilesystemNtfs FilesystemExfat have no unix ownership
	FilesystemVfat  = "vfat"
	FilesystemNtfs  = "ntfs"
	FilesystemExfat = "exfat"
	FilesystemExt4  = "ext4"

	// EraseZero overwrites the device with zeroes before formatting
	EraseZero = "zero"
	// EraseATASecure EraseATASecureEnhanced use the drive firmware
	EraseATASecure         = "ata-secure-erase"
	EraseATASecureEnhanced = "ata-secure-erase-enhanced"

	// GigaByte decimal unit used for reported device sizes
	GigaByte = 1000 * 1000 * 1000
)

// NoOwnershipFilesystems lists filesystem types that have no unix ownership,
// take-ownership is never requested for them.
var NoOwnershipFilesystems = []string{FilesystemVfat, FilesystemNtfs, FilesystemExfat}
