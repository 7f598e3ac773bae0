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
	"bytes"

	"github.com/godbus/dbus/v5"
)

const (
	// BusName is the well-known name of the udisksd daemon
	BusName = "org.freedesktop.UDisks2"
	// RootPath exports the ObjectManager
	RootPath = dbus.ObjectPath("/org/freedesktop/UDisks2")

	BlockInterface      = "org.freedesktop.UDisks2.Block"
	FilesystemInterface = "org.freedesktop.UDisks2.Filesystem"
	EncryptedInterface  = "org.freedesktop.UDisks2.Encrypted"
	JobInterface        = "org.freedesktop.UDisks2.Job"

	objectManagerInterface = "org.freedesktop.DBus.ObjectManager"

	// NoObject is what udisksd reports for an unset object path property
	NoObject = dbus.ObjectPath("/")
)

// Object is a snapshot of one exported object, keyed by interface then property.
type Object struct {
	Path       dbus.ObjectPath
	Interfaces map[string]map[string]dbus.Variant
}

func NewObject(path dbus.ObjectPath, interfaces map[string]map[string]dbus.Variant) *Object {
	if interfaces == nil {
		interfaces = map[string]map[string]dbus.Variant{}
	}
	return &Object{Path: path, Interfaces: interfaces}
}

func (o *Object) HasInterface(name string) bool {
	_, ok := o.Interfaces[name]
	return ok
}

// Block /org/freedesktop/UDisks2/block_devices/*
type Block struct {
	Device              string
	PreferredDevice     string
	DeviceNumber        uint64
	Size                uint64
	ReadOnly            bool
	IdUsage             string
	IdType              string
	IdLabel             string
	IdUUID              string
	CryptoBackingDevice dbus.ObjectPath
	Drive               dbus.ObjectPath
}

// Block returns the block device properties, false when the object is not a block device.
func (o *Object) Block() (*Block, bool) {
	props, ok := o.Interfaces[BlockInterface]
	if !ok {
		return nil, false
	}
	return &Block{
		Device:              bytesProp(props, "Device"),
		PreferredDevice:     bytesProp(props, "PreferredDevice"),
		DeviceNumber:        uint64Prop(props, "DeviceNumber"),
		Size:                uint64Prop(props, "Size"),
		ReadOnly:            boolProp(props, "ReadOnly"),
		IdUsage:             stringProp(props, "IdUsage"),
		IdType:              stringProp(props, "IdType"),
		IdLabel:             stringProp(props, "IdLabel"),
		IdUUID:              stringProp(props, "IdUUID"),
		CryptoBackingDevice: pathProp(props, "CryptoBackingDevice"),
		Drive:               pathProp(props, "Drive"),
	}, true
}

// HasCryptoBackingDevice is true for an unlocked encrypted container.
func (b *Block) HasCryptoBackingDevice() bool {
	return b.CryptoBackingDevice != "" && b.CryptoBackingDevice != NoObject
}

func (b Block) Properties() map[string]dbus.Variant {
	backing := b.CryptoBackingDevice
	if backing == "" {
		backing = NoObject
	}
	drive := b.Drive
	if drive == "" {
		drive = NoObject
	}
	return map[string]dbus.Variant{
		"Device":              dbus.MakeVariant(nulTerminated(b.Device)),
		"PreferredDevice":     dbus.MakeVariant(nulTerminated(b.PreferredDevice)),
		"DeviceNumber":        dbus.MakeVariant(b.DeviceNumber),
		"Size":                dbus.MakeVariant(b.Size),
		"ReadOnly":            dbus.MakeVariant(b.ReadOnly),
		"IdUsage":             dbus.MakeVariant(b.IdUsage),
		"IdType":              dbus.MakeVariant(b.IdType),
		"IdLabel":             dbus.MakeVariant(b.IdLabel),
		"IdUUID":              dbus.MakeVariant(b.IdUUID),
		"CryptoBackingDevice": dbus.MakeVariant(backing),
		"Drive":               dbus.MakeVariant(drive),
	}
}

// Filesystem is present on a block object that carries a mountable filesystem.
type Filesystem struct {
	MountPoints []string
	Size        uint64
}

func (o *Object) Filesystem() (*Filesystem, bool) {
	props, ok := o.Interfaces[FilesystemInterface]
	if !ok {
		return nil, false
	}
	return &Filesystem{
		MountPoints: bytesArrayProp(props, "MountPoints"),
		Size:        uint64Prop(props, "Size"),
	}, true
}

func (f Filesystem) Properties() map[string]dbus.Variant {
	mps := make([][]byte, 0, len(f.MountPoints))
	for _, mp := range f.MountPoints {
		mps = append(mps, nulTerminated(mp))
	}
	return map[string]dbus.Variant{
		"MountPoints": dbus.MakeVariant(mps),
		"Size":        dbus.MakeVariant(f.Size),
	}
}

// Job /org/freedesktop/UDisks2/jobs/*
type Job struct {
	Path          dbus.ObjectPath
	Operation     string
	Objects       []dbus.ObjectPath
	Progress      float64
	ProgressValid bool
	Bytes         uint64
	Rate          uint64
	StartTime     uint64
	Cancelable    bool
}

func (o *Object) Job() (*Job, bool) {
	props, ok := o.Interfaces[JobInterface]
	if !ok {
		return nil, false
	}
	return &Job{
		Path:          o.Path,
		Operation:     stringProp(props, "Operation"),
		Objects:       pathsProp(props, "Objects"),
		Progress:      float64Prop(props, "Progress"),
		ProgressValid: boolProp(props, "ProgressValid"),
		Bytes:         uint64Prop(props, "Bytes"),
		Rate:          uint64Prop(props, "Rate"),
		StartTime:     uint64Prop(props, "StartTime"),
		Cancelable:    boolProp(props, "Cancelable"),
	}, true
}

// Involves reports whether the job operates on the given object.
func (j *Job) Involves(path dbus.ObjectPath) bool {
	for _, p := range j.Objects {
		if p == path {
			return true
		}
	}
	return false
}

func (j Job) Properties() map[string]dbus.Variant {
	objects := j.Objects
	if objects == nil {
		objects = []dbus.ObjectPath{}
	}
	return map[string]dbus.Variant{
		"Operation":     dbus.MakeVariant(j.Operation),
		"Objects":       dbus.MakeVariant(objects),
		"Progress":      dbus.MakeVariant(j.Progress),
		"ProgressValid": dbus.MakeVariant(j.ProgressValid),
		"Bytes":         dbus.MakeVariant(j.Bytes),
		"Rate":          dbus.MakeVariant(j.Rate),
		"StartTime":     dbus.MakeVariant(j.StartTime),
		"Cancelable":    dbus.MakeVariant(j.Cancelable),
	}
}

func stringProp(props map[string]dbus.Variant, name string) string {
	if v, ok := props[name]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func uint64Prop(props map[string]dbus.Variant, name string) uint64 {
	if v, ok := props[name]; ok {
		if n, ok := v.Value().(uint64); ok {
			return n
		}
	}
	return 0
}

func float64Prop(props map[string]dbus.Variant, name string) float64 {
	if v, ok := props[name]; ok {
		if f, ok := v.Value().(float64); ok {
			return f
		}
	}
	return 0
}

func boolProp(props map[string]dbus.Variant, name string) bool {
	if v, ok := props[name]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}

func pathProp(props map[string]dbus.Variant, name string) dbus.ObjectPath {
	if v, ok := props[name]; ok {
		if p, ok := v.Value().(dbus.ObjectPath); ok {
			return p
		}
	}
	return ""
}

func pathsProp(props map[string]dbus.Variant, name string) []dbus.ObjectPath {
	if v, ok := props[name]; ok {
		if p, ok := v.Value().([]dbus.ObjectPath); ok {
			return p
		}
	}
	return nil
}

// udisksd sends file names as NUL terminated byte strings (ay)
func bytesProp(props map[string]dbus.Variant, name string) string {
	if v, ok := props[name]; ok {
		if b, ok := v.Value().([]byte); ok {
			return string(bytes.TrimRight(b, "\x00"))
		}
	}
	return ""
}

func bytesArrayProp(props map[string]dbus.Variant, name string) []string {
	v, ok := props[name]
	if !ok {
		return nil
	}
	raw, ok := v.Value().([][]byte)
	if !ok {
		return nil
	}
	result := make([]string, 0, len(raw))
	for _, b := range raw {
		result = append(result, string(bytes.TrimRight(b, "\x00")))
	}
	return result
}

func nulTerminated(s string) []byte {
	return append([]byte(s), 0)
}
