// Copyright 2016 Storidge Inc.
// Licensed under the Apache License, Version 2.0.

package blockdevice

import (
	"fmt"

	"github.com/juju/errors"
)

// unknownVolumeError is returned by operations referencing a
// blockdevice ID for which the provider has no volume.
type unknownVolumeError struct {
	blockdeviceID string
}

func (e *unknownVolumeError) Error() string {
	return fmt.Sprintf("unknown volume %q", e.blockdeviceID)
}

// NewUnknownVolume returns an error reporting that no volume with the
// given blockdevice ID exists.
func NewUnknownVolume(blockdeviceID string) error {
	return &unknownVolumeError{blockdeviceID}
}

// IsUnknownVolume reports whether err indicates a volume that does
// not exist.
func IsUnknownVolume(err error) bool {
	_, ok := errors.Cause(err).(*unknownVolumeError)
	return ok
}

// alreadyAttachedVolumeError is returned by AttachVolume when the
// volume is attached to an instance, including the requested one.
type alreadyAttachedVolumeError struct {
	blockdeviceID string
}

func (e *alreadyAttachedVolumeError) Error() string {
	return fmt.Sprintf("volume %q is already attached", e.blockdeviceID)
}

// NewAlreadyAttachedVolume returns an error reporting that the volume
// is already attached to an instance.
func NewAlreadyAttachedVolume(blockdeviceID string) error {
	return &alreadyAttachedVolumeError{blockdeviceID}
}

// IsAlreadyAttachedVolume reports whether err indicates an attach of
// a volume that is already attached.
func IsAlreadyAttachedVolume(err error) bool {
	_, ok := errors.Cause(err).(*alreadyAttachedVolumeError)
	return ok
}

// unattachedVolumeError is returned by operations that require an
// attached volume when the volume is not attached anywhere.
type unattachedVolumeError struct {
	blockdeviceID string
}

func (e *unattachedVolumeError) Error() string {
	return fmt.Sprintf("volume %q is not attached", e.blockdeviceID)
}

// NewUnattachedVolume returns an error reporting that the volume is
// not attached to any instance.
func NewUnattachedVolume(blockdeviceID string) error {
	return &unattachedVolumeError{blockdeviceID}
}

// IsUnattachedVolume reports whether err indicates an operation on an
// unattached volume that requires an attachment.
func IsUnattachedVolume(err error) bool {
	_, ok := errors.Cause(err).(*unattachedVolumeError)
	return ok
}

// attachedUnexpectedDeviceError is returned when an attach completes
// but the volume surfaces at a device node other than the one the
// backend reported.
type attachedUnexpectedDeviceError struct {
	requested  string
	discovered string
}

func (e *attachedUnexpectedDeviceError) Error() string {
	return fmt.Sprintf(
		"volume attached at unexpected device: requested %q, discovered %q",
		e.requested, e.discovered,
	)
}

// NewAttachedUnexpectedDevice returns an error reporting a mismatch
// between the device node the backend reported and the one discovered
// on the system. An empty discovered path means no device node
// appeared at all.
func NewAttachedUnexpectedDevice(requested, discovered string) error {
	return &attachedUnexpectedDeviceError{requested, discovered}
}

// IsAttachedUnexpectedDevice reports whether err indicates a
// requested/discovered device node mismatch.
func IsAttachedUnexpectedDevice(err error) bool {
	_, ok := errors.Cause(err).(*attachedUnexpectedDeviceError)
	return ok
}

// volumeAttachedElsewhereError is returned by GetDevicePath when the
// volume is attached, but to a different compute instance.
type volumeAttachedElsewhereError struct {
	blockdeviceID string
	attachedTo    string
	instanceID    string
}

func (e *volumeAttachedElsewhereError) Error() string {
	return fmt.Sprintf(
		"volume %q is attached to %q, not to %q",
		e.blockdeviceID, e.attachedTo, e.instanceID,
	)
}

// NewVolumeAttachedElsewhere returns an error reporting that the
// volume is attached to attachedTo rather than the local instance.
func NewVolumeAttachedElsewhere(blockdeviceID, attachedTo, instanceID string) error {
	return &volumeAttachedElsewhereError{blockdeviceID, attachedTo, instanceID}
}

// IsVolumeAttachedElsewhere reports whether err indicates a volume
// attached to a different instance than the caller's.
func IsVolumeAttachedElsewhere(err error) bool {
	_, ok := errors.Cause(err).(*volumeAttachedElsewhereError)
	return ok
}
