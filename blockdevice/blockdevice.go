// Copyright 2016 Storidge Inc.
// Licensed under the Apache License, Version 2.0.

// Package blockdevice defines the block-device provider contract
// implemented by storage backends. A provider exposes raw block
// volumes to compute instances; the orchestration framework drives
// the operations below to converge cluster state.
package blockdevice

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// Volume describes a block volume managed by a provider.
type Volume struct {
	// BlockDeviceID is the provider's opaque identifier for the volume.
	BlockDeviceID string `yaml:"blockdevice-id"`

	// Size is the size of the volume, in bytes.
	Size uint64 `yaml:"size"`

	// AttachedTo is the compute instance the volume is attached to,
	// or empty if the volume is not attached anywhere.
	AttachedTo string `yaml:"attached-to,omitempty"`

	// DatasetID identifies the dataset this volume backs. Each
	// dataset has at most one volume.
	DatasetID uuid.UUID `yaml:"dataset-id"`
}

// API is the operational contract for a block-device provider.
//
// All methods taking a blockdevice ID report UnknownVolume when no
// volume with that ID exists; see the individual methods for the
// other error kinds they produce.
type API interface {
	// AllocationUnit returns the provider's volume allocation unit,
	// in bytes. Requested volume sizes are rounded up to a multiple
	// of this unit.
	AllocationUnit() uint64

	// ComputeInstanceID returns the provider's identifier for the
	// compute instance the caller is running on. The result is
	// comparable with Volume.AttachedTo.
	ComputeInstanceID(ctx context.Context) (string, error)

	// CreateVolume creates a new volume of at least the given size
	// in bytes, recording the dataset ID as sidecar metadata on the
	// volume.
	CreateVolume(ctx context.Context, datasetID uuid.UUID, size uint64) (Volume, error)

	// ListVolumes returns all volumes belonging to this cluster.
	// Volumes created outside the cluster are not reported.
	ListVolumes(ctx context.Context) ([]Volume, error)

	// AttachVolume attaches the identified volume to the given
	// compute instance, and returns the volume with AttachedTo set.
	// It returns AlreadyAttachedVolume if the volume is attached
	// anywhere, including to attachTo.
	AttachVolume(ctx context.Context, blockdeviceID, attachTo string) (Volume, error)

	// DetachVolume detaches the identified volume from the instance
	// it is attached to. It returns UnattachedVolume if the volume
	// is not attached.
	DetachVolume(ctx context.Context, blockdeviceID string) error

	// DestroyVolume destroys the identified volume. The volume is
	// detached first if necessary; destruction of a volume that
	// vanishes mid-operation is treated as success.
	DestroyVolume(ctx context.Context, blockdeviceID string) error

	// GetDevicePath returns the OS device node path for the
	// identified volume on the local instance. It returns
	// UnattachedVolume if the volume is not attached, and
	// VolumeAttachedElsewhere if it is attached to a different
	// instance.
	GetDevicePath(ctx context.Context, blockdeviceID string) (string, error)
}

// SortVolumes sorts volumes by blockdevice ID.
func SortVolumes(volumes []Volume) {
	sort.Sort(byBlockDeviceID(volumes))
}

type byBlockDeviceID []Volume

func (v byBlockDeviceID) Len() int {
	return len(v)
}

func (v byBlockDeviceID) Swap(i, j int) {
	v[i], v[j] = v[j], v[i]
}

func (v byBlockDeviceID) Less(i, j int) bool {
	return v[i].BlockDeviceID < v[j].BlockDeviceID
}
