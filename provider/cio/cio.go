// Copyright 2016 Storidge Inc.
// Licensed under the Apache License, Version 2.0.

// Package cio implements the block-device provider contract on top
// of a Storidge CIO storage cluster. Volumes are CIO vdisks; the
// driver stamps each vdisk it creates with sidecar labels recording
// the dataset ID and cluster membership, and drives the vdisk state
// machine through the cio command-line tool.
package cio

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"

	"github.com/Storidge/cio-flocker-driver/blockdevice"
	"github.com/Storidge/cio-flocker-driver/config"
	"github.com/Storidge/cio-flocker-driver/internal/cioctl"
	"github.com/Storidge/cio-flocker-driver/internal/instanceid"
)

var logger = loggo.GetLogger("cio.provider")

// Vdisk labels recording the orchestration framework's sidecar
// metadata. The names and the version value are fixed by the
// framework's metadata format.
const (
	datasetIDLabel       = "flocker-dataset-id"
	metadataVersionLabel = "flocker-metadata-version"
	clusterIDLabel       = "flocker-cluster-id"
	metadataVersion      = "1"
)

const (
	gib = 1024 * 1024 * 1024

	// allocationUnit is the vdisk allocation unit. Requested sizes
	// are rounded up to a multiple of this.
	allocationUnit = 8 * gib
)

var (
	waitDelay       = 1 * time.Second
	waitMaxDelay    = 15 * time.Second
	waitMaxDuration = 2 * time.Minute
)

// vdiskDefaults holds the provisioning parameters applied to every
// created vdisk.
type vdiskDefaults struct {
	redundancy int
	vdiskType  string
	minIOPS    int
	maxIOPS    int
}

type api struct {
	cio      *cioctl.Client
	instance instanceid.Resolver
	clock    clock.Clock
	devs     devFuncs

	clusterID uuid.UUID
	defaults  vdiskDefaults

	// attachMu serializes attach operations: device node discovery
	// must not observe nodes surfacing for a concurrent attach.
	attachMu sync.Mutex
}

var _ blockdevice.API = (*api)(nil)

// NewAPI returns a blockdevice.API backed by the CIO cluster the
// local node belongs to.
func NewAPI(ctx context.Context, cfg *config.Config) (blockdevice.API, error) {
	client := cioctl.NewClient(cfg.CIOPath(), nil)
	resolver, err := newResolver(ctx, cfg, client)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return newAPI(client, resolver, cfg.ClusterID(), clock.WallClock, vdiskDefaults{
		redundancy: cfg.Redundancy(),
		vdiskType:  cfg.VdiskType(),
		minIOPS:    cfg.MinIOPS(),
		maxIOPS:    cfg.MaxIOPS(),
	}, osDevFuncs{}), nil
}

func newResolver(ctx context.Context, cfg *config.Config, client *cioctl.Client) (instanceid.Resolver, error) {
	switch cfg.InstanceSource() {
	case config.InstanceSourceMetadata:
		return instanceid.NewIMDSResolver(ctx)
	case config.InstanceSourceNode:
		return instanceid.NewNodeResolver(client), nil
	case config.InstanceSourceHostname:
		return instanceid.NewHostnameResolver(), nil
	}
	resolvers := make([]instanceid.Resolver, 0, 3)
	imdsResolver, err := instanceid.NewIMDSResolver(ctx)
	if err != nil {
		logger.Debugf("instance metadata unavailable: %v", err)
	} else {
		resolvers = append(resolvers, imdsResolver)
	}
	resolvers = append(resolvers,
		instanceid.NewNodeResolver(client),
		instanceid.NewHostnameResolver(),
	)
	return instanceid.NewChain(resolvers...), nil
}

func newAPI(
	cio *cioctl.Client,
	instance instanceid.Resolver,
	clusterID uuid.UUID,
	clk clock.Clock,
	defaults vdiskDefaults,
	devs devFuncs,
) *api {
	return &api{
		cio:       cio,
		instance:  instance,
		clock:     clk,
		devs:      devs,
		clusterID: clusterID,
		defaults:  defaults,
	}
}

// AllocationUnit is part of the blockdevice.API interface.
func (a *api) AllocationUnit() uint64 {
	return allocationUnit
}

// ComputeInstanceID is part of the blockdevice.API interface.
func (a *api) ComputeInstanceID(ctx context.Context) (string, error) {
	id, err := a.instance.InstanceID(ctx)
	if err != nil {
		return "", errors.Trace(err)
	}
	return id, nil
}

// CreateVolume is part of the blockdevice.API interface.
func (a *api) CreateVolume(ctx context.Context, datasetID uuid.UUID, size uint64) (blockdevice.Volume, error) {
	capacityGiB := roundToAllocationUnit(size) / gib
	id, err := a.cio.CreateVdisk(ctx, cioctl.CreateParams{
		CapacityGiB: capacityGiB,
		Level:       a.defaults.redundancy,
		Type:        a.defaults.vdiskType,
		MinIOPS:     a.defaults.minIOPS,
		MaxIOPS:     a.defaults.maxIOPS,
	})
	if err != nil {
		return blockdevice.Volume{}, errors.Trace(err)
	}
	logger.Debugf("created vdisk %q for dataset %s", id, datasetID)

	// Stamp the vdisk with the sidecar metadata before anything can
	// list it as a cluster volume.
	err = a.cio.LabelVdisk(ctx, id, map[string]string{
		metadataVersionLabel: metadataVersion,
		clusterIDLabel:       a.clusterID.String(),
		datasetIDLabel:       datasetID.String(),
	})
	if err != nil {
		a.removeBestEffort(ctx, id)
		return blockdevice.Volume{}, errors.Trace(err)
	}

	created, err := a.waitVdisk(ctx, id, func(v cioctl.Vdisk) (bool, error) {
		switch v.Status {
		case cioctl.StatusCreating:
			return false, nil
		case cioctl.StatusError:
			return false, errors.Errorf("vdisk %q entered error state", id)
		}
		return true, nil
	})
	if err != nil {
		a.removeBestEffort(ctx, id)
		return blockdevice.Volume{}, errors.Annotate(err, "waiting for vdisk to be provisioned")
	}
	return volumeFromVdisk(created)
}

// ListVolumes is part of the blockdevice.API interface.
func (a *api) ListVolumes(ctx context.Context) ([]blockdevice.Volume, error) {
	vdisks, err := a.cio.Vdisks(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	volumes := make([]blockdevice.Volume, 0, len(vdisks))
	datasets := set.NewStrings()
	for _, vdisk := range vdisks {
		if !a.isClusterVolume(vdisk) {
			continue
		}
		volume, err := volumeFromVdisk(vdisk)
		if err != nil {
			// A cluster-labelled vdisk without a parseable dataset
			// ID cannot be converged; surface it in the logs rather
			// than fail every listing.
			logger.Warningf("ignoring vdisk %q: %v", vdisk.ID, err)
			continue
		}
		if datasets.Contains(volume.DatasetID.String()) {
			logger.Warningf("multiple volumes found for dataset %s", volume.DatasetID)
		}
		datasets.Add(volume.DatasetID.String())
		volumes = append(volumes, volume)
	}
	blockdevice.SortVolumes(volumes)
	return volumes, nil
}

// AttachVolume is part of the blockdevice.API interface.
func (a *api) AttachVolume(ctx context.Context, blockdeviceID, attachTo string) (blockdevice.Volume, error) {
	a.attachMu.Lock()
	defer a.attachMu.Unlock()

	vdisk, err := a.vdisk(ctx, blockdeviceID)
	if err != nil {
		return blockdevice.Volume{}, errors.Trace(err)
	}
	if vdisk.Status == cioctl.StatusInUse || vdisk.Node != "" {
		return blockdevice.Volume{}, blockdevice.NewAlreadyAttachedVolume(blockdeviceID)
	}
	if vdisk.Status != cioctl.StatusAvailable {
		// A vdisk must be available before it can be attached.
		if _, err := a.waitVdisk(ctx, blockdeviceID, func(v cioctl.Vdisk) (bool, error) {
			return v.Status == cioctl.StatusAvailable, nil
		}); err != nil {
			return blockdevice.Volume{}, errors.Annotate(err, "waiting for vdisk to become available")
		}
	}
	if err := a.cio.AttachVdisk(ctx, blockdeviceID, attachTo); err != nil {
		return blockdevice.Volume{}, errors.Trace(err)
	}
	attached, err := a.waitVdisk(ctx, blockdeviceID, func(v cioctl.Vdisk) (bool, error) {
		return v.Status == cioctl.StatusInUse && v.Device != "", nil
	})
	if err != nil {
		return blockdevice.Volume{}, errors.Annotate(err, "waiting for vdisk to attach")
	}
	if attached.Node != attachTo {
		return blockdevice.Volume{}, errors.Errorf(
			"vdisk %q attached to node %q, expected %q",
			blockdeviceID, attached.Node, attachTo,
		)
	}
	if err := a.verifyLocalDevice(ctx, attached, attachTo); err != nil {
		return blockdevice.Volume{}, errors.Trace(err)
	}
	return volumeFromVdisk(attached)
}

// verifyLocalDevice checks the attached vdisk's device node when the
// attachment target is the local instance. Remote attachments cannot
// be verified from here.
func (a *api) verifyLocalDevice(ctx context.Context, vdisk cioctl.Vdisk, attachTo string) error {
	local, err := a.instance.InstanceID(ctx)
	if err != nil {
		logger.Warningf("cannot resolve local instance ID, skipping device verification: %v", err)
		return nil
	}
	if attachTo != local {
		return nil
	}
	return verifyDevice(a.devs, vdisk.Device, vdisk.ID)
}

// DetachVolume is part of the blockdevice.API interface.
func (a *api) DetachVolume(ctx context.Context, blockdeviceID string) error {
	vdisk, err := a.vdisk(ctx, blockdeviceID)
	if err != nil {
		return errors.Trace(err)
	}
	if vdisk.Status != cioctl.StatusInUse {
		return blockdevice.NewUnattachedVolume(blockdeviceID)
	}
	if err := a.cio.DetachVdisk(ctx, blockdeviceID); err != nil {
		return errors.Trace(err)
	}
	if _, err := a.waitVdisk(ctx, blockdeviceID, func(v cioctl.Vdisk) (bool, error) {
		return v.Status == cioctl.StatusAvailable, nil
	}); err != nil {
		return errors.Annotate(err, "waiting for vdisk to detach")
	}
	return nil
}

// DestroyVolume is part of the blockdevice.API interface.
func (a *api) DestroyVolume(ctx context.Context, blockdeviceID string) error {
	vdisk, err := a.vdisk(ctx, blockdeviceID)
	if err != nil {
		return errors.Trace(err)
	}
	// Vdisks must not be in use when removed. The vdisk may still be
	// attached when the instance using it is being torn down.
	if vdisk.Status == cioctl.StatusInUse {
		logger.Debugf("detaching vdisk %q before destroying", blockdeviceID)
		if err := a.cio.DetachVdisk(ctx, blockdeviceID); err != nil {
			return errors.Annotate(err, "detaching vdisk before destroying")
		}
		if _, err := a.waitVdisk(ctx, blockdeviceID, func(v cioctl.Vdisk) (bool, error) {
			return v.Status == cioctl.StatusAvailable, nil
		}); err != nil {
			if errors.IsNotFound(err) {
				// Someone else destroyed it; job done.
				return nil
			}
			return errors.Annotate(err, "waiting for vdisk to detach")
		}
	}
	if err := a.cio.RemoveVdisk(ctx, blockdeviceID); err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return errors.Trace(err)
	}
	// Wait for the vdisk to go away so a subsequent create for the
	// same dataset cannot observe the deleting vdisk.
	_, err = a.waitVdisk(ctx, blockdeviceID, func(v cioctl.Vdisk) (bool, error) {
		return false, nil
	})
	if err == nil {
		return errors.Errorf("vdisk %q still present after removal", blockdeviceID)
	}
	if errors.IsNotFound(err) {
		return nil
	}
	return errors.Annotate(err, "waiting for vdisk removal")
}

// GetDevicePath is part of the blockdevice.API interface.
func (a *api) GetDevicePath(ctx context.Context, blockdeviceID string) (string, error) {
	vdisk, err := a.vdisk(ctx, blockdeviceID)
	if err != nil {
		return "", errors.Trace(err)
	}
	if vdisk.Node == "" {
		return "", blockdevice.NewUnattachedVolume(blockdeviceID)
	}
	local, err := a.instance.InstanceID(ctx)
	if err != nil {
		return "", errors.Trace(err)
	}
	if vdisk.Node != local {
		return "", blockdevice.NewVolumeAttachedElsewhere(blockdeviceID, vdisk.Node, local)
	}
	if vdisk.Device == "" {
		return "", errors.Errorf("vdisk %q reports no device node", blockdeviceID)
	}
	if err := verifyDevice(a.devs, vdisk.Device, vdisk.ID); err != nil {
		return "", errors.Trace(err)
	}
	return vdisk.Device, nil
}

// vdisk looks up a vdisk, translating the tool's not-found into the
// contract's UnknownVolume.
func (a *api) vdisk(ctx context.Context, blockdeviceID string) (cioctl.Vdisk, error) {
	vdisk, err := a.cio.Vdisk(ctx, blockdeviceID)
	if errors.IsNotFound(err) {
		return cioctl.Vdisk{}, blockdevice.NewUnknownVolume(blockdeviceID)
	}
	if err != nil {
		return cioctl.Vdisk{}, errors.Trace(err)
	}
	return vdisk, nil
}

var errStillWaiting = errors.New("still waiting")

// waitVdisk polls the vdisk until pred is satisfied. Lookup errors,
// not-found included, are fatal and returned to the caller.
func (a *api) waitVdisk(ctx context.Context, id string, pred func(cioctl.Vdisk) (bool, error)) (cioctl.Vdisk, error) {
	var vdisk cioctl.Vdisk
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			v, err := a.cio.Vdisk(ctx, id)
			if err != nil {
				return errors.Trace(err)
			}
			vdisk = v
			ok, err := pred(v)
			if err != nil {
				return errors.Trace(err)
			}
			if !ok {
				return errStillWaiting
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return errors.Cause(err) != errStillWaiting
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Tracef("waiting for vdisk %q (attempt %d)", id, attempt)
		},
		Attempts:    -1,
		Delay:       waitDelay,
		MaxDelay:    waitMaxDelay,
		MaxDuration: waitMaxDuration,
		BackoffFunc: retry.DoubleDelay,
		Clock:       a.clock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		if retry.IsDurationExceeded(err) {
			return vdisk, errors.Errorf("timed out waiting for vdisk %q", id)
		}
		return vdisk, errors.Trace(err)
	}
	return vdisk, nil
}

// removeBestEffort removes a half-created vdisk. Failures are logged,
// not returned: the caller is already reporting the original error.
func (a *api) removeBestEffort(ctx context.Context, id string) {
	if err := a.cio.RemoveVdisk(ctx, id); err != nil && !errors.IsNotFound(err) {
		logger.Warningf("cleaning up vdisk %q: %v", id, err)
	}
}

func (a *api) isClusterVolume(vdisk cioctl.Vdisk) bool {
	label, ok := vdisk.Labels[clusterIDLabel]
	if !ok {
		return false
	}
	clusterID, err := uuid.Parse(label)
	if err != nil {
		return false
	}
	return clusterID == a.clusterID
}

func volumeFromVdisk(vdisk cioctl.Vdisk) (blockdevice.Volume, error) {
	datasetID, err := uuid.Parse(vdisk.Labels[datasetIDLabel])
	if err != nil {
		return blockdevice.Volume{}, errors.Annotatef(err, "vdisk %q has no usable dataset ID label", vdisk.ID)
	}
	return blockdevice.Volume{
		BlockDeviceID: vdisk.ID,
		Size:          vdisk.CapacityGiB * gib,
		AttachedTo:    vdisk.Node,
		DatasetID:     datasetID,
	}, nil
}

// roundToAllocationUnit rounds size up to a whole number of
// allocation units.
func roundToAllocationUnit(size uint64) uint64 {
	if size == 0 {
		return allocationUnit
	}
	units := (size + allocationUnit - 1) / allocationUnit
	return units * allocationUnit
}
