// Copyright 2016 Storidge Inc.
// Licensed under the Apache License, Version 2.0.

package blockdevice_test

import (
	"github.com/google/uuid"
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/Storidge/cio-flocker-driver/blockdevice"
)

type volumeSuite struct{}

var _ = gc.Suite(&volumeSuite{})

func (s *volumeSuite) TestSortVolumes(c *gc.C) {
	volumes := []blockdevice.Volume{
		{BlockDeviceID: "vd7"},
		{BlockDeviceID: "vd1"},
		{BlockDeviceID: "vd3"},
	}
	blockdevice.SortVolumes(volumes)
	var ids []string
	for _, v := range volumes {
		ids = append(ids, v.BlockDeviceID)
	}
	c.Assert(ids, jc.DeepEquals, []string{"vd1", "vd3", "vd7"})
}

func (s *volumeSuite) TestVolumeAttached(c *gc.C) {
	v := blockdevice.Volume{
		BlockDeviceID: "vd1",
		Size:          8589934592,
		AttachedTo:    "worker-1",
		DatasetID:     uuid.MustParse("7b12e7bc-73ec-4b8a-8e3f-2f54d2fd3e40"),
	}
	c.Assert(v.AttachedTo, gc.Equals, "worker-1")
}

type errorsSuite struct{}

var _ = gc.Suite(&errorsSuite{})

func (s *errorsSuite) TestUnknownVolume(c *gc.C) {
	err := blockdevice.NewUnknownVolume("vd9")
	c.Assert(err, gc.ErrorMatches, `unknown volume "vd9"`)
	c.Assert(blockdevice.IsUnknownVolume(err), jc.IsTrue)
	c.Assert(blockdevice.IsUnknownVolume(errors.New("nope")), jc.IsFalse)
}

func (s *errorsSuite) TestUnknownVolumeTraced(c *gc.C) {
	err := errors.Trace(blockdevice.NewUnknownVolume("vd9"))
	c.Assert(blockdevice.IsUnknownVolume(err), jc.IsTrue)
}

func (s *errorsSuite) TestAlreadyAttachedVolume(c *gc.C) {
	err := blockdevice.NewAlreadyAttachedVolume("vd2")
	c.Assert(err, gc.ErrorMatches, `volume "vd2" is already attached`)
	c.Assert(blockdevice.IsAlreadyAttachedVolume(err), jc.IsTrue)
	c.Assert(blockdevice.IsUnknownVolume(err), jc.IsFalse)
}

func (s *errorsSuite) TestUnattachedVolume(c *gc.C) {
	err := blockdevice.NewUnattachedVolume("vd2")
	c.Assert(err, gc.ErrorMatches, `volume "vd2" is not attached`)
	c.Assert(blockdevice.IsUnattachedVolume(err), jc.IsTrue)
}

func (s *errorsSuite) TestAttachedUnexpectedDevice(c *gc.C) {
	err := blockdevice.NewAttachedUnexpectedDevice("/dev/vdisk/vd1", "/dev/vdisk/vd2")
	c.Assert(err, gc.ErrorMatches,
		`volume attached at unexpected device: requested "/dev/vdisk/vd1", discovered "/dev/vdisk/vd2"`)
	c.Assert(blockdevice.IsAttachedUnexpectedDevice(err), jc.IsTrue)
}

func (s *errorsSuite) TestVolumeAttachedElsewhere(c *gc.C) {
	err := blockdevice.NewVolumeAttachedElsewhere("vd1", "worker-2", "worker-1")
	c.Assert(err, gc.ErrorMatches,
		`volume "vd1" is attached to "worker-2", not to "worker-1"`)
	c.Assert(blockdevice.IsVolumeAttachedElsewhere(err), jc.IsTrue)
}
