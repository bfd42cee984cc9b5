// Copyright 2016 Storidge Inc.
// Licensed under the Apache License, Version 2.0.

package cioctl_test

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/Storidge/cio-flocker-driver/internal/cioctl"
)

type clientSuite struct {
	testing.IsolationSuite
	commands *mockRunCommand
	client   *cioctl.Client
}

var _ = gc.Suite(&clientSuite{})

func (s *clientSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.commands = &mockRunCommand{c: c}
	s.client = cioctl.NewClient("/usr/bin/cio", s.commands.run)
}

func (s *clientSuite) TearDownTest(c *gc.C) {
	s.commands.assertDrained()
	s.IsolationSuite.TearDownTest(c)
}

func (s *clientSuite) TestCreateVdisk(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vdadd", "-c", "25", "-l", "2", "-t", "ssd", "-i", "1000", "2000")
	cmd.respond("vdisk vd3 created\n", nil)

	id, err := s.client.CreateVdisk(context.Background(), cioctl.CreateParams{
		CapacityGiB: 25,
		Level:       2,
		Type:        "ssd",
		MinIOPS:     1000,
		MaxIOPS:     2000,
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(id, gc.Equals, "vd3")
}

func (s *clientSuite) TestCreateVdiskNoIOPS(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vdadd", "-c", "8", "-l", "3")
	cmd.respond("vdisk vd11 created\n", nil)

	id, err := s.client.CreateVdisk(context.Background(), cioctl.CreateParams{
		CapacityGiB: 8,
		Level:       3,
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(id, gc.Equals, "vd11")
}

func (s *clientSuite) TestCreateVdiskUnexpectedOutput(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vdadd", "-c", "8", "-l", "2")
	cmd.respond("something unexpected\n", nil)

	_, err := s.client.CreateVdisk(context.Background(), cioctl.CreateParams{
		CapacityGiB: 8,
		Level:       2,
	})
	c.Assert(err, gc.ErrorMatches, `creating vdisk: vdadd did not report a vdisk ID: "something unexpected"`)
}

func (s *clientSuite) TestVdisk(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vdinfo", "-v", "vd3")
	cmd.respond(`
vdisk: vd3
capacity: 25
level: 2
type: ssd
status: in-use
node: worker-2
device: /dev/vdisk/vd3
label: flocker-dataset-id=75c2d33c-f6ac-4f0c-9d42-e3b0e4bb1e85
label: flocker-metadata-version=1
`, nil)

	vdisk, err := s.client.Vdisk(context.Background(), "vd3")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(vdisk, jc.DeepEquals, cioctl.Vdisk{
		ID:          "vd3",
		CapacityGiB: 25,
		Level:       2,
		Type:        "ssd",
		Status:      cioctl.StatusInUse,
		Node:        "worker-2",
		Device:      "/dev/vdisk/vd3",
		Labels: map[string]string{
			"flocker-dataset-id":       "75c2d33c-f6ac-4f0c-9d42-e3b0e4bb1e85",
			"flocker-metadata-version": "1",
		},
	})
}

func (s *clientSuite) TestVdiskNotFound(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vdinfo", "-v", "vd9")
	cmd.respond("", &cioctl.Error{
		Args:     []string{"/usr/bin/cio", "vdinfo", "-v", "vd9"},
		ExitCode: 1,
		Stderr:   "vdinfo: vdisk vd9 not found\n",
	})

	_, err := s.client.Vdisk(context.Background(), "vd9")
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
	c.Assert(err, gc.ErrorMatches, `vdisk "vd9" not found`)
}

func (s *clientSuite) TestVdiskUnrecognisedStatus(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vdinfo", "-v", "vd3")
	cmd.respond("vdisk: vd3\nstatus: exploded\n", nil)

	_, err := s.client.Vdisk(context.Background(), "vd3")
	c.Assert(err, gc.ErrorMatches, `parsing vdinfo output for "vd3": unrecognised vdisk status "exploded"`)
}

func (s *clientSuite) TestVdisks(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vdlist", "--labels")
	cmd.respond("vd1\t8\tavailable\t-\t-\tflocker-dataset-id=9be58f83-200c-4924-8705-af0cac2e0a50\n"+
		"vd2\t16\tin-use\tworker-1\t/dev/vdisk/vd2\t-\n", nil)

	vdisks, err := s.client.Vdisks(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(vdisks, jc.DeepEquals, []cioctl.Vdisk{{
		ID:          "vd1",
		CapacityGiB: 8,
		Status:      cioctl.StatusAvailable,
		Labels: map[string]string{
			"flocker-dataset-id": "9be58f83-200c-4924-8705-af0cac2e0a50",
		},
	}, {
		ID:          "vd2",
		CapacityGiB: 16,
		Status:      cioctl.StatusInUse,
		Node:        "worker-1",
		Device:      "/dev/vdisk/vd2",
		Labels:      map[string]string{},
	}})
}

func (s *clientSuite) TestVdisksUnexpectedLine(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vdlist", "--labels")
	cmd.respond("vd1\t8\tavailable\n", nil)

	_, err := s.client.Vdisks(context.Background())
	c.Assert(err, gc.ErrorMatches, `parsing vdlist output: unexpected line "vd1\\\\t8\\\\tavailable"`)
}

func (s *clientSuite) TestLabelVdisk(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vdlabel", "vd3",
		"flocker-cluster-id=cluster", "flocker-dataset-id=dataset")
	cmd.respond("", nil)

	err := s.client.LabelVdisk(context.Background(), "vd3", map[string]string{
		"flocker-dataset-id": "dataset",
		"flocker-cluster-id": "cluster",
	})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *clientSuite) TestLabelVdiskNoLabels(c *gc.C) {
	err := s.client.LabelVdisk(context.Background(), "vd3", nil)
	c.Assert(err, jc.ErrorIsNil)
}

func (s *clientSuite) TestAttachVdisk(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vdattach", "vd3", "-n", "worker-2")
	cmd.respond("", nil)

	err := s.client.AttachVdisk(context.Background(), "vd3", "worker-2")
	c.Assert(err, jc.ErrorIsNil)
}

func (s *clientSuite) TestDetachVdisk(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vddetach", "vd3")
	cmd.respond("", nil)

	err := s.client.DetachVdisk(context.Background(), "vd3")
	c.Assert(err, jc.ErrorIsNil)
}

func (s *clientSuite) TestRemoveVdisk(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vdremove", "vd3", "-y")
	cmd.respond("", nil)

	err := s.client.RemoveVdisk(context.Background(), "vd3")
	c.Assert(err, jc.ErrorIsNil)
}

func (s *clientSuite) TestRemoveVdiskNotFound(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vdremove", "vd9", "-y")
	cmd.respond("", &cioctl.Error{
		Args:     []string{"/usr/bin/cio", "vdremove", "vd9", "-y"},
		ExitCode: 1,
		Stderr:   "vdremove: no such vdisk\n",
	})

	err := s.client.RemoveVdisk(context.Background(), "vd9")
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *clientSuite) TestNodeName(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "node", "info")
	cmd.respond("nodename: worker-1\nstatus: normal\n", nil)

	name, err := s.client.NodeName(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(name, gc.Equals, "worker-1")
}

func (s *clientSuite) TestNodeNameMissing(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "node", "info")
	cmd.respond("status: normal\n", nil)

	_, err := s.client.NodeName(context.Background())
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *clientSuite) TestCommandError(c *gc.C) {
	cmd := s.commands.expect("/usr/bin/cio", "vddetach", "vd3")
	cmd.respond("", &cioctl.Error{
		Args:     []string{"/usr/bin/cio", "vddetach", "vd3"},
		ExitCode: 2,
		Stderr:   "vddetach: storage cluster not responding\n",
	})

	err := s.client.DetachVdisk(context.Background(), "vd3")
	c.Assert(err, gc.ErrorMatches, `detaching vdisk "vd3": cio vddetach vd3: vddetach: storage cluster not responding`)
}
