// Copyright 2016 Storidge Inc.
// Licensed under the Apache License, Version 2.0.

// Package cioctl wraps the cio command-line tool. All interaction
// with the CIO storage cluster goes through the tool; this package
// owns the argument construction and output parsing, and nothing
// else. Callers get back parsed vdisk records and typed errors.
package cioctl

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("cio.cioctl")

// DefaultBinary is the path of the cio tool on CIO cluster nodes.
const DefaultBinary = "/usr/bin/cio"

// RunCommandFunc is a function type used for running commands on the
// local machine. It is injected into Client so tests can substitute
// canned responses.
type RunCommandFunc func(ctx context.Context, command string, args ...string) (string, error)

// Error describes a cio invocation that exited non-zero.
type Error struct {
	// Args is the full argument vector, binary included.
	Args []string

	// ExitCode is the tool's exit status, or -1 if it did not run.
	ExitCode int

	// Stderr is the captured standard error output.
	Stderr string
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", e.ExitCode)
	}
	return fmt.Sprintf("cio %s: %s", strings.Join(e.Args[1:], " "), msg)
}

// runCommand is the default RunCommandFunc, executing the command
// with stderr captured for error reporting.
func runCommand(ctx context.Context, command string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return "", &Error{
			Args:     append([]string{command}, args...),
			ExitCode: exitCode,
			Stderr:   stderr.String(),
		}
	}
	return string(out), nil
}

// Client invokes the cio tool.
type Client struct {
	binary string
	run    RunCommandFunc
}

// NewClient returns a Client invoking the given cio binary. An empty
// binary selects DefaultBinary; a nil run func selects the real
// subprocess runner.
func NewClient(binary string, run RunCommandFunc) *Client {
	if binary == "" {
		binary = DefaultBinary
	}
	if run == nil {
		run = runCommand
	}
	return &Client{binary: binary, run: run}
}

// vdiskNotFoundRegexp matches the tool's stderr for operations naming
// a vdisk that does not exist.
var vdiskNotFoundRegexp = regexp.MustCompile(`(?i)(no such vdisk|vdisk .* not found)`)

func (c *Client) command(ctx context.Context, args ...string) (string, error) {
	logger.Tracef("running %s %s", c.binary, strings.Join(args, " "))
	out, err := c.run(ctx, c.binary, args...)
	if err != nil {
		if cioErr, ok := err.(*Error); ok && vdiskNotFoundRegexp.MatchString(cioErr.Stderr) {
			return "", errors.NewNotFound(err, "")
		}
		return "", errors.Trace(err)
	}
	return out, nil
}

// vdaddCreatedRegexp extracts the vdisk ID from vdadd output, e.g.
// "vdisk vd3 created".
var vdaddCreatedRegexp = regexp.MustCompile(`(?m)^vdisk\s+(\S+)\s+created$`)

// CreateParams holds the parameters for creating a vdisk.
type CreateParams struct {
	// CapacityGiB is the vdisk capacity, in GiB.
	CapacityGiB uint64

	// Level is the redundancy level.
	Level int

	// Type is the backing media type (e.g. "ssd").
	Type string

	// MinIOPS and MaxIOPS bound the vdisk's provisioned IOPS.
	// Both zero means no IOPS provisioning.
	MinIOPS int
	MaxIOPS int
}

// CreateVdisk creates a new vdisk and returns its ID.
func (c *Client) CreateVdisk(ctx context.Context, params CreateParams) (string, error) {
	args := []string{
		"vdadd",
		"-c", strconv.FormatUint(params.CapacityGiB, 10),
		"-l", strconv.Itoa(params.Level),
	}
	if params.Type != "" {
		args = append(args, "-t", params.Type)
	}
	if params.MinIOPS != 0 || params.MaxIOPS != 0 {
		args = append(args, "-i", strconv.Itoa(params.MinIOPS), strconv.Itoa(params.MaxIOPS))
	}
	out, err := c.command(ctx, args...)
	if err != nil {
		return "", errors.Annotate(err, "creating vdisk")
	}
	match := vdaddCreatedRegexp.FindStringSubmatch(out)
	if match == nil {
		return "", errors.Errorf("vdadd did not report a vdisk ID: %q", strings.TrimSpace(out))
	}
	return match[1], nil
}

// Vdisk returns the named vdisk's details. It returns an error
// satisfying errors.IsNotFound if the vdisk does not exist.
func (c *Client) Vdisk(ctx context.Context, id string) (Vdisk, error) {
	out, err := c.command(ctx, "vdinfo", "-v", id)
	if err != nil {
		if errors.IsNotFound(err) {
			return Vdisk{}, errors.NotFoundf("vdisk %q", id)
		}
		return Vdisk{}, errors.Trace(err)
	}
	vdisk, err := parseVdiskInfo(out)
	if err != nil {
		return Vdisk{}, errors.Annotatef(err, "parsing vdinfo output for %q", id)
	}
	return vdisk, nil
}

// Vdisks returns all vdisks in the CIO cluster, labels included.
func (c *Client) Vdisks(ctx context.Context) ([]Vdisk, error) {
	out, err := c.command(ctx, "vdlist", "--labels")
	if err != nil {
		return nil, errors.Annotate(err, "listing vdisks")
	}
	vdisks, err := parseVdiskList(out)
	if err != nil {
		return nil, errors.Annotate(err, "parsing vdlist output")
	}
	return vdisks, nil
}

// LabelVdisk sets the given labels on a vdisk, replacing any previous
// values for the same keys.
func (c *Client) LabelVdisk(ctx context.Context, id string, labels map[string]string) error {
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := []string{"vdlabel", id}
	for _, key := range keys {
		args = append(args, key+"="+labels[key])
	}
	if _, err := c.command(ctx, args...); err != nil {
		return errors.Annotatef(err, "labelling vdisk %q", id)
	}
	return nil
}

// AttachVdisk attaches a vdisk to the named node.
func (c *Client) AttachVdisk(ctx context.Context, id, node string) error {
	if _, err := c.command(ctx, "vdattach", id, "-n", node); err != nil {
		return errors.Annotatef(err, "attaching vdisk %q to %q", id, node)
	}
	return nil
}

// DetachVdisk detaches a vdisk from whichever node it is attached to.
func (c *Client) DetachVdisk(ctx context.Context, id string) error {
	if _, err := c.command(ctx, "vddetach", id); err != nil {
		return errors.Annotatef(err, "detaching vdisk %q", id)
	}
	return nil
}

// RemoveVdisk removes a vdisk. It returns an error satisfying
// errors.IsNotFound if the vdisk does not exist.
func (c *Client) RemoveVdisk(ctx context.Context, id string) error {
	if _, err := c.command(ctx, "vdremove", id, "-y"); err != nil {
		if errors.IsNotFound(err) {
			return errors.NotFoundf("vdisk %q", id)
		}
		return errors.Annotatef(err, "removing vdisk %q", id)
	}
	return nil
}

// NodeName returns the CIO node name of the local machine.
func (c *Client) NodeName(ctx context.Context) (string, error) {
	out, err := c.command(ctx, "node", "info")
	if err != nil {
		return "", errors.Annotate(err, "querying node info")
	}
	fields, err := parseFields(out)
	if err != nil {
		return "", errors.Annotate(err, "parsing node info output")
	}
	name, ok := fields["nodename"]
	if !ok || name == "" {
		return "", errors.NotFoundf("nodename in node info output")
	}
	return name, nil
}
