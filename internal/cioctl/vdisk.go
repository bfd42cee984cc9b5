// Copyright 2016 Storidge Inc.
// Licensed under the Apache License, Version 2.0.

package cioctl

import (
	"strconv"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

// Status is the lifecycle state of a vdisk, as reported by the tool.
type Status string

const (
	StatusCreating  Status = "creating"
	StatusAvailable Status = "available"
	StatusInUse     Status = "in-use"
	StatusDeleting  Status = "deleting"
	StatusError     Status = "error"
)

var knownStatuses = set.NewStrings(
	string(StatusCreating),
	string(StatusAvailable),
	string(StatusInUse),
	string(StatusDeleting),
	string(StatusError),
)

// Vdisk describes a CIO virtual disk.
type Vdisk struct {
	// ID is the vdisk identifier, e.g. "vd3".
	ID string

	// CapacityGiB is the vdisk capacity, in GiB.
	CapacityGiB uint64

	// Level is the redundancy level.
	Level int

	// Type is the backing media type.
	Type string

	// Status is the vdisk's lifecycle state.
	Status Status

	// Node is the CIO node the vdisk is attached to, or empty.
	Node string

	// Device is the device node path on the attached node, or empty.
	Device string

	// Labels holds the vdisk's sidecar labels.
	Labels map[string]string
}

func parseStatus(s string) (Status, error) {
	if !knownStatuses.Contains(s) {
		return "", errors.Errorf("unrecognised vdisk status %q", s)
	}
	return Status(s), nil
}

// parseFields parses "key: value" lines, as printed by vdinfo and
// node info. Repeated keys keep the last value; vdinfo label lines
// are handled separately by parseVdiskInfo.
func parseFields(out string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, errors.Errorf("unexpected line %q", line)
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return fields, nil
}

// parseVdiskInfo parses vdinfo output of the form:
//
//	vdisk: vd3
//	capacity: 25
//	level: 2
//	type: ssd
//	status: in-use
//	node: worker-2
//	device: /dev/vdisk/vd3
//	label: flocker-dataset-id=...
//
// capacity is in GiB. node, device and label lines are only present
// when applicable.
func parseVdiskInfo(out string) (Vdisk, error) {
	vdisk := Vdisk{Labels: make(map[string]string)}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return Vdisk{}, errors.Errorf("unexpected line %q", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "vdisk":
			vdisk.ID = value
		case "capacity":
			capacity, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return Vdisk{}, errors.Annotatef(err, "parsing capacity %q", value)
			}
			vdisk.CapacityGiB = capacity
		case "level":
			level, err := strconv.Atoi(value)
			if err != nil {
				return Vdisk{}, errors.Annotatef(err, "parsing level %q", value)
			}
			vdisk.Level = level
		case "type":
			vdisk.Type = value
		case "status":
			status, err := parseStatus(value)
			if err != nil {
				return Vdisk{}, errors.Trace(err)
			}
			vdisk.Status = status
		case "node":
			vdisk.Node = value
		case "device":
			vdisk.Device = value
		case "label":
			name, labelValue, ok := strings.Cut(value, "=")
			if !ok {
				return Vdisk{}, errors.Errorf("unexpected label %q", value)
			}
			vdisk.Labels[name] = labelValue
		default:
			// Newer tool versions may add fields; ignore them.
		}
	}
	if vdisk.ID == "" {
		return Vdisk{}, errors.New("vdinfo output missing vdisk ID")
	}
	if vdisk.Status == "" {
		return Vdisk{}, errors.New("vdinfo output missing status")
	}
	return vdisk, nil
}

// vdlistFieldCount is the number of tab-separated fields per vdlist
// --labels line: id, capacity, status, node, device, labels. Empty
// node, device and labels fields are printed as "-".
const vdlistFieldCount = 6

// parseVdiskList parses vdlist --labels output, one vdisk per line.
func parseVdiskList(out string) ([]Vdisk, error) {
	var vdisks []Vdisk
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != vdlistFieldCount {
			return nil, errors.Errorf("unexpected line %q", line)
		}
		capacity, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, errors.Annotatef(err, "parsing capacity %q", fields[1])
		}
		status, err := parseStatus(fields[2])
		if err != nil {
			return nil, errors.Trace(err)
		}
		vdisk := Vdisk{
			ID:          fields[0],
			CapacityGiB: capacity,
			Status:      status,
			Node:        dashEmpty(fields[3]),
			Device:      dashEmpty(fields[4]),
			Labels:      make(map[string]string),
		}
		if labels := dashEmpty(fields[5]); labels != "" {
			for _, label := range strings.Split(labels, ",") {
				name, value, ok := strings.Cut(label, "=")
				if !ok {
					return nil, errors.Errorf("unexpected label %q", label)
				}
				vdisk.Labels[name] = value
			}
		}
		vdisks = append(vdisks, vdisk)
	}
	return vdisks, nil
}

// The tool prints "-" for fields with no value.
func dashEmpty(s string) string {
	if s == "-" {
		return ""
	}
	return s
}
