// Copyright 2016 Storidge Inc.
// Licensed under the Apache License, Version 2.0.

package cio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"

	"github.com/Storidge/cio-flocker-driver/blockdevice"
)

// devFuncs is used to allow the real device node operations to be
// stubbed out for testing.
type devFuncs interface {
	lstat(path string) (os.FileInfo, error)
	readDir(path string) ([]os.DirEntry, error)
}

// The real device node related functions.
type osDevFuncs struct{}

func (osDevFuncs) lstat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

func (osDevFuncs) readDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

// discoverDevice looks for a device node for the given vdisk under
// the directory of the expected device path. It returns the path of
// a matching node, or empty if none is present.
func discoverDevice(devs devFuncs, expected, vdiskID string) (string, error) {
	dir := filepath.Dir(expected)
	entries, err := devs.readDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Annotatef(err, "scanning %q", dir)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), vdiskID) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", nil
}

// verifyDevice checks that the device node the backend reported is
// the one that actually surfaced. A volume surfacing at a different
// node indicates a misunderstanding of the backend's device
// assignment rules, and must not be silently accepted.
func verifyDevice(devs devFuncs, expected, vdiskID string) error {
	if _, err := devs.lstat(expected); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Annotatef(err, "inspecting device %q", expected)
	}
	discovered, err := discoverDevice(devs, expected, vdiskID)
	if err != nil {
		return errors.Trace(err)
	}
	return blockdevice.NewAttachedUnexpectedDevice(expected, discovered)
}
