// Copyright 2016 Storidge Inc.
// Licensed under the Apache License, Version 2.0.

package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/juju/ansiterm"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/Storidge/cio-flocker-driver/blockdevice"
)

func formatVolumes(writer io.Writer, volumes []blockdevice.Volume, format string) error {
	switch format {
	case "tabular":
		return formatVolumesTabular(writer, volumes)
	case "yaml":
		return formatVolumesYAML(writer, volumes)
	}
	return errors.Errorf("unknown format %q", format)
}

func formatVolumesTabular(writer io.Writer, volumes []blockdevice.Volume) error {
	tw := ansiterm.NewTabWriter(writer, 0, 1, 2, ' ', 0)
	fmt.Fprintln(tw, "VOLUME\tSIZE\tATTACHED TO\tDATASET")
	for _, volume := range volumes {
		attachedTo := volume.AttachedTo
		if attachedTo == "" {
			attachedTo = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			volume.BlockDeviceID,
			humanize.IBytes(volume.Size),
			attachedTo,
			volume.DatasetID,
		)
	}
	return tw.Flush()
}

// volumeYAML is the yaml rendering of a volume. uuid.UUID marshals
// as a byte array, so the dataset ID is rendered via its string form.
type volumeYAML struct {
	BlockDeviceID string `yaml:"blockdevice-id"`
	Size          uint64 `yaml:"size"`
	AttachedTo    string `yaml:"attached-to,omitempty"`
	DatasetID     string `yaml:"dataset-id"`
}

func formatVolumesYAML(writer io.Writer, volumes []blockdevice.Volume) error {
	out := make([]volumeYAML, len(volumes))
	for i, volume := range volumes {
		out[i] = volumeYAML{
			BlockDeviceID: volume.BlockDeviceID,
			Size:          volume.Size,
			AttachedTo:    volume.AttachedTo,
			DatasetID:     volume.DatasetID.String(),
		}
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = writer.Write(data)
	return err
}
