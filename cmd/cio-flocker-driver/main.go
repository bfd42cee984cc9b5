// Copyright 2016 Storidge Inc.
// Licensed under the Apache License, Version 2.0.

// cio-flocker-driver is an operator tool exposing the driver's
// block-device operations for inspection and repair. The
// orchestration framework drives the same operations through the
// blockdevice API; this tool exists so an operator can do by hand
// what the framework does by convergence.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"

	"github.com/Storidge/cio-flocker-driver/blockdevice"
	"github.com/Storidge/cio-flocker-driver/config"
	"github.com/Storidge/cio-flocker-driver/provider/cio"
)

const defaultConfigPath = "/etc/flocker/cio.yaml"

const usageDoc = `usage: cio-flocker-driver [options] <command> [args]

commands:
    list                         list cluster volumes
    create <dataset-id> <size>   create a volume, e.g. create 75c2d33c-... 10GiB
    attach <volume-id> <node>    attach a volume to a compute instance
    detach <volume-id>           detach a volume
    destroy <volume-id>          destroy a volume
    device-path <volume-id>      print the local device node of a volume
    instance-id                  print the local compute instance ID
`

func main() {
	os.Exit(Main(os.Args[1:], os.Stdout, os.Stderr))
}

// Main runs the tool, returning the process exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	flags := gnuflag.NewFlagSetWithFlagKnownAs("cio-flocker-driver", gnuflag.ContinueOnError, "option")
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprint(stderr, usageDoc)
	}
	configPath := flags.String("config", defaultConfigPath, "path to the driver configuration file")
	format := flags.String("format", "tabular", "output format for list (tabular|yaml)")
	debug := flags.Bool("debug", false, "enable debug logging")
	if err := flags.Parse(true, args); err != nil {
		if err == gnuflag.ErrHelp {
			return 0
		}
		return 2
	}
	if *debug {
		loggo.ConfigureLoggers("cio=DEBUG")
	} else {
		loggo.ConfigureLoggers("cio=WARNING")
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	ctx := context.Background()
	cfg, err := config.Read(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	api, err := cio.NewAPI(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	if err := runCommand(ctx, api, flags.Arg(0), flags.Args()[1:], *format, stdout); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func runCommand(ctx context.Context, api blockdevice.API, command string, args []string, format string, stdout io.Writer) error {
	switch command {
	case "list":
		if len(args) != 0 {
			return errors.New("list takes no arguments")
		}
		volumes, err := api.ListVolumes(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		return formatVolumes(stdout, volumes, format)
	case "create":
		if len(args) != 2 {
			return errors.New("create requires a dataset ID and a size")
		}
		datasetID, err := uuid.Parse(args[0])
		if err != nil {
			return errors.Annotate(err, "parsing dataset ID")
		}
		size, err := humanize.ParseBytes(args[1])
		if err != nil {
			return errors.Annotate(err, "parsing size")
		}
		volume, err := api.CreateVolume(ctx, datasetID, size)
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintf(stdout, "created %s (%s)\n", volume.BlockDeviceID, humanize.IBytes(volume.Size))
		return nil
	case "attach":
		if len(args) != 2 {
			return errors.New("attach requires a volume ID and a node")
		}
		volume, err := api.AttachVolume(ctx, args[0], args[1])
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintf(stdout, "attached %s to %s\n", volume.BlockDeviceID, volume.AttachedTo)
		return nil
	case "detach":
		if len(args) != 1 {
			return errors.New("detach requires a volume ID")
		}
		if err := api.DetachVolume(ctx, args[0]); err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintf(stdout, "detached %s\n", args[0])
		return nil
	case "destroy":
		if len(args) != 1 {
			return errors.New("destroy requires a volume ID")
		}
		if err := api.DestroyVolume(ctx, args[0]); err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintf(stdout, "destroyed %s\n", args[0])
		return nil
	case "device-path":
		if len(args) != 1 {
			return errors.New("device-path requires a volume ID")
		}
		path, err := api.GetDevicePath(ctx, args[0])
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintln(stdout, path)
		return nil
	case "instance-id":
		if len(args) != 0 {
			return errors.New("instance-id takes no arguments")
		}
		id, err := api.ComputeInstanceID(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintln(stdout, id)
		return nil
	}
	return errors.Errorf("unknown command %q", command)
}
