// Copyright 2016 Storidge Inc.
// Licensed under the Apache License, Version 2.0.

// Package config holds the driver's configuration: the identity of
// the cluster the driver serves, the cio tool location, and the vdisk
// provisioning defaults applied to every created volume.
package config

import (
	"os"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/yaml.v3"
)

// InstanceSource selects how the driver resolves the local compute
// instance ID.
type InstanceSource string

const (
	// InstanceSourceAuto tries the metadata service, then the CIO
	// node name, then the hostname.
	InstanceSourceAuto InstanceSource = "auto"

	// InstanceSourceMetadata only queries the EC2 instance metadata
	// service.
	InstanceSourceMetadata InstanceSource = "metadata"

	// InstanceSourceNode only queries the local CIO node name.
	InstanceSourceNode InstanceSource = "cio-node"

	// InstanceSourceHostname only uses the OS hostname.
	InstanceSourceHostname InstanceSource = "hostname"
)

const (
	defaultCIOPath    = "/usr/bin/cio"
	defaultRedundancy = 2
	defaultVdiskType  = "ssd"
	defaultMinIOPS    = 1000
	defaultMaxIOPS    = 2000
)

var configChecker = schema.FieldMap(schema.Fields{
	"cluster-id":      schema.UUID(),
	"cio-path":        schema.String(),
	"redundancy":      schema.Int(),
	"vdisk-type":      schema.String(),
	"min-iops":        schema.Int(),
	"max-iops":        schema.Int(),
	"instance-source": schema.String(),
}, schema.Defaults{
	"cio-path":        defaultCIOPath,
	"redundancy":      int64(defaultRedundancy),
	"vdisk-type":      defaultVdiskType,
	"min-iops":        int64(defaultMinIOPS),
	"max-iops":        int64(defaultMaxIOPS),
	"instance-source": string(InstanceSourceAuto),
})

// Config is the driver configuration.
type Config struct {
	clusterID      uuid.UUID
	cioPath        string
	redundancy     int
	vdiskType      string
	minIOPS        int
	maxIOPS        int
	instanceSource InstanceSource
}

// Read reads and parses the configuration file at the given path.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotate(err, "reading config file")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Annotatef(err, "parsing config file %q", path)
	}
	return cfg, nil
}

// Parse parses yaml configuration data.
func Parse(data []byte) (*Config, error) {
	var attrs map[string]interface{}
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return nil, errors.Annotate(err, "parsing yaml")
	}
	coerced, err := configChecker.Coerce(attrs, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	fields := coerced.(map[string]interface{})

	clusterID, err := uuid.Parse(fields["cluster-id"].(string))
	if err != nil {
		return nil, errors.Annotate(err, "parsing cluster-id")
	}
	cfg := &Config{
		clusterID:      clusterID,
		cioPath:        fields["cio-path"].(string),
		redundancy:     int(fields["redundancy"].(int64)),
		vdiskType:      fields["vdisk-type"].(string),
		minIOPS:        int(fields["min-iops"].(int64)),
		maxIOPS:        int(fields["max-iops"].(int64)),
		instanceSource: InstanceSource(fields["instance-source"].(string)),
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.redundancy < 1 || c.redundancy > 3 {
		return errors.Errorf("redundancy must be between 1 and 3, got %d", c.redundancy)
	}
	if c.minIOPS < 0 || c.maxIOPS < 0 {
		return errors.New("iops bounds must not be negative")
	}
	if c.maxIOPS < c.minIOPS {
		return errors.Errorf("max-iops (%d) must not be less than min-iops (%d)", c.maxIOPS, c.minIOPS)
	}
	switch c.instanceSource {
	case InstanceSourceAuto, InstanceSourceMetadata, InstanceSourceNode, InstanceSourceHostname:
	default:
		return errors.NotValidf("instance-source %q", c.instanceSource)
	}
	return nil
}

// ClusterID returns the UUID of the cluster this driver serves.
func (c *Config) ClusterID() uuid.UUID {
	return c.clusterID
}

// CIOPath returns the path of the cio tool.
func (c *Config) CIOPath() string {
	return c.cioPath
}

// Redundancy returns the redundancy level for created vdisks.
func (c *Config) Redundancy() int {
	return c.redundancy
}

// VdiskType returns the backing media type for created vdisks.
func (c *Config) VdiskType() string {
	return c.vdiskType
}

// MinIOPS returns the minimum provisioned IOPS for created vdisks.
func (c *Config) MinIOPS() int {
	return c.minIOPS
}

// MaxIOPS returns the maximum provisioned IOPS for created vdisks.
func (c *Config) MaxIOPS() int {
	return c.maxIOPS
}

// InstanceSource returns how the local instance ID is resolved.
func (c *Config) InstanceSource() InstanceSource {
	return c.instanceSource
}
