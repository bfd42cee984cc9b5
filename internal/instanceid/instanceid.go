// Copyright 2016 Storidge Inc.
// Licensed under the Apache License, Version 2.0.

// Package instanceid resolves the identity of the compute instance
// the driver is running on. Attachments are recorded against this
// identity, so every node must resolve a stable, unique value.
//
// On EC2 the canonical identity is the instance ID from the instance
// metadata service. Nodes running elsewhere fall back to the CIO
// node name, then to the OS hostname.
package instanceid

import (
	"context"
	"io"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/Storidge/cio-flocker-driver/internal/cioctl"
)

var logger = loggo.GetLogger("cio.instanceid")

// Resolver resolves the local compute instance's identifier.
type Resolver interface {
	// InstanceID returns the identifier of the instance the caller
	// is running on.
	InstanceID(ctx context.Context) (string, error)
}

// imdsClient is the part of the EC2 instance metadata client we use.
type imdsClient interface {
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
}

type imdsResolver struct {
	client imdsClient
}

// NewIMDSResolver returns a Resolver querying the EC2 instance
// metadata service.
func NewIMDSResolver(ctx context.Context) (Resolver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "loading AWS configuration")
	}
	return newIMDSResolver(imds.NewFromConfig(cfg)), nil
}

func newIMDSResolver(client imdsClient) Resolver {
	return &imdsResolver{client: client}
}

// InstanceID is part of the Resolver interface.
func (r *imdsResolver) InstanceID(ctx context.Context) (string, error) {
	out, err := r.client.GetMetadata(ctx, &imds.GetMetadataInput{Path: "instance-id"})
	if err != nil {
		return "", errors.Annotate(err, "querying instance metadata")
	}
	defer out.Content.Close()
	data, err := io.ReadAll(out.Content)
	if err != nil {
		return "", errors.Annotate(err, "reading instance metadata response")
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", errors.New("instance metadata returned an empty instance ID")
	}
	return id, nil
}

type nodeResolver struct {
	cio *cioctl.Client
}

// NewNodeResolver returns a Resolver using the local CIO node name as
// the instance identifier.
func NewNodeResolver(cio *cioctl.Client) Resolver {
	return &nodeResolver{cio: cio}
}

// InstanceID is part of the Resolver interface.
func (r *nodeResolver) InstanceID(ctx context.Context) (string, error) {
	name, err := r.cio.NodeName(ctx)
	if err != nil {
		return "", errors.Trace(err)
	}
	return name, nil
}

type hostnameResolver struct {
	hostname func() (string, error)
}

// NewHostnameResolver returns a Resolver using the OS hostname as the
// instance identifier. It is the resolver of last resort: hostnames
// are only usable when they are unique across the cluster.
func NewHostnameResolver() Resolver {
	return &hostnameResolver{hostname: os.Hostname}
}

// InstanceID is part of the Resolver interface.
func (r *hostnameResolver) InstanceID(ctx context.Context) (string, error) {
	name, err := r.hostname()
	if err != nil {
		return "", errors.Annotate(err, "querying hostname")
	}
	return name, nil
}

type chainResolver struct {
	resolvers []Resolver
}

// NewChain returns a Resolver trying each of the given resolvers in
// order, returning the first successful result.
func NewChain(resolvers ...Resolver) Resolver {
	return &chainResolver{resolvers: resolvers}
}

// InstanceID is part of the Resolver interface.
func (r *chainResolver) InstanceID(ctx context.Context) (string, error) {
	var lastErr error
	for _, resolver := range r.resolvers {
		id, err := resolver.InstanceID(ctx)
		if err == nil {
			return id, nil
		}
		logger.Debugf("instance ID resolver failed: %v", err)
		lastErr = err
	}
	if lastErr == nil {
		return "", errors.New("no instance ID resolvers configured")
	}
	return "", errors.Annotate(lastErr, "cannot determine compute instance ID")
}
