// Copyright 2016 Storidge Inc.
// Licensed under the Apache License, Version 2.0.

package cio_test

import (
	"context"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"
)

// mockRunCommand is a queue of expected command invocations with
// canned responses.
type mockRunCommand struct {
	c        *gc.C
	expected []*expectedCommand
}

type expectedCommand struct {
	args []string
	out  string
	err  error
}

func (m *mockRunCommand) expect(command string, args ...string) *expectedCommand {
	e := &expectedCommand{args: append([]string{command}, args...)}
	m.expected = append(m.expected, e)
	return e
}

func (e *expectedCommand) respond(out string, err error) {
	e.out = out
	e.err = err
}

func (m *mockRunCommand) run(ctx context.Context, command string, args ...string) (string, error) {
	invoked := append([]string{command}, args...)
	if len(m.expected) == 0 {
		m.c.Fatalf("unexpected command: %v", invoked)
	}
	e := m.expected[0]
	m.expected = m.expected[1:]
	m.c.Check(invoked, jc.DeepEquals, e.args)
	return e.out, e.err
}

func (m *mockRunCommand) assertDrained() {
	m.c.Assert(m.expected, gc.HasLen, 0)
}
