package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_NoArgsPrintsUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"chronicle"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "Usage: chronicle")
}

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"chronicle", "frobnicate"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "Unknown command: frobnicate")
}

func TestRun_Help(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"chronicle", "help"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "projection worker")
}

func TestRun_ReplayRequiresTenant(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"chronicle", "replay"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "replay <tenant>")
}
