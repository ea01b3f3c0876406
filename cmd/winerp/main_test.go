package main

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWinerpCommand(t *testing.T) {
	cmd := NewWinerpCommand()
	require.NotNil(t, cmd)

	assert.Equal(t, "winerp", cmd.Use)
	assert.True(t, cmd.HasSubCommands())

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"server", "call", "echo", "peers", "brokers", "hash-secret", "version"} {
		assert.True(t, slices.Contains(names, want), "missing %s", want)
	}
}
