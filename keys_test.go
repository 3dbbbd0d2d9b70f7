package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyHelpPairs(t *testing.T) {
	up, down := defaultKeys.Up.Help(), defaultKeys.Down.Help()
	assert.Equal(t, "↑/k", up.Key)
	assert.Equal(t, "up", up.Desc)
	assert.Equal(t, "↓/j", down.Key)
	assert.Equal(t, "down", down.Desc)

	assert.Equal(t, []string{"k", "up"}, defaultKeys.Up.Keys())
	assert.Equal(t, []string{"j", "down"}, defaultKeys.Down.Keys())
}
