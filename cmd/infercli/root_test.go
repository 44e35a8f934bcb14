package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCmd_FlagsRegisteredWithDefaults(t *testing.T) {
	flag := generateCmd.Flags().Lookup("prompt")
	assert.NotNil(t, flag, "prompt flag must be registered")
	assert.Equal(t, "hello", flag.DefValue)

	flag = generateCmd.Flags().Lookup("max-new-tokens")
	assert.NotNil(t, flag, "max-new-tokens flag must be registered")
	assert.Equal(t, "16", flag.DefValue)

	flag = generateCmd.Flags().Lookup("log")
	assert.NotNil(t, flag, "log flag must be registered")
	assert.Equal(t, "info", flag.DefValue)
}

func TestRootCmd_HasGenerateSubcommand(t *testing.T) {
	found := false
	for _, c := range rootCmd.Commands() {
		if c.Name() == "generate" {
			found = true
		}
	}
	assert.True(t, found, "root command must register the generate subcommand")
}
