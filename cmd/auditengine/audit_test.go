package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_DefaultsWhenNoConfigFlag(t *testing.T) {
	configPath = ""
	cfg, err := loadConfig()
	assert.NoError(t, err)
	assert.Equal(t, 5, cfg.GroupSize)
	assert.Equal(t, "./audit-output", cfg.OutputDir)
}

func TestLoadConfig_ErrorsOnMissingFile(t *testing.T) {
	configPath = "/nonexistent/auditengine.yaml"
	defer func() { configPath = "" }()

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestAuditCmd_RequiresExactlyOnePathArgument(t *testing.T) {
	assert.NotNil(t, auditCmd.Args)
	assert.Error(t, auditCmd.Args(auditCmd, []string{}))
	assert.Error(t, auditCmd.Args(auditCmd, []string{"a", "b"}))
	assert.NoError(t, auditCmd.Args(auditCmd, []string{"a"}))
}
