package main

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/client/api"
	"github.com/romariotrain/media-pipeline/internal/logging"
)

type commandContext struct {
	serverFlag   *string
	logLevelFlag *string

	clientOnce sync.Once
	client     *api.Client
	clientErr  error
}

func newCommandContext(serverFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		serverFlag:   serverFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) serverURL() string {
	if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
		return strings.TrimSpace(*c.serverFlag)
	}
	if v := strings.TrimSpace(os.Getenv("MEDIACTL_SERVER")); v != "" {
		return v
	}
	return defaultServer
}

func (c *commandContext) ensureClient() (*api.Client, error) {
	c.clientOnce.Do(func() {
		c.client, c.clientErr = api.New(c.serverURL(), nil)
	})
	return c.client, c.clientErr
}

func (c *commandContext) logger() zerolog.Logger {
	level := "warn"
	if c.logLevelFlag != nil {
		level = *c.logLevelFlag
	}
	logger, err := logging.New(logging.Config{Level: level, Format: "console"})
	if err != nil {
		return zerolog.Nop()
	}
	return logger
}

// pendingPath is where items started from this machine are remembered
// until they settle.
func (c *commandContext) pendingPath() string {
	if v := strings.TrimSpace(os.Getenv("MEDIACTL_PENDING")); v != "" {
		return v
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "mediactl", "pending.json")
}
