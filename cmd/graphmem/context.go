package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"graphmem/internal/config"
	"graphmem/internal/daemon"
	"graphmem/internal/logging"
	"graphmem/internal/queueaccess"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(c.configFlagValue())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configSeen = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// JSONMode reports whether --json was given.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// logger builds the command logger. Console records go to stderr so stdout
// stays reserved for tables and JSON.
func (c *commandContext) logger(cmd *cobra.Command) (*slog.Logger, io.Closer, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, closer, err := logging.NewFromConfig(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, fmt.Errorf("configure logging: %w", err)
	}
	return logger, closer, nil
}

func (c *commandContext) withStore(cmd *cobra.Command, fn func(queueaccess.Session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	session, err := queueaccess.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session)
}

// withRunLock holds the single-instance lock shared by run, watch and
// interrupted-claim reconciliation for the duration of fn.
func (c *commandContext) withRunLock(fn func() error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	lock := daemon.NewRunLock(cfg.LockPath())
	if err := lock.Acquire(); err != nil {
		return wrapLockError(err, lock.Path())
	}
	defer lock.Release()
	return fn()
}

func wrapLockError(err error, path string) error {
	if errors.Is(err, daemon.ErrLocked) {
		return fmt.Errorf("another graphmem run or watch is active (lock %s)", path)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
