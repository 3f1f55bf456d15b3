// Package config handles process options and the settings document.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Options holds the process-level configuration taken from flags and environment variables.
type Options struct {
	SettingsPath   string        `long:"config" env:"SETTINGS_PATH" default:"./settings.yml" description:"Path to the YAML settings file"`
	DatabasePath   string        `long:"db" env:"DATABASE_PATH" default:"./data/seen.db" description:"Path to the sqlite database"`
	LogLevel       string        `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	PushgatewayURL string        `long:"pushgateway" env:"PUSHGATEWAY_URL" description:"Prometheus Pushgateway URL (optional)"`
	IsolateTags    bool          `long:"isolate-tags" env:"ISOLATE_TAGS" description:"Keep processing other tags when one tag fails to filter or store"`
	HTTPTimeout    time.Duration `long:"timeout" env:"HTTP_TIMEOUT" default:"0s" description:"Per-request HTTP timeout, 0 disables it"`
}

// ErrHelp is returned by Load when usage was requested and printed.
var ErrHelp = errors.New("help requested")

// Load parses process options from args and the environment.
func Load(args []string) (*Options, error) {
	var opts Options

	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("parse options: %w", err)
	}

	if opts.HTTPTimeout < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %s", opts.HTTPTimeout)
	}

	return &opts, nil
}
