package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied to optional settings keys.
const (
	DefaultChannelKey = "qiita"
	DefaultFeedURL    = "https://qiita.com/tags/{tag}/feed.atom"
	DefaultUsername   = "Feed Updates"
	DefaultIntro      = "New posts have been published:"

	tagPlaceholder = "{tag}"
)

var tagPattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N}_.+#-]{0,63}$`)

// Settings is the settings document loaded once per run.
type Settings struct {
	SlackURL   string            `yaml:"slack_url"`
	Channel    map[string]string `yaml:"channel"`
	Tags       []string          `yaml:"tag"`
	ChannelKey string            `yaml:"channel_key"`
	FeedURL    string            `yaml:"feed_url"`
	Username   string            `yaml:"username"`
	Intro      string            `yaml:"intro"`
	Telegram   *TelegramSettings `yaml:"telegram"`
}

// TelegramSettings enables mirroring updates to a Telegram chat.
type TelegramSettings struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// LoadSettings reads, defaults, and validates the settings document at path.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes a YAML settings document.
func ParseSettings(data []byte) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	s.setDefaults()

	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) setDefaults() {
	if s.ChannelKey == "" {
		s.ChannelKey = DefaultChannelKey
	}
	if s.FeedURL == "" {
		s.FeedURL = DefaultFeedURL
	}
	if s.Username == "" {
		s.Username = DefaultUsername
	}
	if s.Intro == "" {
		s.Intro = DefaultIntro
	}
}

func (s *Settings) validate() error {
	if s.SlackURL == "" {
		return fmt.Errorf("slack_url is required")
	}
	if u, err := url.Parse(s.SlackURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("slack_url %q is not an absolute URL", s.SlackURL)
	}
	if _, ok := s.Channel[s.ChannelKey]; !ok {
		return fmt.Errorf("channel mapping has no %q key", s.ChannelKey)
	}
	if !strings.Contains(s.FeedURL, tagPlaceholder) {
		return fmt.Errorf("feed_url %q must contain %s", s.FeedURL, tagPlaceholder)
	}
	if len(s.Tags) == 0 {
		return fmt.Errorf("at least one tag is required")
	}

	seen := make(map[string]bool, len(s.Tags))
	for i, tag := range s.Tags {
		if err := ValidateTag(tag); err != nil {
			return fmt.Errorf("tag at index %d: %w", i, err)
		}
		if seen[tag] {
			return fmt.Errorf("duplicate tag %q", tag)
		}
		seen[tag] = true
	}

	if t := s.Telegram; t != nil && (t.Token == "" || t.ChatID == 0) {
		return fmt.Errorf("telegram requires both token and chat_id")
	}
	return nil
}

// ValidateTag checks that a tag is safe to use as a store partition key,
// a URL path segment, and a channel name suffix.
func ValidateTag(tag string) error {
	if !tagPattern.MatchString(tag) {
		return fmt.Errorf("invalid tag %q", tag)
	}
	return nil
}

// TagFeedURL returns the feed URL for tag.
func (s *Settings) TagFeedURL(tag string) string {
	return strings.ReplaceAll(s.FeedURL, tagPlaceholder, url.PathEscape(tag))
}

// TagChannel returns the chat channel that receives updates for tag.
func (s *Settings) TagChannel(tag string) string {
	return s.Channel[s.ChannelKey] + tag
}
