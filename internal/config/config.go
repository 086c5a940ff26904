// Package config loads rtspcap settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/rtspcap/internal/source"
)

// PathEnv names the variable holding the YAML file path.
const PathEnv = "RTSPCAP_CONFIG"

// Config is the complete rtspcap configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Decoder DecoderConfig `yaml:"decoder"`
	Output  OutputConfig  `yaml:"output"`

	MetricsAddr string `yaml:"metrics_addr"` // empty disables the endpoint
	Captions    bool   `yaml:"captions"`     // log decoded CEA-608/708 captions
	Debug       bool   `yaml:"debug"`
}

// SourceConfig selects the transport and its options.
type SourceConfig struct {
	URL          string `yaml:"url"` // rtsp://, rtsps:// or srt://
	Timeout      int    `yaml:"timeout"`
	RTPTransport string `yaml:"rtp_transport"`
}

// DecoderConfig configures the ffmpeg decoder.
type DecoderConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"` // empty searches PATH
}

// OutputConfig configures the YUV4MPEG2 sink.
type OutputConfig struct {
	Path string `yaml:"path"` // "-" is stdout
	FPS  int    `yaml:"fps"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Source: SourceConfig{
			Timeout:      int(source.DefaultTimeout.Seconds()),
			RTPTransport: source.TransportUDPUnicast.String(),
		},
		Output: OutputConfig{Path: "-", FPS: 25},
	}
}

// Load returns Defaults overlaid with the YAML file at path. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// FromEnv loads the file named by RTSPCAP_CONFIG, applies environment
// overrides and validates the result.
func FromEnv() (*Config, error) {
	cfg, err := Load(os.Getenv(PathEnv))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment as seen through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("SOURCE_URL", &c.Source.URL)
	str("RTP_TRANSPORT", &c.Source.RTPTransport)
	str("FFMPEG_PATH", &c.Decoder.FFmpegPath)
	str("OUTPUT", &c.Output.Path)
	str("METRICS_ADDR", &c.MetricsAddr)

	return errors.Join(
		num("TIMEOUT", &c.Source.Timeout),
		num("OUTPUT_FPS", &c.Output.FPS),
		flag("CAPTIONS", &c.Captions),
		flag("DEBUG", &c.Debug),
	)
}

// Validate checks the fields that have no usable fallback.
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return errors.New("source url is required")
	}
	if c.Output.FPS <= 0 {
		return fmt.Errorf("output fps must be positive, got %d", c.Output.FPS)
	}
	_, err := c.SourceOptions()
	return err
}

// SourceOptions converts the source settings to transport options.
func (c *Config) SourceOptions() (source.Options, error) {
	return source.ParseOptions(map[string]string{
		source.OptTimeout:      strconv.Itoa(c.Source.Timeout),
		source.OptRTPTransport: c.Source.RTPTransport,
	})
}
