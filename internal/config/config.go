// Package config loads the vimbacapture configuration from defaults, an
// optional vimbacapture.yaml file, VIMBA_* environment variables and command
// line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	vimba "github.com/edgeimpulse/vimba-go"
)

// Keys, also the yaml paths in the config file. Environment variables are the
// upper case key with "." replaced by "_", prefixed with VIMBA_, e.g.
// VIMBA_CAMERA_SERIAL.
const (
	KeyRoot          = "camera.root"
	KeyIndex         = "camera.index"
	KeySerial        = "camera.serial"
	KeyTickFrequency = "camera.tick_frequency"
	KeyFrameCount    = "acquisition.frame_count"
	KeyStartDelay    = "acquisition.start_delay"
	KeyFrames        = "capture.frames"
	KeyOutDir        = "capture.out"
	KeyWidth         = "capture.width"
	KeyLogLevel      = "log.level"
	KeyLogJSON       = "log.json"
)

// Config is the vimbacapture configuration.
type Config struct {
	Root          string // Directory of the file-backed cameras.
	Index         int
	Serial        string // Takes precedence over Index if set.
	TickFrequency uint64 // Device timestamp ticks per second.

	FrameCount int           // Frame buffers announced to the camera.
	StartDelay time.Duration // Wait after opening the camera before streaming.

	Frames int    // Stop after this many frames, 0 for no limit.
	OutDir string // Directory for snapshots. Empty for no snapshots.
	Width  int    // Snapshot width, 0 keeps the frame size.

	LogLevel string
	LogJSON  bool
}

// New returns a viper instance with defaults and environment variables set
// up, and the config file search path configured.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyRoot, "cameras")
	v.SetDefault(KeyIndex, 0)
	v.SetDefault(KeySerial, "")
	v.SetDefault(KeyTickFrequency, uint64(time.Second))
	v.SetDefault(KeyFrameCount, vimba.DefaultFrameCount)
	v.SetDefault(KeyStartDelay, time.Duration(0))
	v.SetDefault(KeyFrames, 0)
	v.SetDefault(KeyOutDir, "")
	v.SetDefault(KeyWidth, 0)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogJSON, false)

	v.SetEnvPrefix("VIMBA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("vimbacapture")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(os.ExpandEnv("$HOME/.config/vimbacapture"))
	v.AddConfigPath("/etc/vimbacapture")
	return v
}

// Load reads the config file, if any, and returns the validated
// configuration. If file is not empty, it is read instead of searching for
// vimbacapture.yaml.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	c := &Config{
		Root:          v.GetString(KeyRoot),
		Index:         v.GetInt(KeyIndex),
		Serial:        v.GetString(KeySerial),
		TickFrequency: v.GetUint64(KeyTickFrequency),
		FrameCount:    v.GetInt(KeyFrameCount),
		StartDelay:    v.GetDuration(KeyStartDelay),
		Frames:        v.GetInt(KeyFrames),
		OutDir:        v.GetString(KeyOutDir),
		Width:         v.GetInt(KeyWidth),
		LogLevel:      v.GetString(KeyLogLevel),
		LogJSON:       v.GetBool(KeyLogJSON),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate returns an error describing every invalid field.
func (c *Config) Validate() error {
	var problems []string
	if c.Root == "" {
		problems = append(problems, "camera root must be set")
	}
	if c.Index < 0 {
		problems = append(problems, fmt.Sprintf("camera index must be >= 0, got %d", c.Index))
	}
	if c.TickFrequency == 0 {
		problems = append(problems, "tick frequency must be > 0")
	}
	if c.FrameCount <= 0 {
		problems = append(problems, fmt.Sprintf("frame count must be > 0, got %d", c.FrameCount))
	}
	if c.StartDelay < 0 {
		problems = append(problems, fmt.Sprintf("start delay must be >= 0, got %s", c.StartDelay))
	}
	if c.Frames < 0 {
		problems = append(problems, fmt.Sprintf("frames must be >= 0, got %d", c.Frames))
	}
	if c.Width < 0 {
		problems = append(problems, fmt.Sprintf("width must be >= 0, got %d", c.Width))
	}
	if len(problems) > 0 {
		return errors.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Selector returns the camera selector for c.
func (c *Config) Selector() vimba.Selector {
	return vimba.Selector{Index: c.Index, SerialNumber: c.Serial}
}
