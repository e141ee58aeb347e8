// Command vimbacapture lists cameras and streams decoded frames from them.
//
// Cameras are served from a directory tree, one subdirectory per camera (see
// package filesdk). The simulate subcommand writes synthetic frames into such
// a directory.
//
// Examples:
//
//	# List the serial numbers of the cameras in ./cameras.
//	vimbacapture list
//
//	# Write 100 RGB8 frames for camera cam0 at 10 frames per second.
//	vimbacapture simulate -n 100 --interval 100ms --format RGB8 --camera cam0 --camera-serial DEV_1AB22C00041E
//
//	# Stream from the camera with a serial number, 5 frame buffers, stop after 50 frames.
//	vimbacapture capture --serial DEV_1AB22C00041E --frame-count 5 --frames 50
//
//	# Stream from the first camera, saving every frame as 320 pixel wide png in a temp dir.
//	vimbacapture capture --snapshot --width 320
//
// Settings can also be read from vimbacapture.yaml and VIMBA_* environment
// variables, e.g. VIMBA_CAMERA_ROOT=/srv/cameras.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	vimba "github.com/edgeimpulse/vimba-go"
	"github.com/edgeimpulse/vimba-go/filesdk"
	"github.com/edgeimpulse/vimba-go/internal/config"
	"github.com/edgeimpulse/vimba-go/internal/log"
)

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

func newRootCommand() *cobra.Command {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:           "vimbacapture",
		Short:         "Stream frames from machine vision cameras",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			log.Init(cfg.LogLevel, cfg.LogJSON, cmd.ErrOrStderr())
			vimba.SetDefaultSDK(func() vimba.SDK {
				return filesdk.New(cfg.Root, log.L())
			})
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file, by default vimbacapture.yaml in the working directory if present")
	flags.String("root", "", "directory with a subdirectory per camera")
	flags.Int("index", 0, "index of the camera to use")
	flags.String("serial", "", "serial number of the camera to use, takes precedence over -index")
	flags.Int("frame-count", 0, "number of frame buffers announced to the camera")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.Bool("log-json", false, "log in JSON")
	a.bind(cmd, map[string]string{
		"root":        config.KeyRoot,
		"index":       config.KeyIndex,
		"serial":      config.KeySerial,
		"frame-count": config.KeyFrameCount,
		"log-level":   config.KeyLogLevel,
		"log-json":    config.KeyLogJSON,
	}, true)

	cmd.AddCommand(newListCommand(a))
	cmd.AddCommand(newCaptureCommand(a))
	cmd.AddCommand(newSimulateCommand(a))
	return cmd
}

// bind makes flags override the configuration keys they map to, when set.
func (a *app) bind(cmd *cobra.Command, keys map[string]string, persistent bool) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}
	for name, key := range keys {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vimbacapture: %v\n", err)
		os.Exit(1)
	}
}
