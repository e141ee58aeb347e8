package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	vimba "github.com/edgeimpulse/vimba-go"
	"github.com/edgeimpulse/vimba-go/filesdk"
	"github.com/edgeimpulse/vimba-go/internal/log"
)

type simulateOptions struct {
	Camera   string
	Serial   string
	Count    int
	Interval time.Duration
	Width    int
	Height   int
	Format   string
}

func newSimulateCommand(a *app) *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write synthetic frames for a file camera",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return simulate(cmd, a.cfg.Root, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Camera, "camera", "cam0", "camera id, the directory created under -root")
	flags.StringVar(&opts.Serial, "camera-serial", "", "serial number to give the camera")
	flags.IntVarP(&opts.Count, "count", "n", 10, "number of frames to write, 0 writes until interrupted")
	flags.DurationVar(&opts.Interval, "interval", 100*time.Millisecond, "time between frames")
	flags.IntVar(&opts.Width, "width", 64, "frame width")
	flags.IntVar(&opts.Height, "height", 48, "frame height")
	flags.StringVar(&opts.Format, "format", "Mono8", "pixel format of the frames")
	return cmd
}

func simulate(cmd *cobra.Command, root string, opts *simulateOptions) error {
	format, ok := vimba.ParsePixelFormat(opts.Format)
	if !ok {
		return fmt.Errorf("unknown pixel format %q", opts.Format)
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("frame size must be > 0, got %dx%d", opts.Width, opts.Height)
	}
	if strings.ContainsAny(opts.Camera, `/\`) || strings.HasPrefix(opts.Camera, ".") || opts.Camera == "" {
		return fmt.Errorf("invalid camera id %q", opts.Camera)
	}

	dir := filepath.Join(root, opts.Camera)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("making camera dir: %v", err)
	}
	if opts.Serial != "" {
		if err := os.WriteFile(filepath.Join(dir, "serial"), []byte(opts.Serial+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing serial number: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for i := 0; opts.Count == 0 || i < opts.Count; i++ {
		pix := pattern(opts.Width, opts.Height, format, i)
		if err := filesdk.WriteFrame(dir, fmt.Sprintf("frame-%06d", i), opts.Width, opts.Height, format, pix); err != nil {
			return err
		}
		log.L().Debug("wrote frame", "camera", opts.Camera, "seq", i)
		if opts.Count != 0 && i == opts.Count-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames to %s\n", opts.Count, dir)
	return nil
}

// pattern returns a diagonal gradient shifted by seq, in the byte layout of
// format: red, green, blue ramps for RGB8 and BGR8, a single channel for all
// other formats.
func pattern(width, height int, format vimba.PixelFormat, seq int) []byte {
	channels := 1
	if format == vimba.PixelFormatRGB8 || format == vimba.PixelFormatBGR8 {
		channels = 3
	}
	pix := make([]byte, 0, width*height*channels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := byte(x + y + seq)
			switch {
			case channels == 1:
				pix = append(pix, v)
			case format == vimba.PixelFormatRGB8:
				pix = append(pix, v, byte(y), byte(x))
			default:
				pix = append(pix, byte(x), byte(y), v)
			}
		}
	}
	return pix
}
