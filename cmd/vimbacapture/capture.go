package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	vimba "github.com/edgeimpulse/vimba-go"
	"github.com/edgeimpulse/vimba-go/internal/config"
	"github.com/edgeimpulse/vimba-go/internal/log"
)

func newCaptureCommand(a *app) *cobra.Command {
	var snapshot bool

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Stream frames from a camera, printing their id, timestamp and frame rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := a.cfg
			if snapshot && cfg.OutDir == "" {
				dir, err := vimba.TempDir()
				if err != nil {
					return fmt.Errorf("making snapshot dir: %v", err)
				}
				cfg.OutDir = dir
			}
			return capture(ctx, cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.Int("frames", 0, "stop after this many frames, 0 streams until interrupted")
	flags.String("out", "", "directory to save every frame to as png")
	flags.BoolVar(&snapshot, "snapshot", false, "save every frame as png, in a temp dir unless -out is set")
	flags.Int("width", 0, "resize snapshots to this width, keeping aspect ratio")
	flags.Duration("start-delay", 0, "wait after opening the camera before starting acquisition")
	flags.Uint64("tick-frequency", 0, "camera timestamp ticks per second")
	a.bind(cmd, map[string]string{
		"frames":         config.KeyFrames,
		"out":            config.KeyOutDir,
		"width":          config.KeyWidth,
		"start-delay":    config.KeyStartDelay,
		"tick-frequency": config.KeyTickFrequency,
	}, false)
	return cmd
}

func capture(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	var start chan struct{}
	if cfg.StartDelay > 0 {
		start = make(chan struct{})
		t := time.AfterFunc(cfg.StartDelay, func() { close(start) })
		defer t.Stop()
	}

	fr, err := vimba.NewFrameRate(10, cfg.TickFrequency)
	if err != nil {
		return err
	}

	r, err := vimba.NewRecorder(ctx, vimba.RecorderOpts{
		Selector:   cfg.Selector(),
		FrameCount: cfg.FrameCount,
		Start:      start,
		Logger:     log.L(),
	})
	if err != nil {
		return fmt.Errorf("new recorder: %v", err)
	}
	defer r.Close()
	log.Info("capturing", "session", r.ID().String(), "camera", cfg.Selector().String(), "out", cfg.OutDir)

	out := cmd.OutOrStdout()
	n := 0
	for ev := range r.Events() {
		if ev.Err != nil {
			break
		}
		fps, err := fr.Update(ev.DataFrame)
		if err != nil {
			log.Warn("frame rate", "err", err)
		}
		img := ev.Image
		fmt.Fprintf(out, "frame %d timestamp %d %dx%dx%d %.1f fps\n", ev.FrameID, ev.Timestamp, img.Width, img.Height, img.Channels, fps)

		if cfg.OutDir != "" {
			path, err := saveSnapshot(cfg.OutDir, ev.DataFrame, cfg.Width)
			if err != nil {
				log.Error("saving snapshot", "frame", ev.FrameID, "err", err)
			} else {
				log.Info("snapshot", "path", path)
			}
		}

		n++
		if cfg.Frames > 0 && n >= cfg.Frames {
			break
		}
	}
	if err := r.Close(); err != nil {
		return fmt.Errorf("capturing: %w", err)
	}

	stats := r.Stats()
	log.Info("capture done", "frames", n, "dropped", fr.Dropped(), "delivered", stats.Delivered, "skipped", stats.Skipped)
	return nil
}

// saveSnapshot writes df as png to dir, resized to width if width is set, and
// returns its path.
func saveSnapshot(dir string, df vimba.DataFrame, width int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	img := df.Image.ToImage()
	if width > 0 && width != df.Image.Width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	path := filepath.Join(dir, fmt.Sprintf("frame-%d.png", df.FrameID))
	if err := imaging.Save(img, path); err != nil {
		return "", err
	}
	return path, nil
}
