package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	vimba "github.com/edgeimpulse/vimba-go"
	"github.com/edgeimpulse/vimba-go/filesdk"
)

func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(ctx)
	t.Logf("stderr:\n%s", errOut.String())
	return out.String(), err
}

func TestSimulateAndList(t *testing.T) {
	testChdir(t, t.TempDir())
	root := t.TempDir()

	out, err := run(t, context.Background(), "--root", root, "simulate", "-n", "3", "--interval", "1ms", "--camera", "cam0", "--camera-serial", "S0", "--format", "RGB8", "--width", "4", "--height", "2")
	require.NoError(t, err)
	require.Contains(t, out, "wrote 3 frames")

	_, err = run(t, context.Background(), "--root", root, "simulate", "-n", "1", "--camera", "cam1")
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(root, "cam0", "*.ppm"))
	require.NoError(t, err)
	require.Len(t, files, 3)

	out, err = run(t, context.Background(), "--root", root, "list")
	require.NoError(t, err)
	require.Equal(t, "S0\ncam1\n", out)

	_, err = run(t, context.Background(), "--root", root, "simulate", "--format", "jpeg")
	require.Error(t, err)
	_, err = run(t, context.Background(), "--root", root, "simulate", "--camera", "../x")
	require.Error(t, err)
}

func TestCapture(t *testing.T) {
	testChdir(t, t.TempDir())
	root := t.TempDir()
	dir := filepath.Join(root, "cam0")
	require.NoError(t, os.Mkdir(dir, 0o755))
	snapshots := t.TempDir()

	// Frames written before the camera streams are ignored, so keep writing
	// until capture has seen enough.
	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			case <-time.After(10 * time.Millisecond):
			}
			pix := pattern(8, 4, vimba.PixelFormatRGB8, i)
			if err := filesdk.WriteFrame(dir, fmt.Sprintf("f%d", i), 8, 4, vimba.PixelFormatRGB8, pix); err != nil {
				t.Errorf("writing frame: %v", err)
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := run(t, ctx, "--root", root, "--frame-count", "2", "capture", "--frames", "2", "--out", snapshots, "--width", "4")
	close(done)
	<-writerDone
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, out)
	require.True(t, strings.HasPrefix(lines[0], "frame "), out)
	require.Contains(t, lines[0], "8x4x3")

	pngs, err := filepath.Glob(filepath.Join(snapshots, "frame-*.png"))
	require.NoError(t, err)
	require.Len(t, pngs, 2)
}

func TestCaptureCameraNotFound(t *testing.T) {
	testChdir(t, t.TempDir())
	root := t.TempDir()
	_, err := run(t, context.Background(), "--root", root, "capture", "--serial", "missing")
	require.ErrorIs(t, err, vimba.ErrCameraNotFound)
}

func TestInvalidConfig(t *testing.T) {
	testChdir(t, t.TempDir())
	_, err := run(t, context.Background(), "--root", t.TempDir(), "--index=-2", "list")
	require.Error(t, err)
	require.Contains(t, err.Error(), "camera index")
}

func TestPattern(t *testing.T) {
	require.Len(t, pattern(4, 2, vimba.PixelFormatMono8, 0), 8)
	rgb := pattern(4, 2, vimba.PixelFormatRGB8, 5)
	require.Len(t, rgb, 24)
	bgr := pattern(4, 2, vimba.PixelFormatBGR8, 5)
	// Same colors, opposite channel order.
	require.Equal(t, rgb[0], bgr[2])
	require.Equal(t, rgb[2], bgr[0])
}

// testChdir changes the working directory to dir for the duration of the
// test, like testing.T.Chdir in Go 1.24.
func testChdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(wd)) })
}
