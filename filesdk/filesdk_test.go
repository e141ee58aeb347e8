package filesdk_test

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spakin/netpbm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vimba "github.com/edgeimpulse/vimba-go"
	"github.com/edgeimpulse/vimba-go/filesdk"
)

const timeout = 5 * time.Second

func mkcam(t *testing.T, root, id, serial string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.Mkdir(dir, 0o755))
	if serial != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "serial"), []byte(serial+"\n"), 0o644))
	}
	return dir
}

func TestCameras(t *testing.T) {
	root := t.TempDir()
	mkcam(t, root, "cam1", "")
	mkcam(t, root, "cam0", "DEV_1AB22C00041E")
	mkcam(t, root, ".trash", "")
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), nil, 0o644))

	sdk := filesdk.New(root, nil)
	_, err := sdk.Cameras()
	require.Error(t, err, "cameras before startup")

	require.NoError(t, sdk.Startup())
	cameras, err := sdk.Cameras()
	require.NoError(t, err)
	require.Len(t, cameras, 2)
	assert.Equal(t, "cam0", cameras[0].ID())
	assert.Equal(t, "DEV_1AB22C00041E", cameras[0].SerialNumber())
	assert.Equal(t, "cam1", cameras[1].ID())
	assert.Equal(t, "cam1", cameras[1].SerialNumber())

	require.NoError(t, sdk.Shutdown())
	_, err = sdk.Cameras()
	require.Error(t, err, "cameras after shutdown")
}

func TestStartupMissingRoot(t *testing.T) {
	sdk := filesdk.New(filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, sdk.Startup())
}

func TestOpenExclusive(t *testing.T) {
	root := t.TempDir()
	mkcam(t, root, "cam0", "")
	sdk := filesdk.New(root, nil)
	require.NoError(t, sdk.Startup())

	a, err := sdk.Cameras()
	require.NoError(t, err)
	b, err := sdk.Cameras()
	require.NoError(t, err)

	require.NoError(t, a[0].Open(vimba.AccessFull))
	require.Error(t, b[0].Open(vimba.AccessFull))
	require.NoError(t, a[0].Close())
	require.Equal(t, vimba.AccessNone, a[0].PermittedAccess())
	require.NoError(t, b[0].Open(vimba.AccessFull))
	require.Equal(t, vimba.AccessFull, b[0].PermittedAccess())
	require.NoError(t, b[0].Close())
}

func waitRemoved(t *testing.T, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := os.Stat(name)
		return os.IsNotExist(err)
	}, timeout, time.Millisecond, "frame file %s not consumed", name)
}

func TestFramePool(t *testing.T) {
	root := t.TempDir()
	dir := mkcam(t, root, "cam0", "")
	sdk := filesdk.New(root, nil)
	require.NoError(t, sdk.Startup())
	defer sdk.Shutdown()
	cameras, err := sdk.Cameras()
	require.NoError(t, err)
	cam := cameras[0]

	require.Error(t, cam.StartContinuousAcquisition(1), "start before open")
	require.NoError(t, cam.Open(vimba.AccessFull))
	defer cam.Close()

	require.EqualError(t, cam.StartContinuousAcquisition(0), "frame count must be > 0, got 0")

	frames := make(chan *vimba.Frame, 10)
	require.NoError(t, cam.RegisterFrameHandler(func(f *vimba.Frame) error {
		frames <- f
		return nil
	}))
	require.NoError(t, cam.StartContinuousAcquisition(1))

	// The only frame buffer stays in flight, so the second file is dropped.
	require.NoError(t, filesdk.WriteFrame(dir, "a", 2, 1, vimba.PixelFormatMono8, []byte{1, 2}))
	waitRemoved(t, filepath.Join(dir, "a.Mono8.pgm"))
	require.NoError(t, filesdk.WriteFrame(dir, "b", 2, 1, vimba.PixelFormatMono8, []byte{3, 4}))
	waitRemoved(t, filepath.Join(dir, "b.Mono8.pgm"))

	var f *vimba.Frame
	select {
	case f = <-frames:
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for frame")
	}
	require.Equal(t, uint64(1), f.FrameID)
	require.Equal(t, []byte{1, 2}, f.Buffer)
	require.Equal(t, vimba.FrameComplete, f.Status)
	require.Len(t, frames, 0)

	require.Error(t, cam.QueueFrame(&vimba.Frame{FrameID: 1}), "queueing unknown frame")
	require.NoError(t, cam.QueueFrame(f))
	require.Error(t, cam.QueueFrame(f), "queueing frame twice")

	require.NoError(t, filesdk.WriteFrame(dir, "c", 1, 1, vimba.PixelFormatBGR8, []byte{7, 8, 9}))
	select {
	case f = <-frames:
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for frame")
	}
	require.Equal(t, uint64(3), f.FrameID)
	require.Equal(t, vimba.PixelFormatBGR8, f.PixelFormat)
	require.Equal(t, []byte{7, 8, 9}, f.Buffer)

	require.NoError(t, cam.StopContinuousAcquisition())
	require.Error(t, cam.StopContinuousAcquisition())
}

func TestRecorder(t *testing.T) {
	root := t.TempDir()
	dir := mkcam(t, root, "cam0", "S0")
	mkcam(t, root, "cam1", "S1")
	sys := vimba.NewSystem(func() vimba.SDK { return filesdk.New(root, nil) })

	r, err := vimba.NewRecorder(context.Background(), vimba.RecorderOpts{System: sys, Selector: vimba.BySerial("S0")})
	require.NoError(t, err)
	defer r.Close()
	require.Eventually(t, func() bool { return r.State() == vimba.StateStreaming }, timeout, time.Millisecond)

	serials, err := vimba.ListSerialNumbers(sys)
	require.NoError(t, err)
	require.Equal(t, []string{"S0", "S1"}, serials)

	require.NoError(t, filesdk.WriteFrame(dir, "0", 2, 1, vimba.PixelFormatRGB8, []byte{10, 20, 30, 1, 2, 3}))
	next := func() vimba.Event {
		select {
		case ev := <-r.Events():
			return ev
		case <-time.After(timeout):
			t.Fatalf("timeout waiting for event")
		}
		return vimba.Event{}
	}
	ev := next()
	require.NoError(t, ev.Err)
	require.Equal(t, []byte{30, 20, 10, 3, 2, 1}, ev.Image.Pix)
	waitRemoved(t, filepath.Join(dir, "0.RGB8.ppm"))

	require.NoError(t, filesdk.WriteFrame(dir, "1", 1, 1, vimba.PixelFormatMono8, []byte{42}))
	ev = next()
	require.NoError(t, ev.Err)
	require.Equal(t, 1, ev.Image.Channels)
	require.Equal(t, []byte{42}, ev.Image.Pix)
	require.Greater(t, ev.FrameID, uint64(1))

	require.NoError(t, r.Close())
	require.Equal(t, vimba.StateClosed, r.State())
}

func TestRecorderUnsupportedFormat(t *testing.T) {
	root := t.TempDir()
	dir := mkcam(t, root, "cam0", "")
	sys := vimba.NewSystem(func() vimba.SDK { return filesdk.New(root, nil) })

	r, err := vimba.NewRecorder(context.Background(), vimba.RecorderOpts{System: sys})
	require.NoError(t, err)
	defer r.Close()
	require.Eventually(t, func() bool { return r.State() == vimba.StateStreaming }, timeout, time.Millisecond)

	require.NoError(t, filesdk.WriteFrame(dir, "0", 1, 1, vimba.PixelFormatBayerRG8, []byte{1}))
	select {
	case ev := <-r.Events():
		require.ErrorIs(t, ev.Err, vimba.ErrUnsupportedPixelFormat)
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for fault")
	}
	require.ErrorIs(t, r.Close(), vimba.ErrFrameCallback)
}

func TestWriteFrame(t *testing.T) {
	dir := t.TempDir()
	require.Error(t, filesdk.WriteFrame(dir, "bad", 2, 2, vimba.PixelFormatMono8, []byte{1, 2, 3}))

	require.NoError(t, filesdk.WriteFrame(dir, "x", 1, 2, vimba.PixelFormatBGR8, []byte{1, 2, 3, 4, 5, 6}))
	require.Error(t, filesdk.WriteFrame(dir, "unnamed", 1, 1, vimba.PixelFormat(0x42), []byte{1}))
	fp, err := os.Open(filepath.Join(dir, "x.BGR8.ppm"))
	require.NoError(t, err)
	defer fp.Close()
	img, err := netpbm.Decode(fp, &netpbm.DecodeOptions{Target: netpbm.PPM, Exact: true})
	require.NoError(t, err)
	require.Equal(t, uint16(255), img.MaxValue())
	require.Equal(t, image.Rect(0, 0, 1, 2), img.Bounds())
	r, g, b, _ := img.At(0, 1).RGBA()
	require.Equal(t, []uint32{4, 5, 6}, []uint32{r >> 8, g >> 8, b >> 8})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file left behind")
}
