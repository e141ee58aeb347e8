package vimba_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	vimba "github.com/edgeimpulse/vimba-go"
	"github.com/edgeimpulse/vimba-go/vimbatest"
)

func TestSystemCreatesSDKOnce(t *testing.T) {
	n := 0
	sdk := vimbatest.New(vimbatest.NewCamera("cam0", "A"))
	sys := vimba.NewSystem(func() vimba.SDK {
		n++
		return sdk
	})
	for i := 0; i < 3; i++ {
		_, err := vimba.ListSerialNumbers(sys)
		require.NoError(t, err)
	}
	require.Equal(t, 1, n)
	require.Equal(t, 3, sdk.Count("shutdown"))
}

func TestDefaultSystem(t *testing.T) {
	cam := vimbatest.NewCamera("cam0", "A")
	vimba.SetDefaultSDK(func() vimba.SDK { return vimbatest.New(cam) })
	t.Cleanup(func() { vimba.SetDefaultSDK(nil) })

	serials, err := vimba.ListSerialNumbers(nil)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, serials)

	r, err := vimba.NewRecorder(context.Background(), vimba.RecorderOpts{})
	require.NoError(t, err)
	wait(t, cam.Started(), "acquisition start")
	require.NoError(t, r.Close())
}
