//go:build !windows

package backend

import "testing"

func TestRootDeviceOfTempDirSucceeds(t *testing.T) {
	dev, err := RootDevice(t.TempDir())
	if err != nil {
		t.Fatalf("RootDevice: %v", err)
	}
	if dev == 0 {
		t.Skip("device id 0 is plausible on some filesystems; not a hard failure")
	}
}

func TestRootDeviceNonexistentPathErrors(t *testing.T) {
	if _, err := RootDevice("/this/path/really/should/not/exist"); err == nil {
		t.Fatal("expected an error for a nonexistent path")
	}
}
