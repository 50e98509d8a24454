//go:build !cgo

package hal

// RunWindow is unavailable without cgo; ebiten needs it for the
// desktop backend. Boot with headless=true instead.
func RunWindow(HostConfig, func(HAL) func() error) error {
	return ErrNoWindow
}
