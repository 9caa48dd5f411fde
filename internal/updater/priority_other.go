//go:build !linux

package updater

// Process priority management is a Linux concern; elsewhere it is a no-op.
func setProcessPriority(background bool) error {
	return nil
}
