//go:build !windows

package secureenv

// discoverWindowsPathsFromRegistry is unreachable on non-Windows builds:
// Manager.discoverPaths only calls it when runtime.GOOS == "windows".
// It exists so manager.go compiles identically on every platform.
func discoverWindowsPathsFromRegistry() []string {
	return nil
}
