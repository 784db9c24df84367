//go:build !windows

package config

func loadFromRegistry(string, *Configuration) error {
	return errRegistryUnavailable
}
