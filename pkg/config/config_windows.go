//go:build windows

package config

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows/registry"

	"github.com/windowsadmins/agentrepair/pkg/logging"
)

// loadFromRegistry overlays values from HKLM\<registryPath> onto cfg.
func loadFromRegistry(registryPath string, cfg *Configuration) error {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, registryPath, registry.READ)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return fmt.Errorf("registry key %s: %w", registryPath, os.ErrNotExist)
		}
		return fmt.Errorf("failed to open registry key %s: %w", registryPath, err)
	}
	defer key.Close()

	loadString(key, "Server", &cfg.Server)
	loadString(key, "CustomerID", &cfg.CustomerID)
	loadString(key, "AgentVersion", &cfg.AgentVersion)
	loadString(key, "AgentBinaryPath", &cfg.AgentBinaryPath)
	loadString(key, "AgentConfigDir", &cfg.AgentConfigDir)
	loadString(key, "AgentInstallerFileName", &cfg.AgentInstallerFileName)
	loadString(key, "AgentInstallerURL", &cfg.AgentInstallerURL)
	loadString(key, "AgentInstallerSHA256", &cfg.AgentInstallerSHA256)
	loadString(key, "AgentSharePath", &cfg.AgentSharePath)
	loadString(key, "TakeControlBinaryPath", &cfg.TakeControlBinaryPath)
	loadString(key, "TakeControlManifestURL", &cfg.TakeControlManifestURL)
	loadString(key, "TakeControlInstallerType", &cfg.TakeControlInstallerType)
	loadString(key, "TempPath", &cfg.TempPath)
	loadString(key, "LogPath", &cfg.LogPath)
	loadString(key, "LogLevel", &cfg.LogLevel)

	loadBool(key, "UseHTTPS", &cfg.UseHTTPS)
	loadBool(key, "SkipAgent", &cfg.SkipAgent)
	loadBool(key, "SkipTakeControl", &cfg.SkipTakeControl)

	loadInt(key, "LogRetentionRuns", &cfg.LogRetentionRuns)
	loadInt(key, "DownloadTimeoutMinutes", &cfg.DownloadTimeoutMinutes)
	loadInt(key, "ServiceStartTimeoutSeconds", &cfg.ServiceStartTimeoutSeconds)

	loadStrings(key, "AgentServices", &cfg.AgentServices)
	loadStrings(key, "TakeControlServices", &cfg.TakeControlServices)

	logging.Debug("Loaded configuration from registry", "path", `HKLM\`+registryPath)
	return nil
}

func loadString(key registry.Key, name string, target *string) {
	if val, _, err := key.GetStringValue(name); err == nil && val != "" {
		*target = val
	}
}

// loadBool accepts REG_SZ "true"/"1" forms as well as a DWORD.
func loadBool(key registry.Key, name string, target *bool) {
	if val, _, err := key.GetStringValue(name); err == nil {
		if b, ok := parseRegistryBool(val); ok {
			*target = b
			return
		}
	}
	if val, _, err := key.GetIntegerValue(name); err == nil {
		*target = val != 0
	}
}

func loadInt(key registry.Key, name string, target *int) {
	if val, _, err := key.GetIntegerValue(name); err == nil {
		*target = int(val)
	}
}

// loadStrings reads REG_MULTI_SZ, or a comma separated REG_SZ.
func loadStrings(key registry.Key, name string, target *[]string) {
	if vals, _, err := key.GetStringsValue(name); err == nil && len(vals) > 0 {
		var out []string
		for _, v := range vals {
			out = append(out, splitList(v)...)
		}
		if len(out) > 0 {
			*target = out
		}
		return
	}
	if val, _, err := key.GetStringValue(name); err == nil {
		if out := splitList(val); len(out) > 0 {
			*target = out
		}
	}
}
