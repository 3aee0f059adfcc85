package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDeviceIDName is the identity file scanship looks for under the
// data directory when no device ID is configured.
const DefaultDeviceIDName = "device_id"

// LoadDeviceInfo fills DeviceID if it is not already set in the config.
// It reads the identity file under the data directory, falling back to the
// host name so a device works out of the box with just a data directory.
func LoadDeviceInfo(cfg *Config) error {
	if cfg.DeviceID != "" {
		return nil
	}

	if cfg.DataDir != "" {
		id, err := readDeviceID(cfg.DataDir)
		if err == nil && id != "" {
			cfg.DeviceID = id
			return nil
		}
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("read device id: %w", err)
		}
	}

	host, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("device-id is required (or data-dir with a %s file)", DefaultDeviceIDName)
	}
	cfg.DeviceID = host
	return nil
}

func readDeviceID(dataDir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dataDir, DefaultDeviceIDName))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
