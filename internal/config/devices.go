// v1
// internal/config/devices.go
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Device describes one sensor exposed to the platform as a thing.
type Device struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Command overrides the global sensor command for this device.
	Command   string `yaml:"command"`
	Simulated bool   `yaml:"simulated"`
}

type manifest struct {
	Devices []Device `yaml:"devices"`
}

func resolveDevices(cfg Config) ([]Device, error) {
	var devices []Device
	if cfg.DevicesFile == "" {
		devices = []Device{{Name: cfg.ThingName, Description: cfg.ThingDescription}}
	} else {
		loaded, err := LoadDevices(cfg.DevicesFile)
		if err != nil {
			return nil, err
		}
		devices = loaded
	}
	for i := range devices {
		if err := checkDeviceName(devices[i].Name); err != nil {
			return nil, err
		}
		if devices[i].Command == "" {
			devices[i].Command = cfg.SensorCommand
		}
		if cfg.Simulated {
			devices[i].Simulated = true
		}
	}
	return devices, nil
}

// LoadDevices reads a YAML device manifest. Names must be non-empty, unique
// and usable as one MQTT topic level.
func LoadDevices(path string) ([]Device, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read devices file: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse devices file %s: %w", path, err)
	}
	if len(m.Devices) == 0 {
		return nil, fmt.Errorf("devices file %s lists no devices", path)
	}
	seen := make(map[string]struct{}, len(m.Devices))
	for i := range m.Devices {
		d := &m.Devices[i]
		d.Name = strings.TrimSpace(d.Name)
		d.Description = strings.TrimSpace(d.Description)
		d.Command = strings.TrimSpace(d.Command)
		if d.Name == "" {
			return nil, fmt.Errorf("devices file %s: entry %d has no name", path, i)
		}
		if err := checkDeviceName(d.Name); err != nil {
			return nil, fmt.Errorf("devices file %s: %w", path, err)
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("devices file %s: duplicate device %q", path, d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return m.Devices, nil
}

// checkDeviceName rejects names that cannot form a single MQTT topic level.
func checkDeviceName(name string) error {
	if strings.ContainsAny(name, "/+#\x00") {
		return fmt.Errorf("device name %q must not contain '/', '+', '#' or NUL", name)
	}
	return nil
}
