// Package config loads the environment-variable configuration both
// binaries read once at startup (§6 Environment configuration). It is
// grounded on the teacher repository's daemon/config.Config /
// DefaultConfig pair, narrowed from a flag-and-YAML-shaped config to the
// fixed set of env vars the specification names.
package config

import "os"

// Dispatcher holds the dispatcher process's startup configuration.
type Dispatcher struct {
	Host            string
	Port            int
	WebPort         int
	ModuleStorePath string
	TaskHistoryPath string
}

// Worker holds the worker process's startup configuration.
type Worker struct {
	Host            string
	Port            int
	ModuleCacheBytes uint32
	WifiSSID        string
	WifiPassword    string
}

// LoadDispatcher reads the dispatcher's configuration from the
// environment, applying the defaults spec.md §6 names.
func LoadDispatcher() Dispatcher {
	return Dispatcher{
		Host:            envOr("HOST", "localhost"),
		Port:            envInt("PORT", 3000),
		WebPort:         envInt("WEB_PORT", envInt("INSPECTOR_PORT", 3030)),
		ModuleStorePath: envOr("MODULE_STORE_PATH", "modules.db"),
		TaskHistoryPath: envOr("TASK_HISTORY_PATH", "task_history.db"),
	}
}

// LoadWorker reads the worker's configuration from the environment.
// WIFI_SSID/WIFI_PASSWORD are read but otherwise unused here — wireless
// bring-up is out of scope (§1) — they exist so a real device firmware
// build can source the same env vars this stand-in process does.
func LoadWorker() Worker {
	return Worker{
		Host:             envOr("HOST", "localhost"),
		Port:             envInt("PORT", 3000),
		ModuleCacheBytes: uint32(envInt("MODULE_CACHE_BYTES", 256*1024)),
		WifiSSID:         os.Getenv("WIFI_SSID"),
		WifiPassword:     os.Getenv("WIFI_PASSWORD"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}
