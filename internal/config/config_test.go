package config

import "testing"

func TestLoadDispatcherDefaults(t *testing.T) {
	t.Setenv("HOST", "")
	t.Setenv("PORT", "")
	t.Setenv("WEB_PORT", "")
	t.Setenv("INSPECTOR_PORT", "")

	cfg := LoadDispatcher()
	if cfg.Host != "localhost" || cfg.Port != 3000 || cfg.WebPort != 3030 {
		t.Fatalf("got %+v, want localhost:3000/3030 defaults", cfg)
	}
}

func TestLoadDispatcherReadsEnv(t *testing.T) {
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "4100")
	t.Setenv("WEB_PORT", "4101")

	cfg := LoadDispatcher()
	if cfg.Host != "0.0.0.0" || cfg.Port != 4100 || cfg.WebPort != 4101 {
		t.Fatalf("got %+v, want overridden values", cfg)
	}
}

func TestLoadDispatcherInspectorPortAlias(t *testing.T) {
	t.Setenv("WEB_PORT", "")
	t.Setenv("INSPECTOR_PORT", "9999")

	cfg := LoadDispatcher()
	if cfg.WebPort != 9999 {
		t.Fatalf("web port = %d, want INSPECTOR_PORT alias value 9999", cfg.WebPort)
	}
}

func TestLoadWorkerWifiCredentialsOptional(t *testing.T) {
	t.Setenv("WIFI_SSID", "")
	t.Setenv("WIFI_PASSWORD", "")

	cfg := LoadWorker()
	if cfg.WifiSSID != "" || cfg.WifiPassword != "" {
		t.Fatalf("got %+v, want empty wifi credentials", cfg)
	}
}
