package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server", "":
		return serverTemplate, nil
	case "publish":
		return serverTemplate + publishTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `name = "clubsite"
port = 3000
cors_origin = "http://localhost:5173"
rate_limit_window_ms = 60000
rate_limit_max = 120
data_dir = "data"
asset_roots = ["assets"]
metrics_enabled = true
trusted_proxies = ["127.0.0.1", "::1"]
shutdown_timeout = "5s"
`

const publishTemplate = `
[publish]
bucket = "club-site-static"
prefix = ""
distribution_id = ""
`
