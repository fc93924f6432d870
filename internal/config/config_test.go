package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
remote:
  baseURL: http://localhost:9000
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Remote.Model != "vulscan-small" {
		t.Errorf("default model = %q", cfg.Remote.Model)
	}
	if cfg.Remote.MaxRetries != 2 {
		t.Errorf("default maxRetries = %d", cfg.Remote.MaxRetries)
	}
}

func TestLoadRejectsMissingBackends(t *testing.T) {
	if _, err := Load(writeConfig(t, `server: {port: 1234}`)); err == nil {
		t.Fatal("expected an error when no analysis backend is configured")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	_, err := Load(writeConfig(t, `
remote:
  baseURL: http://localhost:9000
database:
  enabled: true
  driver: oracle
`))
	if err == nil {
		t.Fatal("expected an error for an unsupported driver")
	}
}

func TestDSNHelpers(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
remote:
  baseURL: http://localhost:9000
database:
  enabled: true
  driver: postgres
  host: db.local
  port: 5432
  user: vulscan
  password: secret
  name: vulscan
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := "host=db.local port=5432 user=vulscan password=secret dbname=vulscan sslmode=disable"
	if got := cfg.PostgresDSN(); got != want {
		t.Errorf("postgres dsn = %q", got)
	}
	if got := cfg.MySQLDSN(); got != "vulscan:secret@tcp(db.local:5432)/vulscan?parseTime=true&charset=utf8mb4&loc=UTC" {
		t.Errorf("mysql dsn = %q", got)
	}
}
