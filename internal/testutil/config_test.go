package testutil

import (
	"strings"
	"testing"
)

func TestDefaultTestDBConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want TestDBConfig
	}{
		{
			name: "local test database on 55432",
			want: TestDBConfig{Host: "localhost", Port: "55432", User: "jobqueue", Password: "jobqueue", DBName: "jobqueue"},
		},
		{
			name: "CI overrides",
			env: map[string]string{
				"TEST_DB_HOST": "postgres",
				"TEST_DB_PORT": "5432",
				"TEST_DB_USER": "ci",
				"TEST_DB_NAME": "ci_jobs",
			},
			want: TestDBConfig{Host: "postgres", Port: "5432", User: "ci", Password: "jobqueue", DBName: "ci_jobs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
				t.Setenv(key, tt.env[key])
			}
			if got := DefaultTestDBConfig(); got != tt.want {
				t.Errorf("DefaultTestDBConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTestDBConfigDSN(t *testing.T) {
	t.Setenv("DB_SSL_MODE", "")
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p w", DBName: "jobs"}
	dsn := cfg.dsn()
	if !strings.HasPrefix(dsn, "postgres://u:p%20w@db:5432/jobs") {
		t.Errorf("unexpected dsn %q", dsn)
	}
	if !strings.HasSuffix(dsn, "sslmode=disable") {
		t.Errorf("dsn %q should default to sslmode=disable", dsn)
	}
}

func TestRequireInfraFlags(t *testing.T) {
	t.Setenv("TEST_REQUIRE_DB", "")
	t.Setenv("TEST_REQUIRE_REDIS", "")
	t.Setenv("TEST_REQUIRE_INFRA", "")
	if requireDB() || requireRedis() {
		t.Fatal("nothing should be required by default")
	}

	t.Setenv("TEST_REQUIRE_INFRA", "true")
	if !requireDB() || !requireRedis() {
		t.Fatal("TEST_REQUIRE_INFRA should require both Postgres and Redis")
	}
}
