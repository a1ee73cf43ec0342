package config

import (
	"strings"
	"testing"
)

const sampleConfig = `
base_dir = "/home/me/.local/share/snapback"
log_dir = "/home/me/.local/share/snapback/log"

[journal]
type = "sqlite"
data_dir = "/home/me/.local/share/snapback"

[[profiles]]
name = "homedir"
endpoint = "backup@nas"
sources = ["/home/me/docs", "/home/me/photos"]
repository = "/mnt/backup/homedir"
backend = "btrfs"
timestamp_format = "unix"
max_long_count = 4
max_age_days = 30
ssh_key = "/home/me/.ssh/backup"
excludes = [".cache"]

[[profiles]]
name = "local"
sources = ["/etc"]
repository = "/mnt/backup/etc"
backend = "plain"
timestamp_format = "iso8601"
max_long_count = 0
max_age_days = 7
`

func TestManager_Read(t *testing.T) {
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if cfg.Journal.Type != "sqlite" {
		t.Errorf("journal type = %q, want sqlite", cfg.Journal.Type)
	}
	if len(cfg.Profiles) != 2 {
		t.Fatalf("parsed %d profiles, want 2", len(cfg.Profiles))
	}

	p, ok := cfg.FindProfile("homedir")
	if !ok {
		t.Fatal("FindProfile(homedir) not found")
	}
	if p.Endpoint != "backup@nas" {
		t.Errorf("endpoint = %q, want backup@nas", p.Endpoint)
	}
	if len(p.Sources) != 2 {
		t.Errorf("parsed %d sources, want 2", len(p.Sources))
	}
	if p.MaxLongCount != 4 || p.MaxAgeDays != 30 {
		t.Errorf("retention = %d/%d, want 4/30", p.MaxLongCount, p.MaxAgeDays)
	}

	if _, ok := cfg.FindProfile("missing"); ok {
		t.Error("FindProfile(missing) = true, want false")
	}
}

func TestManager_RoundTrip(t *testing.T) {
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	var buf strings.Builder
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	again, err := m.Read(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("re-reading written config: %v", err)
	}
	if len(again.Profiles) != len(cfg.Profiles) {
		t.Errorf("round trip changed profile count: %d != %d", len(again.Profiles), len(cfg.Profiles))
	}
}

func TestProfile_Validate(t *testing.T) {
	valid := Profile{
		Name:            "homedir",
		Sources:         []string{"/home/me/docs"},
		Repository:      "/mnt/backup/homedir",
		Backend:         "plain",
		TimestampFormat: "unix",
		MaxLongCount:    4,
		MaxAgeDays:      30,
	}

	tests := []struct {
		name    string
		mutate  func(*Profile)
		wantErr bool
	}{
		{"valid", func(p *Profile) {}, false},
		{"zero max_long_count is allowed", func(p *Profile) { p.MaxLongCount = 0 }, false},
		{"missing name", func(p *Profile) { p.Name = "" }, true},
		{"no sources", func(p *Profile) { p.Sources = nil }, true},
		{"no repository", func(p *Profile) { p.Repository = "" }, true},
		{"unknown backend", func(p *Profile) { p.Backend = "zfs" }, true},
		{"unknown timestamp format", func(p *Profile) { p.TimestampFormat = "rfc3339" }, true},
		{"negative max_long_count", func(p *Profile) { p.MaxLongCount = -1 }, true},
		{"zero max_age_days", func(p *Profile) { p.MaxAgeDays = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/snapback")
	if cfg.Journal.Type != "sqlite" {
		t.Errorf("default journal type = %q, want sqlite", cfg.Journal.Type)
	}
	if cfg.Journal.DataDir != "/data/snapback" {
		t.Errorf("journal data dir = %q, want /data/snapback", cfg.Journal.DataDir)
	}
	if cfg.LogDir != "/data/snapback/log" {
		t.Errorf("log dir = %q, want /data/snapback/log", cfg.LogDir)
	}
}
