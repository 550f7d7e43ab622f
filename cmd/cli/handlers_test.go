// Tests for the hestia CLI command handlers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/agilira/hestia"
)

func TestSettingsGet(t *testing.T) {
	f := newCLIFixture(t)
	path := f.writeFile("app.conf", "port = 8080\nratio = 0.5\ndebug = true\nname = hestia\n")

	tests := []struct {
		key, typ, want string
	}{
		{"name", "string", "hestia"},
		{"port", "int", "8080"},
		{"port", "uint", "8080"},
		{"ratio", "float", "0.5"},
		{"debug", "bool", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"_"+tt.typ, func(t *testing.T) {
			out, err := f.run("settings", "get", path, tt.key, "--type", tt.typ)
			if err != nil {
				t.Fatalf("settings get failed: %v", err)
			}
			if out != tt.want {
				t.Errorf("got %q, want %q", out, tt.want)
			}
		})
	}

	if _, err := f.run("settings", "get", path, "name", "--type", "int"); !hestia.HasCode(err, hestia.ErrCodeConversionFailed) {
		t.Errorf("expected ConversionFailed, got %v", err)
	}
	if _, err := f.run("settings", "get", path, "missing"); !hestia.HasCode(err, hestia.ErrCodeKeyNotFound) {
		t.Errorf("expected KeyNotFound, got %v", err)
	}
	if _, err := f.run("settings", "get", path, "port", "--type", "complex"); !hestia.HasCode(err, hestia.ErrCodeInvalidConfig) {
		t.Errorf("expected InvalidConfig for unknown type, got %v", err)
	}
	if _, err := f.run("settings", "get", f.path("nope.conf"), "port"); !hestia.HasCode(err, hestia.ErrCodeFileNotFound) {
		t.Errorf("expected FileNotFound, got %v", err)
	}
}

func TestSettingsSetAndDelete(t *testing.T) {
	f := newCLIFixture(t)
	path := f.path("new.yaml")

	if _, err := f.run("settings", "set", path, "server.port", "9090"); err != nil {
		t.Fatalf("settings set failed: %v", err)
	}
	if _, err := f.run("settings", "set", path, "server.host", "localhost"); err != nil {
		t.Fatalf("settings set failed: %v", err)
	}

	values, err := hestia.LoadSettingsFile(path, hestia.FormatYAML)
	if err != nil {
		t.Fatalf("LoadSettingsFile failed: %v", err)
	}
	if values["server.port"] != "9090" || values["server.host"] != "localhost" {
		t.Errorf("unexpected file contents %v", values)
	}

	out, err := f.run("settings", "delete", path, "server.host")
	if err != nil {
		t.Fatalf("settings delete failed: %v", err)
	}
	if !strings.Contains(out, "Deleted server.host") {
		t.Errorf("unexpected output %q", out)
	}
	if _, err := f.run("settings", "delete", path, "server.host"); !hestia.HasCode(err, hestia.ErrCodeKeyNotFound) {
		t.Errorf("second delete should report KeyNotFound, got %v", err)
	}
	if _, err := f.run("settings", "set", path, "only-key"); !hestia.HasCode(err, hestia.ErrCodeInvalidConfig) {
		t.Errorf("missing value should be InvalidConfig, got %v", err)
	}
}

func TestSettingsList(t *testing.T) {
	f := newCLIFixture(t)
	path := f.writeFile("list.json", `{"db": {"host": "h", "port": 5432}, "name": "svc"}`)

	out, err := f.run("settings", "list", path)
	if err != nil {
		t.Fatalf("settings list failed: %v", err)
	}
	for _, want := range []string{"db.host = h", "db.port = 5432", "name = svc"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	out, err = f.run("settings", "list", path, "--prefix", "db.")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "name = svc") {
		t.Errorf("prefix filter ignored:\n%s", out)
	}

	out, err = f.run("settings", "list", path, "--prefix", "zzz")
	if err != nil || !strings.Contains(out, "No keys found") {
		t.Errorf("empty prefix result = %q, %v", out, err)
	}
}

func TestSettingsConvert(t *testing.T) {
	f := newCLIFixture(t)
	in := f.writeFile("source.conf", "app.name = demo\napp.port = 8080\n")
	out := f.path("target.json")

	msg, err := f.run("settings", "convert", in, out)
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if !strings.Contains(msg, "(kv) -> ") || !strings.Contains(msg, "(json)") {
		t.Errorf("unexpected output %q", msg)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"port": 8080`) {
		t.Errorf("JSON output should keep the port numeric:\n%s", data)
	}

	back := f.path("back.txt")
	if _, err := f.run("settings", "convert", out, back, "--to", "kv"); err != nil {
		t.Fatalf("convert back failed: %v", err)
	}
	values, err := hestia.ReadKeyValueFile(back)
	if err != nil {
		t.Fatal(err)
	}
	if values["app.name"] != "demo" || values["app.port"] != "8080" {
		t.Errorf("round trip lost values: %v", values)
	}

	if _, err := f.run("settings", "convert", in, out, "--to", "toml"); !hestia.HasCode(err, hestia.ErrCodeInvalidConfig) {
		t.Errorf("unknown format should be InvalidConfig, got %v", err)
	}
}

func TestNumberCommands(t *testing.T) {
	f := newCLIFixture(t)
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"number", "hex", "255"}, "0xff"},
		{[]string{"number", "hex", "255", "--digits", "4"}, "0x00ff"},
		{[]string{"number", "oct", "8"}, "010"},
		{[]string{"number", "bin", "0x5"}, "0b101"},
		{[]string{"number", "bin", "5", "--digits", "8"}, "0b00000101"},
		{[]string{"number", "parse", "0x1F"}, "hex: 31"},
		{[]string{"number", "parse", "0b11"}, "bin: 3"},
		{[]string{"number", "parse", "42"}, "int: 42"},
		{[]string{"number", "parse", "2.5"}, "float: 2.5"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, "_"), func(t *testing.T) {
			out, err := f.run(tt.args...)
			if err != nil {
				t.Fatalf("%v failed: %v", tt.args, err)
			}
			if out != tt.want {
				t.Errorf("got %q, want %q", out, tt.want)
			}
		})
	}

	if _, err := f.run("number", "parse", "forty"); !hestia.HasCode(err, hestia.ErrCodeConversionFailed) {
		t.Errorf("expected ConversionFailed, got %v", err)
	}
	if _, err := f.run("number", "hex", "0xzz"); !hestia.HasCode(err, hestia.ErrCodeConversionFailed) {
		t.Errorf("expected ConversionFailed, got %v", err)
	}
}

func TestAuditCommandsOnDatabase(t *testing.T) {
	f := newCLIFixture(t)
	dbPath := f.path("audit.db")

	cfg := hestia.DefaultAuditConfig()
	cfg.OutputFile = dbPath
	al, err := hestia.NewAuditLogger(cfg)
	if err != nil {
		t.Fatalf("NewAuditLogger failed: %v", err)
	}
	al.LogSettingChange("app.conf", "port", "80", "8080")
	al.LogSettingRejected("app.conf", "mode", "bogus", "not allowed")
	if err := al.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	out, err := f.run("audit", "query", dbPath, "--limit", "10")
	if err != nil {
		t.Fatalf("audit query failed: %v", err)
	}
	if !strings.Contains(out, "key=port") || !strings.Contains(out, "key=mode") {
		t.Errorf("query output missing events:\n%s", out)
	}

	out, err = f.run("audit", "query", dbPath, "--key", "port", "--since", "1d")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "key=mode") || !strings.Contains(out, "value=8080") {
		t.Errorf("key filter not applied:\n%s", out)
	}

	out, err = f.run("audit", "stats", dbPath)
	if err != nil {
		t.Fatalf("audit stats failed: %v", err)
	}
	if !strings.Contains(out, "Total events: 2") {
		t.Errorf("unexpected stats:\n%s", out)
	}

	if _, err := f.run("audit", "query", f.path("missing.db")); !hestia.HasCode(err, hestia.ErrCodeFileNotFound) {
		t.Errorf("expected FileNotFound, got %v", err)
	}
	if _, err := f.run("audit", "query"); !hestia.HasCode(err, hestia.ErrCodeInvalidConfig) {
		t.Errorf("expected InvalidConfig without database, got %v", err)
	}
}

func TestInfo(t *testing.T) {
	f := newCLIFixture(t)
	out, err := f.run("info", "--verbose")
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	if !strings.Contains(out, "hestia "+Version) || !strings.Contains(out, "Go version") {
		t.Errorf("unexpected info output:\n%s", out)
	}
}

func TestParseExtendedDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"2d", 48 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := parseExtendedDuration(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseExtendedDuration(%q) = %v, %v", tt.in, got, err)
		}
	}
	for _, bad := range []string{"", "3x", "d"} {
		if _, err := parseExtendedDuration(bad); err == nil {
			t.Errorf("parseExtendedDuration(%q) should fail", bad)
		}
	}
}

func TestDiffSettings(t *testing.T) {
	got := diffSettings(
		map[string]string{"a": "1", "b": "2"},
		map[string]string{"a": "1", "b": "3", "c": "4"},
	)
	want := []string{"~ b = 3 (was 2)", "+ c = 4"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("diffSettings = %v, want %v", got, want)
	}
}
