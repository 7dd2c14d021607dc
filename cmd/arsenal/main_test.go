package main

import "testing"

func TestParseArgsRequiresConfigAndMountpoint(t *testing.T) {
	if _, err := parseArgs([]string{}); err == nil {
		t.Fatal("parseArgs with no args: want error, got nil")
	}
	if _, err := parseArgs([]string{"cfg=x.xml"}); err == nil {
		t.Fatal("parseArgs with no mountpoint: want error, got nil")
	}
}

func TestParseArgsHappyPath(t *testing.T) {
	got, err := parseArgs([]string{"cfg=/etc/arsenal.xml", "/mnt/arsenal"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if got.configPath != "/etc/arsenal.xml" {
		t.Fatalf("configPath = %q, want /etc/arsenal.xml", got.configPath)
	}
	if got.mountPoint != "/mnt/arsenal" {
		t.Fatalf("mountPoint = %q, want /mnt/arsenal", got.mountPoint)
	}
}

func TestParseArgsOrderIndependent(t *testing.T) {
	got, err := parseArgs([]string{"/mnt/arsenal", "cfg=/etc/arsenal.xml"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if got.mountPoint != "/mnt/arsenal" || got.configPath != "/etc/arsenal.xml" {
		t.Fatalf("got %+v", got)
	}
}

func TestMountOptionsFromSpecIgnoresUnknown(t *testing.T) {
	opts := mountOptionsFromSpec("allow_other,some_unknown_flag,default_permissions")
	if len(opts) != 2 {
		t.Fatalf("len(opts) = %d, want 2 (unknown options are logged, not forwarded)", len(opts))
	}
}
