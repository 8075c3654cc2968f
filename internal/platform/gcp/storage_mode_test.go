package gcp

import (
	"errors"
	"testing"
)

func TestResolveStorageConfigDefaultGCS(t *testing.T) {
	cfg, err := ResolveStorageConfig("", "")
	if err != nil {
		t.Fatalf("ResolveStorageConfig: %v", err)
	}
	if cfg.Mode != StorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", StorageModeGCS, cfg.Mode)
	}
}

func TestResolveStorageConfigExplicitGCSIgnoresEmulatorHost(t *testing.T) {
	cfg, err := ResolveStorageConfig("GCS", "http://fake-gcs:4443")
	if err != nil {
		t.Fatalf("ResolveStorageConfig: %v", err)
	}
	if cfg.Mode != StorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", StorageModeGCS, cfg.Mode)
	}
}

func TestResolveStorageConfigEmulatorFallback(t *testing.T) {
	cfg, err := ResolveStorageConfig("", "http://fake-gcs:4443/")
	if err != nil {
		t.Fatalf("ResolveStorageConfig: %v", err)
	}
	if cfg.Mode != StorageModeGCSEmulator || cfg.EmulatorHost != "http://fake-gcs:4443" {
		t.Fatalf("cfg: %+v", cfg)
	}
}

func TestResolveStorageConfigErrors(t *testing.T) {
	cases := []struct {
		mode, host string
		code       StorageConfigErrorCode
	}{
		{"local", "", StorageConfigErrorInvalidMode},
		{"gcs_emulator", "", StorageConfigErrorMissingEmulatorHost},
		{"gcs_emulator", "fake-gcs:4443", StorageConfigErrorInvalidEmulatorHost},
	}
	for _, tc := range cases {
		_, err := ResolveStorageConfig(tc.mode, tc.host)
		var ce *StorageConfigError
		if !errors.As(err, &ce) || ce.Code != tc.code {
			t.Fatalf("%s/%s: want=%s got=%v", tc.mode, tc.host, tc.code, err)
		}
	}
}

func TestParseObjectURI(t *testing.T) {
	u, err := ParseObjectURI("gs://reports/runs/2026/")
	if err != nil {
		t.Fatalf("ParseObjectURI: %v", err)
	}
	if u.Bucket != "reports" || u.Key != "runs/2026/" {
		t.Fatalf("uri: %+v", u)
	}
	if got := u.Join("metrics.json").String(); got != "gs://reports/runs/2026/metrics.json" {
		t.Fatalf("join: got=%s", got)
	}
	for _, bad := range []string{"s3://x/y", "gs://bucket", "gs:///key"} {
		if _, err := ParseObjectURI(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
	if !IsObjectURI(" gs://a/b") || IsObjectURI("/tmp/x") {
		t.Fatalf("IsObjectURI")
	}
}
