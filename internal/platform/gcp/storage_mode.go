package gcp

import (
	"fmt"
	"net/url"
	"strings"
)

type StorageMode string

const (
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
)

// StorageConfig selects real GCS or a local emulator for report uploads.
type StorageConfig struct {
	Mode         StorageMode
	EmulatorHost string
}

type StorageConfigErrorCode string

const (
	StorageConfigErrorInvalidMode         StorageConfigErrorCode = "invalid_mode"
	StorageConfigErrorMissingEmulatorHost StorageConfigErrorCode = "missing_emulator_host"
	StorageConfigErrorInvalidEmulatorHost StorageConfigErrorCode = "invalid_emulator_host"
)

type StorageConfigError struct {
	Code         StorageConfigErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case StorageConfigErrorInvalidMode:
		return fmt.Sprintf("invalid object storage mode %q (allowed: %q, %q)", e.Mode, StorageModeGCS, StorageModeGCSEmulator)
	case StorageConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("object storage mode %q requires STORAGE_EMULATOR_HOST", StorageModeGCSEmulator)
	case StorageConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", e.EmulatorHost)
	default:
		return "invalid object storage config"
	}
}

func (e *StorageConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveStorageConfig normalizes a raw mode. An empty mode falls back to the
// emulator when a host is given, else real GCS.
func ResolveStorageConfig(rawMode, emulatorHost string) (StorageConfig, error) {
	cfg := StorageConfig{EmulatorHost: strings.TrimRight(strings.TrimSpace(emulatorHost), "/")}
	switch mode := StorageMode(strings.ToLower(strings.TrimSpace(rawMode))); mode {
	case "":
		cfg.Mode = StorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = StorageModeGCSEmulator
		}
	case StorageModeGCS, StorageModeGCSEmulator:
		cfg.Mode = mode
	default:
		return cfg, &StorageConfigError{Code: StorageConfigErrorInvalidMode, Mode: rawMode}
	}
	return cfg, cfg.Validate()
}

func (cfg StorageConfig) Validate() error {
	switch cfg.Mode {
	case StorageModeGCS:
		return nil
	case StorageModeGCSEmulator:
	default:
		return &StorageConfigError{Code: StorageConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
	if cfg.EmulatorHost == "" {
		return &StorageConfigError{Code: StorageConfigErrorMissingEmulatorHost, Mode: string(cfg.Mode)}
	}
	u, err := url.Parse(cfg.EmulatorHost)
	if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return &StorageConfigError{
			Code:         StorageConfigErrorInvalidEmulatorHost,
			Mode:         string(cfg.Mode),
			EmulatorHost: cfg.EmulatorHost,
			Cause:        err,
		}
	}
	return nil
}
