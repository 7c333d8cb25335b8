package types

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty project root returns ErrProjectRootEmpty",
			config:  Config{DocumentSignature: "%YAML 1.1"},
			wantErr: ErrProjectRootEmpty,
		},
		{
			name:    "negative min scan size",
			config:  Config{ProjectRoot: "/p", MinScanSize: -1, DocumentSignature: "%YAML 1.1"},
			wantErr: ErrMinScanSizeInvalid,
		},
		{
			name:    "negative unpause threshold",
			config:  Config{ProjectRoot: "/p", UnpauseThreshold: -3, DocumentSignature: "%YAML 1.1"},
			wantErr: ErrUnpauseThresholdInvalid,
		},
		{
			name:    "empty signature",
			config:  Config{ProjectRoot: "/p"},
			wantErr: ErrSignatureEmpty,
		},
		{
			name:    "sweep root escaping the project",
			config:  Config{ProjectRoot: "/p", DocumentSignature: "%YAML 1.1", SweepRoots: []string{"../Other"}},
			wantErr: ErrSweepRootInvalid,
		},
		{
			name:    "defaults are valid",
			config:  DefaultConfig("/p"),
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{ProjectRoot: "/p", MinScanSize: 100}.WithDefaults()

	if cfg.MinScanSize != 100 {
		t.Errorf("explicit MinScanSize overwritten: %d", cfg.MinScanSize)
	}
	if cfg.UnpauseThreshold != DefaultUnpauseThreshold {
		t.Errorf("UnpauseThreshold = %d, want %d", cfg.UnpauseThreshold, DefaultUnpauseThreshold)
	}
	if len(cfg.IgnoreExtensions) != len(DefaultIgnoreExtensions) {
		t.Errorf("IgnoreExtensions = %v", cfg.IgnoreExtensions)
	}
	if cfg.SettingsRoot != "ProjectSettings" {
		t.Errorf("SettingsRoot = %q", cfg.SettingsRoot)
	}
}

func TestConfigCacheFile(t *testing.T) {
	cfg := DefaultConfig("/p")
	want := filepath.Join("/p", "Library", "AssetDependencyCache.db")
	if got := cfg.CacheFile(); got != want {
		t.Errorf("CacheFile() = %q, want %q", got, want)
	}

	cfg.CachePath = "/tmp/cache.db"
	if got := cfg.CacheFile(); got != "/tmp/cache.db" {
		t.Errorf("CacheFile() with override = %q", got)
	}
}
