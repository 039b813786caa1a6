package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cppla/filedrop/config"
)

func TestRun_MissingTLSMaterialFails(t *testing.T) {
	dir := t.TempDir()
	cfg := config.AppConfig{
		AppPort:        "0",
		UploadsDir:     filepath.Join(dir, "uploads"),
		StaticRoot:     dir,
		TLSKeyPath:     filepath.Join(dir, "key.pem"),
		TLSCertPath:    filepath.Join(dir, "cert.pem"),
		MaxFileSizeMB:  1,
		MaxFieldSizeMB: 1,
		GinMode:        "test",
	}

	err := run(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "load TLS key pair")

	// The uploads directory is prepared before TLS is checked.
	require.DirExists(t, cfg.UploadsDir)
}

func TestRun_UploadsDirFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	cfg := config.AppConfig{UploadsDir: filepath.Join(blocker, "uploads")}
	err := run(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "create uploads dir")
}
