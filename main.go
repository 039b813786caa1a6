package main

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/cppla/filedrop/config"
	"github.com/cppla/filedrop/routes"
	"github.com/cppla/filedrop/storage"
	"github.com/cppla/filedrop/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = utils.Logger.Sync() }()

	if err := run(cfg); err != nil {
		utils.Logger.Error("server stopped with error", zap.Error(err))
		_ = utils.Logger.Sync()
		os.Exit(1)
	}
	utils.Sugar.Info("server exited")
}

// run prepares storage and TLS material, then serves until shutdown.
// TLS problems are reported before any socket is bound.
func run(cfg config.AppConfig) error {
	store, err := storage.New(cfg.UploadsDir)
	if err != nil {
		return err
	}
	utils.Sugar.Infof("Uploads directory: %s", store.Dir())

	tlsCfg, err := utils.LoadTLSConfig(cfg.TLSCertPath, cfg.TLSKeyPath)
	if err != nil {
		return err
	}

	r := routes.SetupRouter(cfg, store, utils.Logger)

	addr := ":" + strings.TrimPrefix(cfg.AppPort, ":")
	srv := utils.NewServer(addr, r, tlsCfg)
	if err := srv.ListenTLS(); err != nil {
		return err
	}
	utils.Sugar.Infof("HTTPS server %s on %s (graceful)", srv.State(), srv.Addr())
	return srv.Serve()
}
