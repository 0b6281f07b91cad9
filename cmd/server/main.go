package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/plc-program-processor/api/handlers"
	"github.com/feichai0017/plc-program-processor/api/routes"
	"github.com/feichai0017/plc-program-processor/config"
	kb "github.com/feichai0017/plc-program-processor/internal/agent/knowledge"
	"github.com/feichai0017/plc-program-processor/internal/service/knowledge"
	"github.com/feichai0017/plc-program-processor/internal/service/masterdata"
	"github.com/feichai0017/plc-program-processor/internal/service/program"
	"github.com/feichai0017/plc-program-processor/pkg/logger"
	"github.com/feichai0017/plc-program-processor/pkg/queue"
)

func main() {
	app := config.GetAppConfig()

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(app.LogLevel),
		logger.WithEncoding(app.LogEncoding),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
		logger.WithService(app.Name),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// init program service
	programService, err := program.GetService(log)
	if err != nil {
		log.Fatal("Failed to get program service", logger.Error(err))
	}
	store := programService.Store()

	var local *program.LocalDispatcher
	switch app.DispatchMode {
	case config.DispatchQueue:
		q, err := queue.GetQueue()
		if err != nil {
			log.Fatal("Failed to connect task queue", logger.Error(err))
		}
		defer q.Close()
		programService.SetDispatcher(program.NewQueueDispatcher(q, log))
		log.Info("Registrations dispatched to task queue")
	default:
		local, _ = programService.Dispatcher().(*program.LocalDispatcher)
	}

	masterService := masterdata.NewService(store.MasterData, log)
	if app.MasterDataFile != "" {
		if _, err := masterService.SeedFile(context.Background(), app.MasterDataFile); err != nil {
			log.Error("Failed to seed master data", logger.Error(err))
		}
	}

	knowledgeCfg := config.GetKnowledgeConfig()
	syncService := knowledge.NewService(store, kb.NewClient(knowledgeCfg, log), programService.Calculator(), knowledgeCfg, log)

	health := func(ctx context.Context) error {
		sqlDB, err := store.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}

	// init handlers
	h := handlers.NewHandlers(programService, syncService, masterService, health, log)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	routes.SetupRoutes(r, h, app, log)

	srv := &http.Server{
		Addr:              app.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("address", app.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}

	// 等待后台注册任务
	if local != nil {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer drainCancel()
		if err := local.Shutdown(drainCtx); err != nil {
			log.Error("Background registrations interrupted", logger.Error(err))
		}
	}
}
