package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/FelixWeidner/OpsForge/app/repository"
	"github.com/FelixWeidner/OpsForge/internal/pkg/cache"
	"github.com/FelixWeidner/OpsForge/internal/pkg/database"
	"github.com/FelixWeidner/OpsForge/internal/pkg/env"
	"github.com/FelixWeidner/OpsForge/internal/pkg/jobqueue"
	"github.com/FelixWeidner/OpsForge/internal/pkg/router"
)

func main() {
	app := NewApplication()

	// Drain the usage queue before the listener goes away.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		jobqueue.GetManager().Stop()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	repository.InitializeFactory(database.GetDB())
	cache.SetupCache()

	app := fiber.New(fiber.Config{
		AppName:   "OpsForge",
		BodyLimit: 1 * 1024 * 1024, // generation input is text, 1 MiB is plenty
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// background usage accounting
	jobqueue.GetManager().Start()

	// ROUTER
	router.InstallRouter(app)

	return app
}
