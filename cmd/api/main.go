package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	config "github.com/anjiri1684/mentor_payouts/configs"
	"github.com/anjiri1684/mentor_payouts/database"
	"github.com/anjiri1684/mentor_payouts/logging"
	"github.com/anjiri1684/mentor_payouts/routes"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "payouts",
		Short:        "Mentor payout settlement engine",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the weekly settlement scheduler",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "settle",
			Short: "Run one settlement pass over the trailing window and exit",
			RunE:  runSettle,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE:  runMigrate,
		},
	)
	return root
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg := config.Load()
	log := logging.NewLoggerWithService("mentor-payouts")
	return buildApp(cmd.Context(), cfg, log)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if err := a.scheduler.Start(); err != nil {
		return err
	}
	defer a.scheduler.Stop()

	server := fiber.New(fiber.Config{
		Prefork:       false,
		AppName:       "Mentor Payouts",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  60 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			a.logger.WithError(err).WithFields(logging.Fields{
				"path":   c.Path(),
				"method": c.Method(),
			}).Error("Request error")
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	server.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))
	server.Use(recover.New())
	server.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	server.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to Mentor Payouts API",
		})
	})
	routes.Setup(server, a.handler)

	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Server is running")
		errCh <- server.Listen(":" + a.cfg.Port)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		a.logger.WithField("signal", sig.String()).Info("Shutting down")
	}
	return server.ShutdownWithTimeout(30 * time.Second)
}

func runSettle(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := a.scheduler.RunOnce(ctx)
	if report != nil {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}
	return err
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	db, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	return database.SeedAdmin(cmd.Context(), database.NewGormStore(db), cfg.AdminFullName, cfg.AdminEmail, cfg.AdminPassword)
}
