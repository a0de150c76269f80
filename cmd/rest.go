package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tokengate/tokengate/config"
	uiRest "github.com/tokengate/tokengate/ui/rest"
	"github.com/tokengate/tokengate/ui/rest/middleware"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the verification API over http",
	Run:   restServer,
}

func init() {
	restCmd.Flags().String("basic-auth", "", "Basic auth for admin API (format: user:pass,user2:pass2)")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	if baFlag, _ := cmd.Flags().GetString("basic-auth"); baFlag != "" {
		config.AppBasicAuthCredential = strings.Split(baFlag, ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx)
	if err != nil {
		logrus.Fatalln("Failed to initialize services:", err)
	}
	defer svc.close()

	// The sweep runs independently of request handling.
	svc.reconciler.Start(ctx)

	fiberConfig := fiber.Config{
		AppName:               "TokenGate",
		DisableStartupMessage: false,
		ServerHeader:          "Hidden",
	}
	if len(config.AppTrustedProxies) > 0 {
		fiberConfig.EnableTrustedProxyCheck = true
		fiberConfig.TrustedProxies = config.AppTrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedHost
	}

	app := fiber.New(fiberConfig)

	app.Use(requestid.New())
	app.Use(middleware.Recovery())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	if config.AppDebug {
		app.Use(logger.New())
	}

	group := app.Group(config.AppBasePath)

	uiRest.InitRestVerification(group, svc.engine, svc.reconciler, svc.nonces, config.NonceTTL)
	uiRest.InitRestHealth(group, svc.db, svc.valkey)

	// Admin surface sits behind basic auth when credentials are configured.
	adminGroup := group
	if len(config.AppBasicAuthCredential) > 0 {
		account := make(map[string]string)
		for _, credential := range config.AppBasicAuthCredential {
			parts := strings.SplitN(credential, ":", 2)
			if len(parts) == 2 {
				account[parts[0]] = parts[1]
			}
		}
		adminGroup = group.Group("", basicauth.New(basicauth.Config{Users: account}))
	}
	uiRest.InitRestRules(adminGroup, svc.rules)

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down...")
		_ = app.Shutdown()
	}()

	if err := app.Listen(":" + config.AppPort); err != nil {
		logrus.Fatalln("Failed to start server:", err)
	}
}
