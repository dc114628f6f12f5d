package bootstrap

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/neokaiyuan/ask-goodnotes/internal/devserver"
)

var defaultCORSConfig = middleware.CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPut,
		http.MethodPatch,
		http.MethodPost,
		http.MethodDelete,
		http.MethodOptions,
	},
	AllowHeaders: []string{
		"Accept",
		"Authorization",
		"Content-Type",
		"X-Requested-With",
	},
	AllowCredentials: true,
	MaxAge:           86400,
}

func NewEchoServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(defaultCORSConfig))
	return e
}

func ProvideDevServer(logger *slog.Logger) *devserver.Server {
	return devserver.New(logger)
}

func RegisterDevServerRoutes(e *echo.Echo, srv *devserver.Server) {
	srv.RegisterRoutes(e)
}

func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

var ServerModule = fx.Options(
	fx.Provide(NewEchoServer, ProvideDevServer),
	fx.Invoke(RegisterDevServerRoutes, StartServer),
)

func RunDevServer() {
	fx.New(
		fx.Provide(LoadConfig, ProvideLogger),
		ServerModule,
	).Run()
}
