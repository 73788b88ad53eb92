// Package main runs the bookmarks router behind API Gateway HTTP API events.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookmarks/internal/config"
	"github.com/JakeFAU/bookmarks/internal/server"
)

type handler struct {
	proxy  *chiadapter.ChiLambdaV2
	logger *zap.Logger
}

// newHandler adapts the app router to API Gateway v2 events. A non-empty
// basePath, such as a stage name, is removed from incoming paths.
func newHandler(app *server.App, basePath string) *handler {
	proxy := chiadapter.NewV2(app.Mux())
	proxy.StripBasePath(basePath)
	return &handler{proxy: proxy, logger: app.Logger()}
}

// Handle proxies one API Gateway v2 event through the router.
func (h *handler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	resp, err := h.proxy.ProxyWithContextV2(ctx, req)
	if err != nil {
		h.logger.Error("lambda proxy failed",
			zap.String("request_id", req.RequestContext.RequestID),
			zap.String("path", req.RequestContext.HTTP.Path),
			zap.Error(err),
		)
	}
	return resp, err
}

func main() {
	start := time.Now()
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("BOOKMARKS_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	app, err := server.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}
	h := newHandler(app, cfg.Server.BasePath)
	app.Logger().Info("lambda cold start complete",
		zap.Duration("duration", time.Since(start)),
		zap.String("base_path", cfg.Server.BasePath),
	)
	lambda.Start(h.Handle)
}
