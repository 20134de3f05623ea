// Command lambda serves the dclass REST API behind API Gateway HTTP APIs.
// Realtime collaboration needs a long-lived process and runs in collabd.
package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dclass/infrastructure/config"
	"dclass/infrastructure/di"
)

var (
	// chiLambda wraps the chi router for API Gateway v2 events
	chiLambda *chiadapter.ChiLambdaV2

	container *di.APIContainer

	coldStart     = true
	coldStartTime time.Time
)

func init() {
	coldStartTime = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err = di.InitializeAPIContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	chiRouter, ok := container.Handler.(*chi.Mux)
	if !ok {
		log.Fatal("Failed to cast handler to chi.Mux")
	}
	chiLambda = chiadapter.NewV2(chiRouter)

	container.Logger.Info("Lambda initialized",
		zap.Duration("coldStartDuration", time.Since(coldStartTime)),
		zap.String("storage", cfg.Storage),
	)
}

// Handler proxies one API Gateway v2 request through the router
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if coldStart {
		coldStart = false
		container.Logger.Debug("First invocation after cold start",
			zap.Duration("sinceInit", time.Since(coldStartTime)),
		)
	}
	return chiLambda.ProxyWithContextV2(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
