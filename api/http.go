package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/gipjazes/ingest-api/config"
	"github.com/gipjazes/ingest-api/handlers"
	"github.com/gipjazes/ingest-api/log"
	"github.com/gipjazes/ingest-api/middleware"
)

func ListenAndServe(ctx context.Context, cli config.Cli, ingester handlers.Ingester, lister handlers.Lister) error {
	router := NewIngestAPIRouter(cli, ingester, lister)
	server := http.Server{Addr: cli.HTTPAddress, Handler: router}
	ctx, cancel := context.WithCancel(ctx)

	log.LogNoRequestID(
		"Starting Ingest API!",
		"version", config.Version,
		"host", cli.HTTPAddress,
	)

	var err error
	go func() {
		err = server.ListenAndServe()
		cancel()
	}()

	<-ctx.Done()
	if err != nil {
		return err
	}

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func NewIngestAPIRouter(cli config.Cli, ingester handlers.Ingester, lister handlers.Lister) *httprouter.Router {
	router := httprouter.New()
	withLogging := middleware.LogRequest()
	withAuth := middleware.IsAuthorized

	ingestHandlers := &handlers.IngestAPIHandlersCollection{Pipeline: ingester}
	feedHandlers := &handlers.FeedHandlersCollection{Catalog: lister}

	// Simple endpoint for healthchecks
	router.GET("/ok", withLogging(ingestHandlers.Ok()))

	// Upload endpoint; the pipeline runs synchronously inside the request
	router.POST("/api/video/upload",
		withLogging(
			withAuth(
				cli.JWTSecret,
				ingestHandlers.Upload(),
			),
		),
	)

	// Read side of the catalog
	router.GET("/api/video", withLogging(feedHandlers.Feed()))
	router.GET("/api/video/users/:id", withLogging(feedHandlers.UserFeed()))

	return router
}
