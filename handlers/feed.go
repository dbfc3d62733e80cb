package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/gipjazes/ingest-api/catalog"
	"github.com/gipjazes/ingest-api/errors"
	"github.com/gipjazes/ingest-api/log"
	"github.com/gipjazes/ingest-api/requests"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
)

// Lister reads catalog records back out for the feed endpoints.
type Lister interface {
	ListVideos(ctx context.Context, limit, offset int) ([]catalog.VideoRecord, error)
	ListUserVideos(ctx context.Context, userID string, limit, offset int) ([]catalog.VideoRecord, error)
}

type FeedHandlersCollection struct {
	Catalog Lister
}

// Feed returns the newest videos across all uploaders.
func (d *FeedHandlersCollection) Feed() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)
		limit, offset := pagination(req)

		records, err := d.Catalog.ListVideos(req.Context(), limit, offset)
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "Error fetching videos", err)
			return
		}
		writeJSON(w, requestID, records)
	}
}

// UserFeed returns the newest videos for a single uploader.
func (d *FeedHandlersCollection) UserFeed() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
		requestID := requests.GetRequestId(req)
		userID := params.ByName("id")
		if userID == "" {
			errors.WriteHTTPBadRequest(w, "Missing user ID", nil)
			return
		}
		limit, offset := pagination(req)

		records, err := d.Catalog.ListUserVideos(req.Context(), userID, limit, offset)
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "Error fetching videos", err)
			return
		}
		writeJSON(w, requestID, records)
	}
}

func pagination(req *http.Request) (limit, offset int) {
	limit = defaultFeedLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	if raw := req.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, requestID string, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.LogError(requestID, "error writing HTTP response", err)
	}
}
