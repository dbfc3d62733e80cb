package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/gipjazes/ingest-api/catalog"
	"github.com/gipjazes/ingest-api/errors"
	"github.com/gipjazes/ingest-api/log"
	"github.com/gipjazes/ingest-api/metrics"
	"github.com/gipjazes/ingest-api/middleware"
	"github.com/gipjazes/ingest-api/pipeline"
	"github.com/gipjazes/ingest-api/requests"
)

// Ingester runs the full pipeline for one upload.
type Ingester interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (*catalog.VideoRecord, error)
}

type IngestAPIHandlersCollection struct {
	Pipeline Ingester
}

func (d *IngestAPIHandlersCollection) Ok() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.LogNoRequestID("error writing HTTP response", "error", err)
		}
	}
}

// Upload accepts a multipart video upload, runs it through the pipeline
// synchronously and responds with the persisted catalog record.
func (d *IngestAPIHandlersCollection) Upload() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		start := time.Now()
		requestID := requests.GetRequestId(req)
		metrics.Metrics.UploadRequestCount.Inc()

		success := false
		status := http.StatusInternalServerError
		defer func() {
			metrics.Metrics.UploadRequestDurationSec.
				WithLabelValues(strconv.FormatBool(success), strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
		}()

		file, header, err := req.FormFile("video")
		if err != nil {
			status = http.StatusBadRequest
			errors.WriteHTTPBadRequest(w, "No video file uploaded", err)
			return
		}
		defer file.Close()

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		record, err := d.Pipeline.Ingest(req.Context(), pipeline.IngestRequest{
			RequestID:   requestID,
			UploaderID:  middleware.UploaderID(req.Context()),
			Title:       req.FormValue("title"),
			Description: req.FormValue("description"),
			Filename:    header.Filename,
			MimeType:    mimeType,
			Source:      file,
		})
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "Error processing video", err)
			return
		}
		success = true
		status = http.StatusCreated

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(record); err != nil {
			log.LogError(requestID, "error writing upload response", err)
		}
	}
}
