package requests

import (
	"net/http"

	"github.com/gipjazes/ingest-api/config"
)

const requestIDHeader = "X-Request-Id"

// GetRequestId returns the inbound request ID, minting one when the caller
// didn't send any. The ID is stored back on the request so later middleware
// sees the same value.
func GetRequestId(req *http.Request) string {
	requestID := req.Header.Get(requestIDHeader)
	if requestID != "" {
		return requestID
	}
	requestID = config.RandomTrailer(8)
	req.Header.Set(requestIDHeader, requestID)
	return requestID
}
