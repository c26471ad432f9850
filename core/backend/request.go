package backend

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/projekt-software-engineering/ticket-backend/core/logger"
)

// requestBody parses the request body into a map. The content type must be
// exactly application/json; any other body is treated as absent.
func requestBody(r *http.Request) map[string]interface{} {
	rlog := logger.FromContext(r.Context())
	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" {
		rlog.Errorln("expected JSON body but was:", contentType)
		return nil
	}
	var body map[string]interface{}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&body); err != nil {
		rlog.WithError(err).Errorln("cannot parse json body")
		return nil
	}
	return body
}

// missingFields reports whether any of the required fields is absent from
// the body. A nil body misses everything.
func missingFields(body map[string]interface{}, required []string) bool {
	if body == nil {
		return true
	}
	for _, field := range required {
		if _, ok := body[field]; !ok {
			return true
		}
	}
	return false
}

// relevantFields extracts exactly the schema fields from the body,
// discarding everything else, in particular any client supplied system
// fields.
func relevantFields(body map[string]interface{}, fields []string) map[string]interface{} {
	relevant := map[string]interface{}{}
	for _, field := range fields {
		if value, ok := body[field]; ok {
			relevant[field] = value
		}
	}
	return relevant
}
