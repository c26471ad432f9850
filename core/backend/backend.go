/*Package backend wires the data and api endpoints onto a mux router.

The backend is state free per request: it parses the path into entity type
and optional id, consults the authorization policy, invokes the operator
and shapes the response. Identity resolution happens in middleware before
the backend sees the request.
*/
package backend

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/projekt-software-engineering/ticket-backend/core"
	"github.com/projekt-software-engineering/ticket-backend/core/directory"
	"github.com/projekt-software-engineering/ticket-backend/core/logger"
	"github.com/projekt-software-engineering/ticket-backend/core/operator"
	"github.com/projekt-software-engineering/ticket-backend/core/schema"
)

// Backend is the request router and entity dispatcher.
type Backend struct {
	operator      *operator.Operator
	users         directory.Directory
	validator     *schema.Validator
	notifier      core.Notifier
	router        *mux.Router
	allowedOrigin string
}

// Builder is a builder helper for the Backend.
type Builder struct {
	// Operator is the CRUD operator. This is mandatory.
	Operator *operator.Operator
	// Directory holds the identity provider's user records. This is mandatory.
	Directory directory.Directory
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Validator holds optional JSON schemas for body validation.
	Validator *schema.Validator
	// Notifier receives change notifications for successful mutations. This is optional.
	Notifier core.Notifier
	// AllowedOrigin is the CORS allow-origin. "*" widens it for local testing.
	AllowedOrigin string
}

// New realizes the backend and adds the routes to the router.
func New(b *Builder) *Backend {
	if b.Operator == nil {
		panic("operator is missing")
	}
	if b.Directory == nil {
		panic("directory is missing")
	}
	if b.Router == nil {
		panic("router is missing")
	}
	origin := b.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	backend := &Backend{
		operator:      b.Operator,
		users:         b.Directory,
		validator:     b.Validator,
		notifier:      b.Notifier,
		router:        b.Router,
		allowedOrigin: origin,
	}

	logger.AddRequestID(b.Router)
	backend.handleCORS()
	backend.handleDataRoutes()
	backend.handleAPIRoutes()

	invalidRequest := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backend.corsHeaders(w)
		http.Error(w, "Invalid Request", http.StatusBadRequest)
	})
	b.Router.NotFoundHandler = invalidRequest
	b.Router.MethodNotAllowedHandler = invalidRequest

	return backend
}

func (b *Backend) handleDataRoutes() {
	nillog := logger.Default()
	nillog.Debugln("handle route: /data/{entity} GET,POST")
	nillog.Debugln("handle route: /data/{entity}/{id} GET,PUT,DELETE")

	b.router.HandleFunc("/data/{entity}", b.dataList).Methods(http.MethodGet)
	b.router.HandleFunc("/data/{entity}", b.dataCreate).Methods(http.MethodPost)
	b.router.HandleFunc("/data/{entity}/{id}", b.dataRead).Methods(http.MethodGet)
	b.router.HandleFunc("/data/{entity}/{id}", b.dataUpdate).Methods(http.MethodPut)
	b.router.HandleFunc("/data/{entity}/{id}", b.dataDelete).Methods(http.MethodDelete)
}

// respondText writes a plain text response, the shape of every error path.
func (b *Backend) respondText(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	if message != "" {
		w.Write([]byte(message))
	}
}

// respondJSON writes a JSON encoded payload.
func (b *Backend) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.respondText(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// notify publishes a change notification for a successful mutation.
func (b *Backend) notify(r *http.Request, collection string, op core.Operation, id string) {
	if b.notifier == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"id": id})
	if contextNotifier, ok := b.notifier.(core.ContextNotifier); ok {
		contextNotifier.NotifyWithContext(r.Context(), collection, op, payload)
		return
	}
	b.notifier.Notify(collection, op, payload)
}
