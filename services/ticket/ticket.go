package main

import (
	"context"
	"embed"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"

	"github.com/projekt-software-engineering/ticket-backend/core/access"
	"github.com/projekt-software-engineering/ticket-backend/core/backend"
	"github.com/projekt-software-engineering/ticket-backend/core/csql"
	"github.com/projekt-software-engineering/ticket-backend/core/directory"
	"github.com/projekt-software-engineering/ticket-backend/core/docstore"
	"github.com/projekt-software-engineering/ticket-backend/core/entity"
	"github.com/projekt-software-engineering/ticket-backend/core/events"
	"github.com/projekt-software-engineering/ticket-backend/core/logger"
	"github.com/projekt-software-engineering/ticket-backend/core/operator"
	"github.com/projekt-software-engineering/ticket-backend/core/registry"
	"github.com/projekt-software-engineering/ticket-backend/core/schema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
type Service struct {
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,default=" description:"password for the Postgres DB, injected separately from the connection string"`
	Schema           string `env:"SCHEMA,default=ticket" description:"the database schema"`
	Port             string `env:"PORT,default=3000" description:"the listen port"`
	DisableAuth      bool   `env:"DISABLE_AUTH,default=false" description:"replace token verification with a dummy requester identity, local testing only"`
	AllowedOrigin    string `env:"ALLOWED_ORIGIN,default=*" description:"the CORS allow-origin"`
	KeyURL           string `env:"KEY_URL,default=" description:"download url for the identity provider's public keys"`
	Issuer           string `env:"ISSUER,default=" description:"accepted token issuer"`
	KafkaBrokers     string `env:"KAFKA_BROKERS,default=" description:"comma separated Kafka brokers for change notifications"`
	KafkaTopic       string `env:"KAFKA_TOPIC,default=ticket-events" description:"Kafka topic for change notifications"`
}

// collections lists every document store collection with its queryable
// fields: the entity types plus the user directory.
func collections() map[string][]string {
	c := map[string][]string{
		directory.UserCollection: directory.UserFields,
	}
	for entityType, entitySchema := range entity.Mappings {
		c[entityType.Collection()] = entitySchema.Fields
	}
	return c
}

func main() {
	logger.InitLogger(logrus.InfoLevel)

	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	db := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, service.Schema)
	defer db.Close()

	store, err := docstore.NewPostgres(db, collections())
	if err != nil {
		panic(err)
	}
	users := directory.NewStoreDirectory(store)

	validator, err := schema.NewValidatorFromFS(schemaFS, "schemas")
	if err != nil {
		panic(err)
	}

	builder := &backend.Builder{
		Operator: operator.New(&operator.Builder{
			Store: store,
			NameLookup: func(ctx context.Context, userID string) string {
				return directory.DisplayName(ctx, users, userID)
			},
		}),
		Directory:     users,
		Validator:     validator,
		Router:        mux.NewRouter(),
		AllowedOrigin: service.AllowedOrigin,
	}

	if service.KafkaBrokers != "" {
		notifier := events.NewKafkaNotifier(service.KafkaBrokers, service.KafkaTopic)
		defer notifier.Close()
		builder.Notifier = notifier
	}

	router := builder.Router
	backend.New(builder)

	if service.DisableAuth {
		logger.Default().Warningln("token verification is disabled")
		router.Use(access.NewBypassMiddleware())
	} else {
		router.Use(access.NewJwtMiddleware(&access.JwtMiddlewareBuilder{
			PublicKeyDownloadURL: service.KeyURL,
			Issuer:               service.Issuer,
			Registry:             registry.New(db),
		}))
	}

	log.Println("listen on port :" + service.Port)
	handler := handlers.RecoveryHandler()(handlers.CombinedLoggingHandler(os.Stdout, router))
	http.ListenAndServe(":"+service.Port, handler)
}
