package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/2beens/notesapp/internal/config"
	"github.com/2beens/notesapp/internal/db"
	"github.com/2beens/notesapp/internal/notes"
	"github.com/2beens/notesapp/internal/notestore"
	"github.com/2beens/notesapp/internal/objectstore"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type storeParams struct {
	config           *config.Config
	postgresPassword string
	linkSecret       string
	tracingEnabled   bool
}

// stores holds the note and object store adapters picked by config,
// plus what they need to be served and shut down.
type stores struct {
	noteStore   notes.NoteStore
	objectStore notes.ObjectStore

	dbPool     *pgxpool.Pool
	diskStore  *objectstore.DiskStore
	linkSigner *objectstore.LinkSigner

	collectors []prometheus.Collector
}

func newStores(ctx context.Context, params storeParams) (*stores, error) {
	cfg := params.config
	s := &stores{}

	// loaded on first use, only the dynamodb and s3 drivers need it
	var awsCfg *aws.Config
	loadAWSConfig := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		tracedHttpClient := &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
		loaded, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.AWSRegion),
			awsconfig.WithHTTPClient(tracedHttpClient),
		)
		if err != nil {
			return aws.Config{}, fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = &loaded
		return loaded, nil
	}

	switch cfg.NoteStore {
	case config.NoteStorePostgres:
		dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
			DBHost:         cfg.PostgresHost,
			DBPort:         cfg.PostgresPort,
			DBName:         cfg.PostgresDBName,
			DBUser:         cfg.PostgresUser,
			DBPassword:     params.postgresPassword,
			TracingEnabled: params.tracingEnabled,
		})
		if err != nil {
			return nil, fmt.Errorf("new db pool: %w", err)
		}
		if err := dbPool.Ping(ctx); err != nil {
			log.Warnf("failed to ping db: %s", err)
		}
		s.dbPool = dbPool
		s.collectors = append(s.collectors, pgxpoolprometheus.NewCollector(
			dbPool,
			map[string]string{"db_name": cfg.PostgresDBName},
		))
		s.noteStore = notestore.NewPostgresStore(dbPool)
	case config.NoteStoreDynamoDB:
		awsConfig, err := loadAWSConfig()
		if err != nil {
			return nil, err
		}
		s.noteStore = notestore.NewDynamoStore(dynamodb.NewFromConfig(awsConfig), cfg.DynamoDBTable)
	case config.NoteStoreMemory:
		log.Warnln("using in-memory note store, notes are lost on restart")
		s.noteStore = notestore.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown note store: %s", cfg.NoteStore)
	}

	displayURLTTL, err := cfg.DisplayURLTTLDuration()
	if err != nil {
		return nil, err
	}

	switch cfg.ObjectStore {
	case config.ObjectStoreDisk:
		if params.linkSecret == "" {
			return nil, errors.New("link secret not set, needed by the disk object store")
		}
		signer, err := objectstore.NewLinkSigner(params.linkSecret, displayURLTTL)
		if err != nil {
			return nil, fmt.Errorf("new link signer: %w", err)
		}
		diskStore, err := objectstore.NewDiskStore(cfg.DiskRootPath, cfg.PublicBaseURL, signer)
		if err != nil {
			return nil, fmt.Errorf("new disk store: %w", err)
		}
		s.linkSigner = signer
		s.diskStore = diskStore
		s.objectStore = diskStore
	case config.ObjectStoreS3:
		awsConfig, err := loadAWSConfig()
		if err != nil {
			return nil, err
		}
		s.objectStore = objectstore.NewS3Store(s3.NewFromConfig(awsConfig), cfg.S3Bucket, displayURLTTL)
	default:
		return nil, fmt.Errorf("unknown object store: %s", cfg.ObjectStore)
	}

	log.Debugf("stores ready, notes: [%s], objects: [%s]", cfg.NoteStore, cfg.ObjectStore)

	return s, nil
}

func (s *stores) close() {
	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}
}
