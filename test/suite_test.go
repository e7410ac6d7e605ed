//go:build integration_test || all_tests

package test

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"testing"
	"time"

	"github.com/2beens/notesapp/internal"
	"github.com/2beens/notesapp/internal/config"
	"github.com/2beens/notesapp/internal/db"

	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/suite"
)

const (
	serverPort = 9000
	serverHost = "127.0.0.1"
	testDBName = "notesapp"
)

var serverEndpoint = fmt.Sprintf("http://%s:%d", serverHost, serverPort)

var (
	testUsername     = "testuser"
	testPassword     = "testpass"
	testPasswordHash = "$2a$14$6Gmhg85si2etd3K9oB8nYu1cxfbrdmhkg6wI6OXsa88IF4L2r/L9i" // testpass
)

// IntegrationTestSuite runs the whole service against redis and postgres containers.
type IntegrationTestSuite struct {
	suite.Suite

	dockerPool *dockertest.Pool
	server     *internal.Server
	cancel     context.CancelFunc
	teardown   []func()
}

func TestIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	fmt.Println("setting up test suite...")

	s.teardown = make([]func(), 0)

	// uses a sensible default on windows (tcp/http) and linux/osx (socket)
	var err error
	s.dockerPool, err = dockertest.NewPool("")
	if err != nil {
		log.Fatalf("could not create new dockertest pool: %s", err)
	}

	// uses pool to try to connect to Docker
	if err = s.dockerPool.Client.Ping(); err != nil {
		log.Fatalf("could not ping dockertest pool: %s", err)
	}
	fmt.Println("dockertest pool ping successful")

	redisPort, err := s.redisSetup()
	if err != nil {
		s.cleanup()
		log.Fatalf("failed to setup redis: %s", err.Error())
	}
	fmt.Println("redis setup successful")

	pgPort, err := s.postgresSetup()
	if err != nil {
		s.cleanup()
		log.Fatalf("failed to setup postgres: %s", err)
	}
	fmt.Println("postgres setup successful")

	objectsDir, err := os.MkdirTemp("", "notesapp-objects")
	if err != nil {
		s.cleanup()
		log.Fatalf("objects dir: %s", err)
	}
	s.teardown = append(s.teardown, func() {
		_ = os.RemoveAll(objectsDir)
	})

	cfg := getTestConfig(redisPort, pgPort, objectsDir)
	s.server, err = internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:                  cfg,
			RedisPassword:           "",
			LinkSecret:              "integration-link-secret",
			HoneycombTracingEnabled: false,
		},
	)
	if err != nil {
		s.cleanup()
		log.Fatalf("new server: %s", err)
	}
	fmt.Println("server created")

	s.server.Serve(ctx, cfg.Host, cfg.Port)
	if err := s.waitForServer(); err != nil {
		s.cleanup()
		log.Fatalf("server not up: %s", err)
	}
	fmt.Println("server started")
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.cleanup()
}

func (s *IntegrationTestSuite) cleanup() {
	fmt.Println(" --> cleaning up test suite...")
	if s.cancel != nil {
		s.cancel()
	}
	if s.server != nil {
		s.server.GracefulShutdown()
	}
	fmt.Println(" --> test suite server shut down")
	for _, teardown := range s.teardown {
		teardown()
	}
	fmt.Println(" --> test suite cleanup done")
}

func getTestConfig(redisPort, postgresPort, objectsDir string) *config.Config {
	return &config.Config{
		Environment:                 "development",
		Host:                        serverHost,
		Port:                        serverPort,
		PublicBaseURL:               serverEndpoint,
		MaxUploadMB:                 1,
		AllowedOrigins:              []string{serverEndpoint},
		LogLevel:                    "debug",
		PrometheusMetricsHost:       serverHost,
		PrometheusMetricsPort:       "9112",
		RedisHost:                   "localhost",
		RedisPort:                   redisPort,
		SessionTTL:                  "1h",
		LoginRateLimitAllowedPerMin: 100,
		Accounts: []config.Account{
			{
				Handle:       testUsername,
				Name:         "Test User",
				Email:        "testuser@example.com",
				PasswordHash: testPasswordHash,
			},
		},
		NoteStore:      config.NoteStorePostgres,
		PostgresHost:   "localhost",
		PostgresPort:   postgresPort,
		PostgresDBName: testDBName,
		ObjectStore:    config.ObjectStoreDisk,
		DiskRootPath:   objectsDir,
		DisplayURLTTL:  "5m",
	}
}

// newClient returns a client with its own cookie jar, so every test signs in on its own.
// Redirects are not followed, tests assert on them.
func newClient() *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		panic(err)
	}
	return &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *IntegrationTestSuite) waitForServer() error {
	return s.dockerPool.Retry(func() error {
		resp, err := http.Get(serverEndpoint + "/login")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("login page status: %d", resp.StatusCode)
		}
		return nil
	})
}

func (s *IntegrationTestSuite) redisSetup() (string, error) {
	redisResource, err := s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7.2",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		return "", fmt.Errorf("run redis: %s", err)
	}

	s.teardown = append(s.teardown, func() {
		if err := redisResource.Close(); err != nil {
			fmt.Printf("redis teardown: %s\n", err)
		}
	})

	redisPort := redisResource.GetPort("6379/tcp")
	return redisPort, nil
}

func (s *IntegrationTestSuite) postgresSetup() (string, error) {
	pgResource, err := s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=" + testDBName,
			"POSTGRES_HOST_AUTH_METHOD=trust",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{
			Name: "no",
		}
	})
	if err != nil {
		return "", fmt.Errorf("dockerpool run postgres: %s", err)
	}

	s.teardown = append(s.teardown, func() {
		if err := pgResource.Close(); err != nil {
			fmt.Printf("postgres teardown: %s\n", err)
		}
	})

	pgPort := pgResource.GetPort("5432/tcp")
	connString := db.ConnString(db.NewDBPoolParams{
		DBHost: "localhost",
		DBPort: pgPort,
		DBName: testDBName,
	})

	if err := s.dockerPool.Retry(func() error {
		sqlDB, err := sql.Open("postgres", connString+"?sslmode=disable")
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		return sqlDB.Ping()
	}); err != nil {
		return "", fmt.Errorf("connect to db: %w", err)
	}

	if err := db.MigrateUp(connString); err != nil {
		return "", fmt.Errorf("migrate db: %w", err)
	}

	return pgPort, nil
}
