// Package ws constructs nswire servers.
package ws

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/nswire/nswire"
	"github.com/nswire/nswire/internal/config"
	"github.com/nswire/nswire/internal/logger"
	"github.com/nswire/nswire/internal/realtime"
	"github.com/nswire/nswire/internal/redisbus"
)

// Config is the recognized server configuration. See DefaultConfig and
// LoadConfig.
type Config = config.Config

// CheckOriginFn validates the origin of an upgrade request. Return true to
// allow the connection.
type CheckOriginFn = func(r *http.Request) bool

// Dependencies carries the collaborators a server is wired with. Nil fields
// fall back to defaults: a fresh structured logger, anonymous sessions,
// role enforcement against the session, no distributed transport, and an
// origin check that rejects browser cross-origin requests.
type Dependencies struct {
	Logger      *zap.Logger
	Sessions    nswire.SessionResolver
	Auth        nswire.Authorizer
	Transport   nswire.Transport
	CheckOrigin CheckOriginFn
}

// New creates a server from configuration and collaborators.
//
// Example:
//
//	srv := ws.New(ws.DefaultConfig(), ws.Dependencies{
//	    Logger:      log,
//	    CheckOrigin: ws.AllOrigins(), // dev only
//	})
func New(cfg *Config, deps Dependencies) nswire.Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Logger == nil {
		log, err := logger.New(logger.Config{ServiceName: "nswire"})
		if err != nil {
			log = zap.NewNop()
		}
		deps.Logger = log
	}
	return realtime.NewServer(realtime.Options{
		Config:      cfg,
		Logger:      deps.Logger,
		Sessions:    deps.Sessions,
		Auth:        deps.Auth,
		Transport:   deps.Transport,
		CheckOrigin: deps.CheckOrigin,
	})
}

// DefaultConfig returns the built-in configuration defaults.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig layers a config file (optional, pass "") and NSWIRE_*
// environment variables over the defaults.
func LoadConfig(file string) (*Config, error) {
	return config.Load(file)
}

// NewRedisTransport connects the distributed transport described by the
// configuration's redis section.
func NewRedisTransport(cfg *Config, log *zap.Logger) (nswire.Transport, error) {
	return redisbus.New(redisbus.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log)
}

// AllOrigins returns a check that allows every origin. Development only.
func AllOrigins() CheckOriginFn {
	return func(*http.Request) bool { return true }
}
