package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc/reflection"

	grpcctx "github.com/dtroode/apiauth-server/internal/api/grpc/context"
	grpcRouter "github.com/dtroode/apiauth-server/internal/api/grpc/router"
	grpcServer "github.com/dtroode/apiauth-server/internal/api/grpc/server"
	httpHandler "github.com/dtroode/apiauth-server/internal/api/http/handler"
	httpRouter "github.com/dtroode/apiauth-server/internal/api/http/router"
	httpServer "github.com/dtroode/apiauth-server/internal/api/http/server"
	"github.com/dtroode/apiauth-server/internal/audit"
	"github.com/dtroode/apiauth-server/internal/authn"
	"github.com/dtroode/apiauth-server/internal/config"
	"github.com/dtroode/apiauth-server/internal/logger"
	"github.com/dtroode/apiauth-server/internal/model"
	"github.com/dtroode/apiauth-server/internal/opaque"
	"github.com/dtroode/apiauth-server/internal/repository/memory"
	"github.com/dtroode/apiauth-server/internal/repository/postgres"
	"github.com/dtroode/apiauth-server/internal/server"
	"github.com/dtroode/apiauth-server/internal/service"
	storage "github.com/dtroode/apiauth-server/internal/storage/minio"
	"github.com/dtroode/apiauth-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

const shutdownTimeout = 10 * time.Second

// stores groups the persistence backends selected by configuration.
type stores struct {
	tokens model.TokenRecordStore
	users  model.UserStore
	pinger interface{ Ping(ctx context.Context) error }
	close  func() error
}

type alwaysUp struct{}

func (alwaysUp) Ping(context.Context) error { return nil }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.NewWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	masterKey, err := cfg.Auth.EncryptionKey()
	if err != nil {
		logger.Fatal("invalid master key", "error", err)
	}
	payloadCodec, err := opaque.NewCodec(masterKey)
	if err != nil {
		logger.Fatal("failed to initialize opaque token codec", "error", err)
	}
	tokenManager, err := token.NewJWT(token.Params{
		SigningKey: []byte(cfg.JWT.Secret),
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTTL: cfg.JWT.RefreshTokenTTL,
	})
	if err != nil {
		logger.Fatal("failed to initialize token manager", "error", err)
	}

	st, err := newStores(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer st.close()

	tokenService := service.NewTokenService(tokenManager, payloadCodec, st.tokens, logger)

	var verifier httpHandler.CredentialVerifier
	if cfg.Auth.EnableLogin {
		authService := service.NewAuth(st.users, logger)
		if cfg.Auth.BootstrapLogin != "" && cfg.Auth.BootstrapPassword != "" {
			if err := authService.EnsureUser(ctx, cfg.Auth.BootstrapLogin, cfg.Auth.BootstrapPassword); err != nil {
				logger.Fatal("failed to create bootstrap user", "error", err)
			}
		}
		verifier = authService
	}

	var wg sync.WaitGroup

	var recorder authn.Recorder
	if cfg.Audit.Enabled {
		storageClient, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			logger.Fatal("failed to initialize storage client", "error", err)
		}
		archive := audit.NewArchive(storageClient, cfg.Audit.BatchSize, logger)
		recorder = archive

		wg.Add(1)
		go func() {
			defer wg.Done()
			archive.Run(ctx, cfg.Audit.FlushInterval)
		}()
	}

	authenticator := authn.NewHandler(tokenManager, payloadCodec, st.tokens, recorder, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		tokenService.RunJanitor(ctx, cfg.JanitorInterval)
	}()

	servers := []struct {
		server model.Server
		sl     model.SecurityLayer
	}{
		{
			server: registerHTTPServer(authenticator, tokenService, verifier, st.pinger, logger, fmt.Sprintf(":%s", cfg.HTTP.Port)),
			sl:     server.NewSecurityLayer(cfg.HTTP.EnableHTTPS, cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName),
		},
		{
			server: registerGRPCServer(authenticator, tokenService, logger, fmt.Sprintf(":%s", cfg.GRPC.Port)),
			sl:     server.NewSecurityLayer(cfg.GRPC.EnableHTTPS, cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName),
		},
	}

	for _, s := range servers {
		wg.Add(1)
		go func(s model.Server, sl model.SecurityLayer) {
			defer wg.Done()
			logger.Info("Starting server on", "address", s.Address())
			if err := s.Start(sl); err != nil {
				logger.Error("failed to start server", "error", err, "address", s.Address())
				stop()
			}
		}(s.server, s.sl)
	}

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	for _, s := range servers {
		if err := s.server.Stop(shutdownCtx); err != nil {
			logger.Error("error during server shutdown", "error", err, "address", s.server.Address())
		}
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}

// newStores picks postgres when a DSN is configured and in-memory stores
// otherwise.
func newStores(ctx context.Context, cfg config.Database, logger *logger.Logger) (stores, error) {
	if cfg.DSN == "" {
		logger.Warn("DATABASE_DSN is empty, token records and users are kept in memory")
		return stores{
			tokens: memory.NewTokenRecordRepository(),
			users:  memory.NewUserRepository(),
			pinger: alwaysUp{},
			close:  func() error { return nil },
		}, nil
	}

	db, err := postgres.NewConnection(ctx, cfg.DSN)
	if err != nil {
		return stores{}, err
	}
	return stores{
		tokens: postgres.NewTokenRecordRepository(db),
		users:  postgres.NewUserRepository(db),
		pinger: db,
		close:  db.Close,
	}, nil
}

func registerHTTPServer(
	authenticator *authn.Handler,
	tokenService *service.TokenService,
	verifier httpHandler.CredentialVerifier,
	pinger httpHandler.Pinger,
	logger *logger.Logger,
	addr string,
) *httpServer.HTTPServer {
	r := httpRouter.New(authenticator, tokenService, verifier, pinger, logger)
	return httpServer.NewHTTPServer(r.Register(), addr)
}

func registerGRPCServer(
	authenticator *authn.Handler,
	tokenService *service.TokenService,
	logger *logger.Logger,
	addr string,
) *grpcServer.GRPCServer {
	r := grpcRouter.New(authenticator, tokenService, grpcctx.NewManager(), logger)
	s := r.Register()

	reflection.Register(s)

	return grpcServer.NewGRPCServer(s, addr)
}
