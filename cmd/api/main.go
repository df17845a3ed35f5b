package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"dirsentry.org/internal/audit"
	"dirsentry.org/internal/auth"
	"dirsentry.org/internal/config"
	"dirsentry.org/internal/directory"
	"dirsentry.org/internal/httpapi"
	"dirsentry.org/internal/mediator"
	"dirsentry.org/internal/obs"
	"dirsentry.org/internal/policy"
	"dirsentry.org/internal/sso"
)

var (
	version = "0.3.1"
	commit  = "none"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Audit trail: PostgreSQL when a DSN is configured, JSONL file otherwise.
	var (
		sink      *audit.Sink
		logReader audit.Reader
		fileStore *audit.FileStore
	)
	if db != nil {
		pgAudit := audit.NewPGStore(db)
		sink = audit.NewSink(pgAudit)
		logReader = pgAudit
	} else {
		fileStore, err = audit.NewFileStore(cfg.AuditLogPath)
		if err != nil {
			log.Fatalf("audit log: %v", err)
		}
		sink = audit.NewSink(fileStore)
		logReader = audit.NewFileReader(cfg.AuditLogPath)
	}

	// Credentials: config-seeded principals, or the credentials table when on
	// PostgreSQL with no seed list.
	var creds auth.CredentialStore
	if len(cfg.Users) > 0 {
		seeded := make([]auth.Credential, 0, len(cfg.Users))
		for _, u := range cfg.Users {
			role, err := auth.ParseRole(u.Role)
			if err != nil {
				log.Fatalf("config user %s: %v", u.Email, err)
			}
			seeded = append(seeded, auth.Credential{
				Identifier:   u.Email,
				Name:         u.Name,
				Role:         role,
				PasswordHash: u.PasswordHash,
			})
		}
		creds = auth.NewMemoryStore(seeded)
	} else if db != nil {
		creds = auth.NewPGStore(db)
	} else {
		log.Fatal("no credential source: configure users or pg_dsn")
	}

	signer, err := auth.NewSigner(cfg.SigningKey, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("signer: %v", err)
	}
	local, err := auth.NewAuthenticator(creds, signer, sink, auth.LockoutPolicy{
		Attempts: cfg.LockoutAttempts,
		Duration: cfg.LockoutDuration,
	})
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	var federated *sso.Authenticator
	if cfg.SSOEnabled() {
		provider, err := sso.NewProvider(sso.ProviderConfig{
			BaseURL:      cfg.SSO.BaseURL,
			Realm:        cfg.SSO.Realm,
			ClientID:     cfg.SSO.ClientID,
			ClientSecret: cfg.SSO.ClientSecret,
			RedirectURI:  cfg.SSO.RedirectURI,
			Timeout:      cfg.IdPTimeout,
		})
		if err != nil {
			log.Fatalf("sso provider: %v", err)
		}
		federated, err = sso.NewAuthenticator(provider, signer, sink, sso.RoleMapping{
			AdminGroup:   cfg.SSO.AdminGroup,
			ManagerGroup: cfg.SSO.ManagerGroup,
			AuditorGroup: cfg.SSO.AuditorGroup,
		}, cfg.FlowTTL)
		if err != nil {
			log.Fatalf("sso: %v", err)
		}
	}

	dataset, err := directory.LoadFile(cfg.DirectoryPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("directory dataset: %v", err)
		}
		log.Printf("directory dataset %s missing, starting empty", cfg.DirectoryPath)
		dataset = directory.New()
	}

	med, err := mediator.New(mediator.Config{
		Local:  local,
		SSO:    federated,
		Engine: policy.NewEngine(),
		Sink:   sink,
		Source: directory.NewStaticSource(dataset),
		Logs:   logReader,
	})
	if err != nil {
		log.Fatalf("mediator: %v", err)
	}

	api := httpapi.New(med, federated, httpapi.ReadyProbe{DB: db}, version)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting dirsentry-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if fileStore != nil {
		_ = fileStore.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
