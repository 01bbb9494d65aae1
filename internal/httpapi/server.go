// Package httpapi exposes the account ledger over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/bankledger/internal/report"
	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	shutdownTimeout    = 5 * time.Second
	readHeaderTimeout  = 10 * time.Second
	headerRequestID    = "X-Request-ID"
	headerAdminSecret  = "X-Admin-Secret"
	contextAccountID   = "account_id"
	contextRequestID   = "request_id"
	logMessageListen   = "bankd listening"
	logMessageShutdown = "server shutdown error"
	logMessageRequest  = "http request"
)

// AccountService is the subset of the ledger service the API drives.
type AccountService interface {
	Open(ctx context.Context, request ledger.OpenRequest) (ledger.Account, error)
	Authenticate(ctx context.Context, accountID ledger.AccountID, pin string) (ledger.Account, error)
	Deposit(ctx context.Context, accountID ledger.AccountID, amount ledger.AmountCents) (ledger.Receipt, error)
	Withdraw(ctx context.Context, accountID ledger.AccountID, amount ledger.AmountCents) (ledger.Receipt, error)
	Transfer(ctx context.Context, fromID ledger.AccountID, toID ledger.AccountID, amount ledger.AmountCents) (ledger.Receipt, error)
	ChangePIN(ctx context.Context, accountID ledger.AccountID, currentPIN string, newPIN string) error
	ResetPINByProof(ctx context.Context, accountID ledger.AccountID, proof string, newPIN string) error
	ApplyInterest(ctx context.Context, rate ledger.InterestRate) (int, error)
	Delete(ctx context.Context, accountID ledger.AccountID) error
	FindByID(accountID ledger.AccountID) (ledger.Account, bool)
}

// ReportView is the read-only administrative surface.
type ReportView interface {
	Accounts() []ledger.Account
	Summary() report.Summary
	Search(key string) (ledger.Account, error)
	History(ctx context.Context, accountID ledger.AccountID) ([]ledger.Entry, error)
	WriteStatement(ctx context.Context, writer io.Writer, accountID ledger.AccountID, format report.Format) error
}

// Server wires the router to an http.Server.
type Server struct {
	cfg    Config
	router *gin.Engine
	logger *zap.Logger
}

// NewServer validates cfg and builds the router.
func NewServer(cfg Config, accounts AccountService, reports ReportView, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if accounts == nil || reports == nil {
		return nil, errors.New("httpapi: account service and report view are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{
		logger:   logger,
		accounts: accounts,
		reports:  reports,
		sessions: NewSessions(cfg.SessionSigningKey, cfg.SessionIssuer, cfg.SessionTTL, nil),
		cfg:      cfg,
	}
	return &Server{cfg: cfg, router: setupRouter(cfg, handler), logger: logger}, nil
}

// Handler exposes the router.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              server.cfg.ListenAddr,
		Handler:           server.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info(logMessageListen, zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn(logMessageShutdown, zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(handler.logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Origin", "Accept", "Authorization", headerAdminSecret, headerRequestID},
		ExposeHeaders: []string{headerRequestID, "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/accounts", handler.handleOpen)
	api.POST("/sessions", handler.handleLogin)
	api.POST("/pin-resets", handler.handlePINReset)

	account := api.Group("/account")
	account.Use(sessionMiddleware(handler.sessions, handler.accounts.FindByID))
	account.GET("", handler.handleAccount)
	account.POST("/deposits", handler.handleDeposit)
	account.POST("/withdrawals", handler.handleWithdrawal)
	account.POST("/transfers", handler.handleTransfer)
	account.PUT("/pin", handler.handleChangePIN)
	account.DELETE("", handler.handleCloseAccount)

	admin := api.Group("/admin")
	admin.Use(adminMiddleware(cfg.AdminSecretHash))
	admin.GET("/accounts", handler.handleAdminList)
	admin.GET("/accounts/:key", handler.handleAdminSearch)
	admin.DELETE("/accounts/:key", handler.handleAdminDelete)
	admin.GET("/accounts/:key/entries", handler.handleAdminEntries)
	admin.GET("/accounts/:key/statement", handler.handleAdminStatement)
	admin.GET("/summary", handler.handleAdminSummary)
	admin.POST("/interest", handler.handleAdminInterest)

	return router
}
