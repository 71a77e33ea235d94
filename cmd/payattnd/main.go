// Command payattnd is PayAttn's coordinator daemon: it serves the offer
// lifecycle HTTP API, drives the settlement engine for funded offers and
// runs the durable retry worker in the background, all against a shared
// Postgres-backed store.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/config"
	"github.com/payattn/payattn/pkg/escrow"
	"github.com/payattn/payattn/pkg/eventstream"
	"github.com/payattn/payattn/pkg/log"
	"github.com/payattn/payattn/pkg/metric"
	"github.com/payattn/payattn/pkg/offer"
	"github.com/payattn/payattn/pkg/oracle"
	"github.com/payattn/payattn/pkg/perrors"
	"github.com/payattn/payattn/pkg/proof"
	"github.com/payattn/payattn/pkg/repository"
	"github.com/payattn/payattn/pkg/retry"
	"github.com/payattn/payattn/pkg/settlement"
	"github.com/payattn/payattn/pkg/walletkeys"
	"github.com/payattn/payattn/pkg/x402"
)

func main() {
	logger := log.New()
	metrics := metric.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		panicFatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.RepositoryConfig(), logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		panicFatal(err)
	}
	defer db.Close()

	platformPubkey, err := core.PubkeyFromBase58(cfg.PlatformPubkey)
	if err != nil {
		logger.Error("PLATFORM_PUBKEY is not a valid base58 public key", "error", err)
		panicFatal(err)
	}
	programID, err := core.PubkeyFromBase58(cfg.ProgramID)
	if err != nil {
		logger.Error("PROGRAM_ID is not a valid base58 public key", "error", err)
		panicFatal(err)
	}
	keystore, err := walletkeys.LoadFileKeystore(cfg.PlatformKeypairPath)
	if err != nil {
		logger.Error("failed to load platform keypair", "error", err, "path", cfg.PlatformKeypairPath)
		panicFatal(err)
	}
	if signer, sErr := keystore.Signer(platformPubkey); sErr != nil {
		logger.Warn("platform keystore has no key matching PLATFORM_PUBKEY", "error", sErr)
	} else {
		logger.Info("platform signer loaded", "pubkey", signer.Pubkey().String())
	}

	escrowState := repository.NewEscrowState(db)
	program := escrow.NewProgram(programID, escrowState)

	registry := proof.NewRegistry()
	for _, id := range []proof.CircuitID{proof.CircuitAgeRange, proof.CircuitRangeCheck, proof.CircuitSetMembership} {
		if _, _, err := registry.Setup(id); err != nil {
			logger.Error("failed to set up circuit", "circuit", string(id), "error", err)
			panicFatal(err)
		}
	}
	validator := proof.NewValidator(registry, metrics, logger)
	budgetLedger := oracle.NewInMemoryBudgetLedger(nil)
	policyOracle := oracle.NewBudgetAndProofOracle(budgetLedger, validator, logger)

	offerRepo := repository.NewOfferRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	coordinator := offer.NewCoordinator(offerRepo, sessionStoreAdapter{sessionRepo}, program, policyOracle, platformPubkey, "/api/v1/offers/verify", logger)

	queueRepo := repository.NewQueueRepository(db)
	engine := settlement.NewEngine(program, queueRepo, offerRepo, platformPubkey, metrics, logger)

	worker := retry.NewWorker(queueRepo, engine, offerRepo, metrics, logger)
	worker = worker.WithBackoff(cfg.RetryInterval)
	go worker.Run(ctx, cfg.RetryInterval)

	hub := eventstream.New(logger)

	router := setupRouter(cfg, coordinator, engine, offerRepo, metrics, hub, logger)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
		}
	}()
	logger.Info("payattnd started", "addr", cfg.HTTPAddr, "database_mode", cfg.DatabaseMode)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
}

// sessionStoreAdapter lets the Postgres-backed SessionRepository satisfy
// offer.SessionStore, which speaks its own SessionRecord type rather than
// repository.Assessment, so pkg/offer does not need to import pkg/repository.
type sessionStoreAdapter struct {
	repo *repository.SessionRepository
}

func (a sessionStoreAdapter) Create(ctx context.Context, rec *offer.SessionRecord) error {
	return a.repo.Create(ctx, &repository.Assessment{
		SessionID: rec.SessionID,
		OfferID:   rec.OfferID,
		CircuitID: rec.CircuitID,
		Verified:  rec.Verified,
		BudgetOK:  rec.BudgetOK,
		Reason:    rec.Reason,
		CreatedAt: rec.CreatedAt,
	})
}

func setupRouter(cfg *config.Config, coordinator *offer.Coordinator, engine *settlement.Engine, offerRepo *repository.OfferRepository, metrics *metric.Metrics, hub *eventstream.Hub, logger log.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization",
		"X-Payment-Chain", "X-Payment-Network", "X-Payment-Amount", "X-Payment-Token",
		"X-Offer-Id", "X-User-Pubkey", "X-Platform-Pubkey", "X-Escrow-Program", "X-Escrow-PDA",
		"X-Verification-Endpoint"}
	router.Use(cors.New(corsCfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.GetGatherer(), promhttp.HandlerOpts{})))
	router.GET("/api/v1/stream", gin.WrapH(hub))

	api := router.Group("/api/v1")
	{
		api.POST("/offers", handleSubmitOffer(coordinator, hub))
		api.POST("/offers/:id/accept", handleAcceptOffer(coordinator, hub))
		api.POST("/offers/:id/verify", handleVerifyPayment(coordinator, hub))
		api.GET("/offers/:id", handleGetOffer(offerRepo))
		api.POST("/advertisers/:id/assess", handleAssessBatch(coordinator))
		api.POST("/offers/:id/assess", handleAssessSingle(coordinator))
		api.POST("/impressions", handleImpressionReport(engine, offerRepo, hub, logger))
	}

	return router
}

type submitOfferRequest struct {
	AdvertiserID string `json:"advertiser_id" binding:"required"`
	PublisherID  string `json:"publisher_id" binding:"required"`
	CreativeID   string `json:"creative_id" binding:"required"`
	UserPubkey   string `json:"user_pubkey" binding:"required"`
	Amount       uint64 `json:"amount" binding:"required"`
}

func handleSubmitOffer(coordinator *offer.Coordinator, hub *eventstream.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitOfferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		userPubkey, err := core.PubkeyFromBase58(req.UserPubkey)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_pubkey"})
			return
		}
		o, err := coordinator.SubmitOffer(c.Request.Context(), offer.SubmitRequest{
			AdvertiserID: req.AdvertiserID,
			PublisherID:  req.PublisherID,
			CreativeID:   req.CreativeID,
			UserPubkey:   userPubkey,
			Amount:       req.Amount,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, o)
	}
}

func handleAcceptOffer(coordinator *offer.Coordinator, hub *eventstream.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		offerID, ok := parseOfferID(c)
		if !ok {
			return
		}
		reqs, err := coordinator.AcceptOffer(c.Request.Context(), offerID)
		if err != nil {
			writeError(c, err)
			return
		}
		hub.Publish(core.Event{Type: core.EventOfferAccepted, OfferID: offerID.String(), Timestamp: time.Now().UTC()})
		// The 402 handshake carries its terms in both the response headers
		// and the JSON body, so callers can read whichever is easier.
		// WriteRequired only sets the status on c.Writer (gin defers the
		// actual status line until the body is written), so following it
		// with c.JSON does not double-write.
		x402.WriteRequired(c.Writer, reqs)
		c.JSON(http.StatusPaymentRequired, reqs)
	}
}

type verifyPaymentRequest struct {
	TxID          string `json:"tx_id" binding:"required"`
	EscrowAddress string `json:"escrow_address" binding:"required"`
}

func handleVerifyPayment(coordinator *offer.Coordinator, hub *eventstream.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		offerID, ok := parseOfferID(c)
		if !ok {
			return
		}
		var req verifyPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		escrowAddress, err := core.PubkeyFromBase58(req.EscrowAddress)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid escrow_address"})
			return
		}
		o, err := coordinator.VerifyPayment(c.Request.Context(), offerID, req.TxID, escrowAddress)
		if err != nil {
			writeError(c, err)
			return
		}
		hub.Publish(core.Event{Type: core.EventEscrowFunded, OfferID: offerID.String(), Timestamp: time.Now().UTC()})
		c.JSON(http.StatusOK, o)
	}
}

func handleGetOffer(offerRepo *repository.OfferRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		offerID, ok := parseOfferID(c)
		if !ok {
			return
		}
		o, err := offerRepo.Get(c.Request.Context(), offerID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

type assessRequest struct {
	CircuitID    string `json:"circuit_id"`
	ProofBase64  string `json:"proof_base64"`
}

func handleAssessSingle(coordinator *offer.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		offerID, ok := parseOfferID(c)
		if !ok {
			return
		}
		var req assessRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := coordinator.AssessSingle(c.Request.Context(), oracle.Request{
			OfferID:   offerID,
			CircuitID: proof.CircuitID(req.CircuitID),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleAssessBatch(coordinator *offer.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var reqs []oracle.Request
		if err := c.ShouldBindJSON(&reqs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		results, err := coordinator.AssessBatch(c.Request.Context(), reqs)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

// MinImpressionDurationMS is the minimum attention dwell time an impression
// must report before it is eligible for settlement.
const MinImpressionDurationMS = 1000

type impressionReport struct {
	OfferID         string `json:"offer_id" binding:"required"`
	UserPubkey      string `json:"user_pubkey" binding:"required"`
	PublisherPubkey string `json:"publisher_pubkey" binding:"required"`
	DurationMS      int64  `json:"duration_ms" binding:"required"`
}

type settlementTransaction struct {
	Type        string `json:"type"`
	TxID        string `json:"tx_id,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

type impressionReportResponse struct {
	Settled      bool                     `json:"settled"`
	Transactions []settlementTransaction `json:"transactions"`
}

// handleImpressionReport is the entry point that turns a confirmed
// impression into a three-leg settlement. It requires the offer to be
// funded and the reported dwell time to meet MinImpressionDurationMS before
// dispatching settlement, and blocks until every leg has resolved so the
// response can report per-leg transaction ids.
func handleImpressionReport(engine *settlement.Engine, offerRepo *repository.OfferRepository, hub *eventstream.Hub, logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req impressionReport
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.DurationMS < MinImpressionDurationMS {
			c.JSON(http.StatusBadRequest, gin.H{"error": "duration_ms must be at least 1000"})
			return
		}
		offerID, err := core.OfferIDFromHex(req.OfferID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offer_id"})
			return
		}
		userPubkey, err := core.PubkeyFromBase58(req.UserPubkey)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_pubkey"})
			return
		}
		publisherPubkey, err := core.PubkeyFromBase58(req.PublisherPubkey)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid publisher_pubkey"})
			return
		}

		o, err := offerRepo.Get(c.Request.Context(), offerID)
		if err != nil {
			writeError(c, err)
			return
		}
		if o.Status != offer.StatusFunded {
			writeError(c, perrors.ErrOfferNotFunded)
			return
		}

		addr, _, err := escrow.DeriveEscrowAddress(engine.ProgramID(), offerID)
		if err != nil {
			writeError(c, err)
			return
		}

		hub.Publish(core.Event{Type: core.EventSettlementQueued, OfferID: offerID.String(), Timestamp: time.Now().UTC()})

		ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
		defer cancel()
		results, err := engine.Settle(ctx, offerID, addr, userPubkey, publisherPubkey)
		if err != nil {
			logger.Warn("settlement dispatch reported a failed leg (queued for retry)",
				"offer_id", offerID.String(), "error", err)
			hub.Publish(core.Event{Type: core.EventSettlementFailed, OfferID: offerID.String(), Timestamp: time.Now().UTC(), Detail: err.Error()})
		} else {
			hub.Publish(core.Event{Type: core.EventSettlementComplete, OfferID: offerID.String(), Timestamp: time.Now().UTC()})
		}

		resp := impressionReportResponse{Settled: err == nil}
		for _, r := range results {
			if !r.Success {
				continue
			}
			resp.Transactions = append(resp.Transactions, settlementTransaction{Type: string(r.TxType), TxID: r.TxID})
		}
		c.JSON(http.StatusOK, resp)
	}
}

func parseOfferID(c *gin.Context) (core.OfferID, bool) {
	offerID, err := core.OfferIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offer id"})
		return nil, false
	}
	return offerID, true
}

func writeError(c *gin.Context, err error) {
	c.JSON(perrors.HTTPStatus(err), gin.H{"error": err.Error()})
}

func panicFatal(err error) {
	panic(err)
}
