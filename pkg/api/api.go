// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/attrib/pkg/admission"
	"github.com/luxfi/attrib/pkg/analytics"
	"github.com/luxfi/attrib/pkg/billing"
	"github.com/luxfi/attrib/pkg/campaign"
	"github.com/luxfi/attrib/pkg/gateway"
	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/log"
	"github.com/luxfi/attrib/pkg/metric"
	"github.com/luxfi/attrib/pkg/treasury"
)

// Server exposes the settlement core over HTTP
type Server struct {
	ledger    *campaign.Ledger
	vault     *treasury.Vault
	engine    *billing.Engine
	gateway   *gateway.Gateway
	analytics *analytics.Aggregator
	metrics   *metric.Metrics
	log       log.Logger
}

// NewServer creates an API server
func NewServer(
	ledger *campaign.Ledger,
	vault *treasury.Vault,
	engine *billing.Engine,
	gw *gateway.Gateway,
	agg *analytics.Aggregator,
	m *metric.Metrics,
	logger log.Logger,
) *Server {
	return &Server{
		ledger:    ledger,
		vault:     vault,
		engine:    engine,
		gateway:   gw,
		analytics: agg,
		metrics:   m,
		log:       logger,
	}
}

// Router builds the gin engine with all routes registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			s.metrics.GetGatherer(),
			promhttp.HandlerOpts{},
		)))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/campaigns", s.registerCampaign)
		v1.GET("/campaigns/:id", s.getCampaign)
		v1.POST("/campaigns/:id/budget", s.updateBudget)
		v1.POST("/campaigns/:id/close", s.closeCampaign)
		v1.POST("/campaigns/:id/deposit", s.deposit)
		v1.GET("/campaigns/:id/metrics", s.campaignMetrics)
		v1.POST("/conversions", s.submitConversion)
		v1.POST("/conversions/batch", s.submitBatch)
		v1.GET("/receipts/:id", s.getReceipt)
		v1.POST("/estimate", s.estimateBatchCost)
	}

	return router
}

type registerCampaignRequest struct {
	Owner       string `json:"owner" binding:"required"`
	Budget      uint64 `json:"budget" binding:"required"`
	Pricing     uint8  `json:"pricing"`
	MetadataRef string `json:"metadata_ref" binding:"required"`
}

func (s *Server) registerCampaign(c *gin.Context) {
	var req registerCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner, err := ids.IdentityFromString(req.Owner)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner identity"})
		return
	}

	id, err := s.ledger.Register(owner, req.Budget, campaign.PricingModel(req.Pricing), req.MetadataRef)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"campaign_id": id})
}

func (s *Server) getCampaign(c *gin.Context) {
	id, ok := parseCampaignID(c)
	if !ok {
		return
	}

	record, err := s.ledger.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           record.ID,
		"owner":        record.Owner.String(),
		"budget":       record.Budget,
		"spent":        record.Spent,
		"pricing":      uint8(record.Pricing),
		"metadata_ref": record.MetadataRef,
		"active":       record.Active,
		"created_at":   record.CreatedAt,
		"balance":      s.vault.Balance(record.ID),
	})
}

type updateBudgetRequest struct {
	Caller    string `json:"caller" binding:"required"`
	NewBudget uint64 `json:"new_budget" binding:"required"`
}

func (s *Server) updateBudget(c *gin.Context) {
	id, ok := parseCampaignID(c)
	if !ok {
		return
	}

	var req updateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller, err := ids.IdentityFromString(req.Caller)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid caller identity"})
		return
	}

	if err := s.ledger.UpdateBudget(caller, id, req.NewBudget); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaign_id": id, "budget": req.NewBudget})
}

type closeCampaignRequest struct {
	Caller string `json:"caller" binding:"required"`
}

func (s *Server) closeCampaign(c *gin.Context) {
	id, ok := parseCampaignID(c)
	if !ok {
		return
	}

	var req closeCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller, err := ids.IdentityFromString(req.Caller)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid caller identity"})
		return
	}

	if err := s.ledger.Close(caller, id); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaign_id": id, "active": false})
}

type depositRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

func (s *Server) deposit(c *gin.Context) {
	id, ok := parseCampaignID(c)
	if !ok {
		return
	}

	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.vault.Deposit(id, req.Amount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaign_id": id, "balance": s.vault.Balance(id)})
}

func (s *Server) campaignMetrics(c *gin.Context) {
	id, ok := parseCampaignID(c)
	if !ok {
		return
	}

	m, err := s.analytics.GetMetrics(id)
	if err != nil {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, m)
}

type conversionRequest struct {
	CampaignID           uint64   `json:"campaign_id" binding:"required"`
	ClickCommitment      string   `json:"click_commitment" binding:"required"`
	ConversionCommitment string   `json:"conversion_commitment" binding:"required"`
	Nullifier            string   `json:"nullifier" binding:"required"`
	User                 string   `json:"user" binding:"required"`
	Device               string   `json:"device" binding:"required"`
	Weight               uint32   `json:"weight"`
	ProofA               []byte   `json:"proof_a" binding:"required"`
	ProofB               []byte   `json:"proof_b" binding:"required"`
	ProofC               []byte   `json:"proof_c" binding:"required"`
	PublicInputs         []string `json:"public_inputs" binding:"required"`
}

func (r *conversionRequest) toSubmission() (gateway.Submission, error) {
	click, err := ids.FromString(r.ClickCommitment)
	if err != nil {
		return gateway.Submission{}, errors.New("invalid click commitment")
	}
	conv, err := ids.FromString(r.ConversionCommitment)
	if err != nil {
		return gateway.Submission{}, errors.New("invalid conversion commitment")
	}
	n, err := ids.FromString(r.Nullifier)
	if err != nil {
		return gateway.Submission{}, errors.New("invalid nullifier")
	}
	user, err := ids.IdentityFromString(r.User)
	if err != nil {
		return gateway.Submission{}, errors.New("invalid user identity")
	}
	device, err := ids.IdentityFromString(r.Device)
	if err != nil {
		return gateway.Submission{}, errors.New("invalid device identity")
	}

	inputs := make([]ids.ID, len(r.PublicInputs))
	for i, s := range r.PublicInputs {
		inputs[i], err = ids.FromString(s)
		if err != nil {
			return gateway.Submission{}, errors.New("invalid public input")
		}
	}

	return gateway.Submission{
		CampaignID:           r.CampaignID,
		ClickCommitment:      click,
		ConversionCommitment: conv,
		Nullifier:            n,
		User:                 user,
		Device:               device,
		Weight:               r.Weight,
		Proof: &admission.Proof{
			A:            r.ProofA,
			B:            r.ProofB,
			C:            r.ProofC,
			PublicInputs: inputs,
		},
	}, nil
}

func (s *Server) submitConversion(c *gin.Context) {
	var req conversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := req.toSubmission()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome := s.gateway.Submit(c.Request.Context(), sub)
	status := http.StatusOK
	if !outcome.Accepted() {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, outcome)
}

type batchRequest struct {
	Conversions []conversionRequest `json:"conversions" binding:"required"`
}

func (s *Server) submitBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch := gateway.Batch{
		CampaignIDs:           make([]uint64, len(req.Conversions)),
		ClickCommitments:      make([]ids.ID, len(req.Conversions)),
		ConversionCommitments: make([]ids.ID, len(req.Conversions)),
		Nullifiers:            make([]ids.ID, len(req.Conversions)),
		Proofs:                make([]*admission.Proof, len(req.Conversions)),
		Users:                 make([]ids.Identity, len(req.Conversions)),
		Devices:               make([]ids.Identity, len(req.Conversions)),
		Weights:               make([]uint32, len(req.Conversions)),
	}
	for i := range req.Conversions {
		sub, err := req.Conversions[i].toSubmission()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "index": i})
			return
		}
		batch.CampaignIDs[i] = sub.CampaignID
		batch.ClickCommitments[i] = sub.ClickCommitment
		batch.ConversionCommitments[i] = sub.ConversionCommitment
		batch.Nullifiers[i] = sub.Nullifier
		batch.Proofs[i] = sub.Proof
		batch.Users[i] = sub.User
		batch.Devices[i] = sub.Device
		batch.Weights[i] = sub.Weight
	}

	outcomes, err := s.gateway.BatchSubmit(c.Request.Context(), batch)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

func (s *Server) getReceipt(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt id"})
		return
	}

	receipt, ok := s.gateway.GetReceipt(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "receipt not found"})
		return
	}

	c.JSON(http.StatusOK, receipt)
}

type estimateRequest struct {
	CampaignID uint64   `json:"campaign_id" binding:"required"`
	Weights    []uint32 `json:"weights"`
}

func (s *Server) estimateBatchCost(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	total, err := s.engine.EstimateBatchCost(req.CampaignID, req.Weights)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaign_id": req.CampaignID, "total": total})
}

func parseCampaignID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, campaign.ErrNotOwner):
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}
