package api

import (
	"github.com/gin-gonic/gin"

	"github.com/MoMannn/wanchain-example/api/responses"
	"github.com/MoMannn/wanchain-example/internal/ledger"
)

type deployRequest struct {
	Name         string              `json:"name" form:"name" validate:"required"`
	Symbol       string              `json:"symbol" form:"symbol" validate:"required"`
	URIBase      string              `json:"uriBase" form:"uriBase"`
	SchemaID     string              `json:"schemaId" form:"schemaId" validate:"required,bytes32"`
	Capabilities []ledger.Capability `json:"capabilities" form:"capabilities" validate:"dive,capability"`
}

type mintRequest struct {
	AssetLedgerID string `json:"assetLedgerId" form:"assetLedgerId" validate:"required,eth_addr"`
	ReceiverID    string `json:"receiverId" form:"receiverId" validate:"required,eth_addr"`
	ID            string `json:"id" form:"id" validate:"required,uint256"`
	Imprint       string `json:"imprint" form:"imprint" validate:"required,bytes32"`
}

type transferRequest struct {
	AssetLedgerID string `json:"assetLedgerId" form:"assetLedgerId" validate:"required,eth_addr"`
	ReceiverID    string `json:"receiverId" form:"receiverId" validate:"required,eth_addr"`
	ID            string `json:"id" form:"id" validate:"required,uint256"`
}

type ledgerQuery struct {
	AssetLedgerID string `form:"assetLedgerId" json:"assetLedgerId" validate:"required,eth_addr"`
}

type assetQuery struct {
	AssetLedgerID string `form:"assetLedgerId" json:"assetLedgerId" validate:"required,eth_addr"`
	ID            string `form:"id" json:"id" validate:"required,uint256"`
}

type balanceQuery struct {
	AssetLedgerID string `form:"assetLedgerId" json:"assetLedgerId" validate:"required,eth_addr"`
	Owner         string `form:"owner" json:"owner" validate:"required,eth_addr"`
}

// deploy handles POST /deploy and answers with the deployment mutation id
func (s *Server) deploy(c *gin.Context) {
	var req deployRequest
	if !s.bind(c, &req) {
		return
	}

	m, err := s.assets.Deploy(c.Request.Context(), ledger.DeployRecipe{
		Name:         req.Name,
		Symbol:       req.Symbol,
		URIBase:      req.URIBase,
		SchemaID:     req.SchemaID,
		Capabilities: req.Capabilities,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Text(c, m.ID)
}

// mint handles POST /mint
func (s *Server) mint(c *gin.Context) {
	var req mintRequest
	if !s.bind(c, &req) {
		return
	}

	m, err := s.assets.Mint(c.Request.Context(), req.AssetLedgerID, ledger.AssetRecipe{
		ReceiverID: req.ReceiverID,
		ID:         req.ID,
		Imprint:    req.Imprint,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Text(c, m.ID)
}

// transfer handles POST /transfer
func (s *Server) transfer(c *gin.Context) {
	var req transferRequest
	if !s.bind(c, &req) {
		return
	}

	m, err := s.assets.Transfer(c.Request.Context(), req.AssetLedgerID, ledger.TransferRecipe{
		ReceiverID: req.ReceiverID,
		ID:         req.ID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Text(c, m.ID)
}

func (s *Server) ledgerInfo(c *gin.Context) {
	var q ledgerQuery
	if !s.bind(c, &q) {
		return
	}

	info, err := s.assets.LedgerInfo(c.Request.Context(), q.AssetLedgerID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Object(c, info)
}

func (s *Server) ledgerCapabilities(c *gin.Context) {
	var q ledgerQuery
	if !s.bind(c, &q) {
		return
	}

	caps, err := s.assets.LedgerCapabilities(c.Request.Context(), q.AssetLedgerID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if caps == nil {
		caps = []ledger.Capability{}
	}
	responses.Object(c, caps)
}

func (s *Server) assetInfo(c *gin.Context) {
	var q assetQuery
	if !s.bind(c, &q) {
		return
	}

	asset, err := s.assets.AssetInfo(c.Request.Context(), q.AssetLedgerID, q.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Object(c, asset)
}

func (s *Server) assetOwner(c *gin.Context) {
	var q assetQuery
	if !s.bind(c, &q) {
		return
	}

	owner, err := s.assets.AssetOwner(c.Request.Context(), q.AssetLedgerID, q.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Text(c, owner)
}

func (s *Server) balance(c *gin.Context) {
	var q balanceQuery
	if !s.bind(c, &q) {
		return
	}

	balance, err := s.assets.Balance(c.Request.Context(), q.AssetLedgerID, q.Owner)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Text(c, balance)
}
