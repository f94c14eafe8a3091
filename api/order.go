package api

import (
	"github.com/gin-gonic/gin"

	"github.com/MoMannn/wanchain-example/api/responses"
	"github.com/MoMannn/wanchain-example/internal/gateway"
)

type actionRequest struct {
	Kind         string `json:"kind" validate:"required,oneof=create_asset transfer_asset"`
	LedgerID     string `json:"ledgerId" validate:"required,eth_addr"`
	SenderID     string `json:"senderId" validate:"omitempty,eth_addr"`
	ReceiverID   string `json:"receiverId" validate:"required,eth_addr"`
	AssetID      string `json:"assetId" validate:"required,uint256"`
	AssetImprint string `json:"assetImprint" validate:"omitempty,bytes32"`
}

type orderRequest struct {
	MakerID    string          `json:"makerId" validate:"omitempty,eth_addr"`
	TakerID    string          `json:"takerId" validate:"omitempty,eth_addr"`
	Actions    []actionRequest `json:"actions" validate:"required,min=1,dive"`
	Seed       int64           `json:"seed" validate:"gte=0"`
	Expiration int64           `json:"expiration" validate:"gte=0"`
}

type performRequest struct {
	Order orderRequest `json:"order" validate:"required"`
	Claim string       `json:"claim" validate:"required"`
}

// OrderResponse is a claimed order ready to be handed to its taker
type OrderResponse struct {
	Order *gateway.Order `json:"order"`
	Claim string         `json:"claim"`
}

func (r orderRequest) toOrder() gateway.Order {
	order := gateway.Order{
		MakerID:    r.MakerID,
		TakerID:    r.TakerID,
		Seed:       r.Seed,
		Expiration: r.Expiration,
		Actions:    make([]gateway.Action, 0, len(r.Actions)),
	}
	for _, a := range r.Actions {
		order.Actions = append(order.Actions, gateway.Action{
			Kind:         gateway.ActionKind(a.Kind),
			LedgerID:     a.LedgerID,
			SenderID:     a.SenderID,
			ReceiverID:   a.ReceiverID,
			AssetID:      a.AssetID,
			AssetImprint: a.AssetImprint,
		})
	}
	return order
}

// createOrder handles POST /atomic-order: the gateway account claims the order as its maker
func (s *Server) createOrder(c *gin.Context) {
	var req orderRequest
	if !s.bind(c, &req) {
		return
	}

	order, claim, err := s.assets.CreateOrder(c.Request.Context(), req.toOrder())
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Object(c, OrderResponse{Order: order, Claim: claim})
}

// performOrder handles POST /atomic-order/perform: the gateway account submits a
// claimed order as its taker
func (s *Server) performOrder(c *gin.Context) {
	var req performRequest
	if !s.bind(c, &req) {
		return
	}

	m, err := s.assets.PerformOrder(c.Request.Context(), req.Order.toOrder(), req.Claim)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Text(c, m.ID)
}
