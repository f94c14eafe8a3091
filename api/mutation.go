package api

import (
	"github.com/gin-gonic/gin"

	"github.com/MoMannn/wanchain-example/api/responses"
	"github.com/MoMannn/wanchain-example/internal/mutation"
)

type mutationQuery struct {
	ID string `form:"id" json:"id" validate:"required,bytes32"`
}

type mutationsQuery struct {
	AssetLedgerID string `form:"assetLedgerId" json:"assetLedgerId" validate:"omitempty,eth_addr"`
	Limit         int    `form:"limit" json:"limit" validate:"gte=0"`
}

func (s *Server) getMutation(c *gin.Context) {
	var q mutationQuery
	if !s.bind(c, &q) {
		return
	}

	rec, err := s.assets.Mutation(c.Request.Context(), q.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	responses.Object(c, rec)
}

func (s *Server) listMutations(c *gin.Context) {
	var q mutationsQuery
	if !s.bind(c, &q) {
		return
	}

	recs, err := s.assets.Mutations(c.Request.Context(), q.AssetLedgerID, q.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if recs == nil {
		recs = []mutation.Record{}
	}
	responses.List(c, recs, len(recs), mutation.ClampLimit(q.Limit))
}
