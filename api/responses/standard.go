package responses

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListMeta describes a bounded list response
type ListMeta struct {
	Count int `json:"count"`
	Limit int `json:"limit"`
}

// ListResponse wraps a list of items with its bounds
type ListResponse struct {
	Items interface{} `json:"items"`
	Meta  ListMeta    `json:"meta"`
}

// Text sends an identifier or scalar as text/plain, the way clients of the
// gateway read mutation ids, owners and balances.
func Text(c *gin.Context, value string) {
	c.String(http.StatusOK, value)
}

// Object sends v as a JSON body
func Object(c *gin.Context, v interface{}) {
	c.JSON(http.StatusOK, v)
}

// List sends items with their count and the limit that bounded them
func List(c *gin.Context, items interface{}, count, limit int) {
	c.JSON(http.StatusOK, ListResponse{
		Items: items,
		Meta:  ListMeta{Count: count, Limit: limit},
	})
}
