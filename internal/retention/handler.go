package retention

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the operational purge endpoint.
func (s *Sweeper) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/admin/purge", s.HandlePurge)
}

// HandlePurge runs a retention purge on demand and reports what it removed.
// Like the scheduled runs, it never fails the request: partial failures are
// logged and the report carries whatever succeeded.
func (s *Sweeper) HandlePurge(c *gin.Context) {
	c.JSON(http.StatusOK, s.RunPurge(c.Request.Context()))
}
