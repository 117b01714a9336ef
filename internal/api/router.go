// Package api is the thin, CORS-enabled REST framing around the client
// operation surface named in spec section 6: read, write, delete, clear,
// status. It is deliberately minimal — no dashboard, no templating, no
// session state — matching spec section 1's framing of this layer as
// "thin and easily re-implemented."
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/btmorr/raftkv/internal/consensus"
)

// proposeTimeout bounds how long a write waits for commit before the
// client gets back an "unknown" result, per spec section 8.
const proposeTimeout = 2 * time.Second

// Router builds the gin engine for the client operation surface, wrapped
// in CORS middleware via rs/cors, matching the reference codebase's
// dependency pairing of gin + rs/cors for its client-facing API.
func Router(node *consensus.Node) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/v1/kv/:key", func(c *gin.Context) { handleGet(c, node) })
	r.PUT("/v1/kv/:key", func(c *gin.Context) { handlePut(c, node) })
	r.DELETE("/v1/kv/:key", func(c *gin.Context) { handleDelete(c, node) })
	r.POST("/v1/clear", func(c *gin.Context) { handleClear(c, node) })
	r.GET("/v1/status", func(c *gin.Context) { handleStatus(c, node) })

	corsMW := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return corsMW.Handler(r)
}

type writeRequest struct {
	Value string `json:"value"`
	// TTLMillis <= 0 means no expiry.
	TTLMillis int64 `json:"ttl_millis"`
}

func outcomeResponse(c *gin.Context, outcome consensus.Outcome, index int64, leaderHint string) {
	switch outcome {
	case consensus.Accepted:
		c.JSON(http.StatusOK, gin.H{"result": "ok", "index": index})
	case consensus.Redirect:
		c.JSON(http.StatusMisdirectedRequest, gin.H{"result": "redirect", "leader": leaderHint})
	case consensus.NotLeaderNoHint:
		c.JSON(http.StatusServiceUnavailable, gin.H{"result": "not-leader-no-hint"})
	case consensus.Unavailable:
		c.JSON(http.StatusServiceUnavailable, gin.H{"result": "unavailable"})
	case consensus.Unknown:
		c.JSON(http.StatusGatewayTimeout, gin.H{"result": "unknown", "index": index})
	}
}

func handleGet(c *gin.Context, node *consensus.Node) {
	key := c.Param("key")
	value, ok := node.Cache().Get(key, time.Now())
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"result": "absent"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "ok", "value": value})
}

func handlePut(c *gin.Context, node *consensus.Node) {
	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": "bad-request", "error": err.Error()})
		return
	}
	key := c.Param("key")
	ttl := time.Duration(0)
	if req.TTLMillis > 0 {
		ttl = time.Duration(req.TTLMillis) * time.Millisecond
	}

	ctx, cancel := withProposeTimeout(c)
	defer cancel()
	outcome, idx, hint := node.Propose(ctx, consensus.SetCommand(key, req.Value, ttl))
	outcomeResponse(c, outcome, idx, hint)
}

func handleDelete(c *gin.Context, node *consensus.Node) {
	key := c.Param("key")
	ctx, cancel := withProposeTimeout(c)
	defer cancel()
	outcome, idx, hint := node.Propose(ctx, consensus.DeleteCommand(key))
	outcomeResponse(c, outcome, idx, hint)
}

func handleClear(c *gin.Context, node *consensus.Node) {
	ctx, cancel := withProposeTimeout(c)
	defer cancel()
	outcome, idx, hint := node.Propose(ctx, consensus.ClearCommand())
	outcomeResponse(c, outcome, idx, hint)
}

func handleStatus(c *gin.Context, node *consensus.Node) {
	st := node.Status()
	c.JSON(http.StatusOK, gin.H{
		"id":           st.ID,
		"role":         st.Role.String(),
		"term":         st.Term,
		"log_length":   st.LogLength,
		"commit_index": st.CommitIndex,
		"last_applied": st.LastApplied,
		"leader_hint":  st.LeaderHint,
		"cluster_size": st.ClusterSize,
	})
}

func withProposeTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), proposeTimeout)
}
