package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fiberline/opsbot/internal/models"
	"github.com/fiberline/opsbot/internal/session"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all admin routes on the Gin router.
func registerRoutes(router *gin.Engine, store session.Store, actions ActionLister) {
	router.GET("/healthz", handleHealth())
	router.GET("/sessions", handleSessionList(store))
	router.GET("/sessions/:key", handleSessionGet(store))
	router.DELETE("/sessions/:key", handleSessionDelete(store))
	if actions != nil {
		router.GET("/actions", handleActions(actions))
	}
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleSessionList(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := store.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if list == nil {
			list = []session.Summary{}
		}
		c.JSON(http.StatusOK, list)
	}
}

func handleSessionGet(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := store.Get(c.Request.Context(), c.Param("key"))
		switch {
		case errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, s)
		}
	}
}

func handleSessionDelete(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Delete(c.Request.Context(), c.Param("key")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// actionView is the JSON shape of one audit row.
type actionView struct {
	ID              uint      `json:"id"`
	ConversationKey string    `json:"conversation_key"`
	UserName        string    `json:"user_name"`
	Action          string    `json:"action"`
	OLT             string    `json:"olt,omitempty"`
	Interface       string    `json:"interface,omitempty"`
	Target          string    `json:"target,omitempty"`
	Outcome         string    `json:"outcome"`
	Detail          string    `json:"detail,omitempty"`
	LatencyMs       int       `json:"latency_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

func toActionView(r models.ActionLog) actionView {
	return actionView{
		ID:              r.ID,
		ConversationKey: r.ConversationKey,
		UserName:        r.UserName,
		Action:          r.Action,
		OLT:             r.OLT,
		Interface:       r.Interface,
		Target:          r.Target,
		Outcome:         r.Outcome,
		Detail:          r.Detail,
		LatencyMs:       r.LatencyMs,
		CreatedAt:       r.CreatedAt,
	}
}

// handleActions lists recent audit entries, optionally filtered by
// ?action= and capped by ?limit= (default 50).
func handleActions(actions ActionLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		rows, err := actions.Recent(c.Request.Context(), c.Query("action"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]actionView, 0, len(rows))
		for _, r := range rows {
			out = append(out, toActionView(r))
		}
		c.JSON(http.StatusOK, out)
	}
}
