package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rovshanmuradov/candymint/internal/eligibility"
	"github.com/rovshanmuradov/candymint/internal/engine"
	"github.com/rovshanmuradov/candymint/internal/failure"
)

// ErrorResponse is a classified failure as shown to API clients.
type ErrorResponse struct {
	Kind    failure.Kind `json:"kind"`
	Message string       `json:"message"`
}

// TierResponse is the JSON view of engine.TierStatus.
type TierResponse struct {
	Name           string                `json:"name"`
	Snapshot       *eligibility.Snapshot `json:"snapshot,omitempty"`
	TxBytes        uint32                `json:"tx_bytes"`
	MustSplit      bool                  `json:"must_split"`
	HasCollection  bool                  `json:"has_collection"`
	Disabled       bool                  `json:"disabled"`
	MintInProgress bool                  `json:"mint_in_progress"`
	PendingSetup   bool                  `json:"pending_setup"`
	LastError      *ErrorResponse        `json:"last_error,omitempty"`
}

func tierResponse(st engine.TierStatus) TierResponse {
	resp := TierResponse{
		Name:           st.Name,
		Snapshot:       st.Snapshot,
		TxBytes:        st.Estimate.Bytes,
		MustSplit:      st.Estimate.MustSplit,
		HasCollection:  st.HasCollection,
		Disabled:       st.Disabled,
		MintInProgress: st.MintInProgress,
		PendingSetup:   st.PendingSetup,
	}
	if st.LastErr != nil {
		resp.LastError = &ErrorResponse{Kind: st.LastErr.Kind, Message: st.LastErr.Message}
	}
	return resp
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listTiers(c *gin.Context) {
	names := s.source.Tiers()
	out := make([]TierResponse, 0, len(names))
	for _, name := range names {
		st, err := s.source.Status(name)
		if err != nil {
			continue
		}
		out = append(out, tierResponse(st))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getTier(c *gin.Context) {
	st, err := s.source.Status(c.Param("tier"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrUnknownTier) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tierResponse(st))
}

func (s *Server) listAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, s.center.Alerts())
}

func (s *Server) listNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, s.center.Notifications())
}
