// Package api is the HTTP surface of the sweeper: the status, session and
// sweep operations a UI would drive. It holds no sweeping logic of its own.
package api

import (
	"context"
	"errors"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/THaGKI9/eth-wallet-sweeper/internal/chains"
	"github.com/THaGKI9/eth-wallet-sweeper/internal/executor"
	"github.com/THaGKI9/eth-wallet-sweeper/internal/session"
	"github.com/THaGKI9/eth-wallet-sweeper/internal/sweep"
)

// SessionManager is the slice of session.Manager the handlers need.
// Decoupled here so handler tests can use a stub.
type SessionManager interface {
	Connect(ctx context.Context, chainID int64, rpcURL string) (session.Info, error)
	Disconnect()
	Current() (session.Info, bool)
	Execute(recipient string) (executor.Execution, error)
	Execution() (executor.Execution, bool)
}

// Handler wires the sweeper routes onto a Gin engine.
type Handler struct {
	mgr              SessionManager
	store            *sweep.Store
	version          string
	defaultRecipient string
	log              *zap.Logger
}

func NewHandler(mgr SessionManager, store *sweep.Store, version, defaultRecipient string, log *zap.Logger) *Handler {
	return &Handler{
		mgr:              mgr,
		store:            store,
		version:          version,
		defaultRecipient: defaultRecipient,
		log:              log,
	}
}

// Register mounts all routes on the group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/status", h.getStatus)
	rg.GET("/chains", h.getChains)
	rg.POST("/connect", h.postConnect)
	rg.POST("/disconnect", h.postDisconnect)
	rg.PUT("/gas", h.putGas)
	rg.POST("/sweep", h.postSweep)
}

// ── Status ───────────────────────────────────────────────────────────────────

func str(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func (h *Handler) getStatus(c *gin.Context) {
	snap := h.store.Snapshot()
	resp := gin.H{
		"version": h.version,
		"gas": gin.H{
			"mode":          snap.GasMode,
			"custom_input":  snap.CustomGasInput,
			"network_gwei":  sweep.FormatGwei(snap.NetworkGasPrice),
			"resolved_gwei": sweep.FormatGwei(snap.ResolvedPrice),
		},
		"plan": gin.H{
			"gas_limit":      sweep.GasLimit,
			"gas_fee_wei":    str(snap.Plan.GasFee),
			"gas_fee_ether":  sweep.FormatEther(snap.Plan.GasFee),
			"transfer_wei":   str(snap.Plan.TransferValue),
			"transfer_ether": sweep.FormatEther(snap.Plan.TransferValue),
			"sweepable":      snap.Plan.Sweepable(),
		},
	}

	if info, ok := h.mgr.Current(); ok {
		resp["session"] = info
	}
	if snap.Balance != nil {
		resp["balance"] = gin.H{
			"wei":         snap.Balance.String(),
			"ether":       sweep.FormatEther(snap.Balance),
			"observed_at": snap.BalanceAt.Unix(),
		}
	}
	if exec, ok := h.mgr.Execution(); ok {
		resp["execution"] = h.executionJSON(exec)
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) executionJSON(exec executor.Execution) gin.H {
	out := gin.H{"state": exec.State}
	if exec.TxHash != "" {
		out["tx_hash"] = exec.TxHash
		if info, ok := h.mgr.Current(); ok {
			out["explorer_url"] = chains.TxURL(info.ChainID, exec.TxHash)
		}
	}
	if exec.Value != nil {
		out["value_wei"] = exec.Value.String()
		out["value_ether"] = sweep.FormatEther(exec.Value)
		out["recipient"] = exec.Recipient.Hex()
	}
	if exec.ErrorDetail != "" {
		out["error"] = exec.ErrorDetail
	}
	return out
}

// ── Chains ───────────────────────────────────────────────────────────────────

func (h *Handler) getChains(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"chains": chains.All()})
}

// ── Session ──────────────────────────────────────────────────────────────────

type connectRequest struct {
	ChainID int64  `json:"chain_id" binding:"required"`
	RPCURL  string `json:"rpc_url"`
}

func (h *Handler) postConnect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := h.mgr.Connect(c.Request.Context(), req.ChainID, req.RPCURL)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, session.ErrConnectInProgress) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": info})
}

func (h *Handler) postDisconnect(c *gin.Context) {
	h.mgr.Disconnect()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ── Gas policy ───────────────────────────────────────────────────────────────

type gasRequest struct {
	Mode        string  `json:"mode"`
	CustomInput *string `json:"custom_input"`
}

func (h *Handler) putGas(c *gin.Context) {
	var req gasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Mode {
	case "":
	case string(sweep.GasAuto):
		h.store.SetGasMode(sweep.GasAuto)
	case string(sweep.GasCustom):
		h.store.SetGasMode(sweep.GasCustom)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be \"auto\" or \"custom\""})
		return
	}

	if req.CustomInput != nil {
		h.store.SetCustomGasInput(*req.CustomInput)
	}

	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"mode":          snap.GasMode,
		"custom_input":  snap.CustomGasInput,
		"resolved_gwei": sweep.FormatGwei(snap.ResolvedPrice),
	})
}

// ── Sweep ────────────────────────────────────────────────────────────────────

type sweepRequest struct {
	Recipient string `json:"recipient"`
}

func (h *Handler) postSweep(c *gin.Context) {
	var req sweepRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Recipient == "" {
		req.Recipient = h.defaultRecipient
	}

	exec, err := h.mgr.Execute(req.Recipient)
	if err != nil {
		c.JSON(sweepErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.log.Info("sweep accepted", zap.String("recipient", req.Recipient))
	c.JSON(http.StatusAccepted, gin.H{"execution": h.executionJSON(exec)})
}

func sweepErrorStatus(err error) int {
	switch {
	case errors.Is(err, executor.ErrExecutionInFlight):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoSession):
		return http.StatusBadRequest
	case errors.Is(err, executor.ErrInvalidRecipient),
		errors.Is(err, executor.ErrZeroBalance),
		errors.Is(err, executor.ErrNothingToSweep):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
