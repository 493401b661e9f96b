package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/coinmaksim2021-prog/auc-mob/internal/model"
	"github.com/coinmaksim2021-prog/auc-mob/internal/service"
	"github.com/coinmaksim2021-prog/auc-mob/internal/util"
)

// UserHandler handles HTTP requests for wallet registration and referrals
type UserHandler struct {
	userService *service.UserService
	logger      *zap.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

// Request bodies. Unknown fields in the incoming JSON are dropped at this
// boundary, not rejected.
type registerRequest struct {
	WalletAddress string `json:"wallet_address"`
	InviteCode    string `json:"invite_code"`
}

type verifyInviteRequest struct {
	InviteCode string `json:"invite_code"`
}

type connectTwitterRequest struct {
	WalletAddress   string `json:"wallet_address"`
	TwitterUsername string `json:"twitter_username"`
}

type acceptTermsRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// Response bodies mirror the platform's existing wire contract.
type registerResponse struct {
	Success bool        `json:"success"`
	IsNew   bool        `json:"is_new"`
	User    *model.User `json:"user"`
	Message string      `json:"message"`
}

type userInfoResponse struct {
	Exists bool        `json:"exists"`
	User   *model.User `json:"user"`
}

type verifyInviteResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RegisterRoutes registers all wallet and referral routes
func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Route("/user", func(r chi.Router) {
		r.Post("/register", h.RegisterWallet)
		r.Post("/accept-terms", h.AcceptTerms)
		r.Get("/{walletAddress}", h.GetUserInfo)
	})
	router.Post("/invite/verify", h.VerifyInviteCode)
	router.Post("/twitter/connect", h.ConnectTwitter)
	router.Get("/referrals/{walletAddress}", h.ListReferrals)
}

// RegisterWallet creates a user record for a wallet, or returns the
// existing one. POST /user/register
func (h *UserHandler) RegisterWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.userService.RegisterWallet(ctx, req.WalletAddress, req.InviteCode)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to register wallet")
		return
	}

	message := "Wallet already registered"
	if result.IsNew {
		message = "Wallet registered successfully"
	}

	h.respondWithJSON(w, http.StatusOK, registerResponse{
		Success: true,
		IsNew:   result.IsNew,
		User:    result.User,
		Message: message,
	})
	h.logger.Info("Wallet registration handled",
		util.String("wallet_address", result.User.WalletAddress),
		util.Bool("is_new", result.IsNew),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "RegisterWallet"),
	)
}

// GetUserInfo returns registration info for a wallet. A missing wallet is
// not an error here; the response carries exists=false.
// GET /user/{walletAddress}
func (h *UserHandler) GetUserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	walletAddress := chi.URLParam(r, "walletAddress")
	user, err := h.userService.GetUserInfo(ctx, walletAddress)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			h.respondWithJSON(w, http.StatusOK, userInfoResponse{Exists: false, User: nil})
			return
		}
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get wallet info")
		return
	}

	h.respondWithJSON(w, http.StatusOK, userInfoResponse{Exists: true, User: user})
}

// VerifyInviteCode checks whether an invite code belongs to a registered
// user. POST /invite/verify
func (h *UserHandler) VerifyInviteCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	valid, err := h.userService.VerifyInviteCode(ctx, req.InviteCode)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to verify invite code")
		return
	}

	message := "Invite code not found"
	if valid {
		message = "Valid invite code"
	} else if len(util.NormalizeInviteCode(req.InviteCode)) != util.InviteCodeLength {
		message = "Invalid code format"
	}

	h.respondWithJSON(w, http.StatusOK, verifyInviteResponse{Valid: valid, Message: message})
}

// ConnectTwitter attaches a Twitter username to a registered wallet.
// POST /twitter/connect
func (h *UserHandler) ConnectTwitter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req connectTwitterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.userService.ConnectTwitter(ctx, req.WalletAddress, req.TwitterUsername); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to connect Twitter")
		return
	}

	h.respondWithJSON(w, http.StatusOK, statusResponse{
		Success: true,
		Message: "Twitter connected successfully",
	})
}

// AcceptTerms marks the terms as accepted for a registered wallet.
// POST /user/accept-terms
func (h *UserHandler) AcceptTerms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req acceptTermsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.userService.AcceptTerms(ctx, req.WalletAddress); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to accept terms")
		return
	}

	h.respondWithJSON(w, http.StatusOK, statusResponse{
		Success: true,
		Message: "Terms accepted successfully",
	})
}

// ListReferrals returns the wallets referred by this wallet's invite code.
// GET /referrals/{walletAddress}
func (h *UserHandler) ListReferrals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	walletAddress := chi.URLParam(r, "walletAddress")
	list, err := h.userService.ListReferrals(ctx, walletAddress)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to list referrals")
		return
	}

	h.respondWithJSON(w, http.StatusOK, list)
}

// HealthCheck is a lightweight liveness probe for the API subtree.
func (h *UserHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, statusResponse{Success: true, Message: "healthy"})
}

func (h *UserHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *UserHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse{
		Success: false,
		Error:   err.Error(),
		Message: message,
	})
}

func (h *UserHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
