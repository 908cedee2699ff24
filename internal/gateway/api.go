// ABOUTME: HTTP API handlers for accounts, tokens, search and the friend request workflow
// ABOUTME: Maps service errors to status codes and streams account events over SSE

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/friendgraph/internal/auth"
	"github.com/2389/friendgraph/internal/social"
	"github.com/2389/friendgraph/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// sseKeepAlive is the interval between comment frames on idle event streams.
const sseKeepAlive = 30 * time.Second

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// FriendRequestResponse is the public view of a friend request.
type FriendRequestResponse struct {
	ID          string     `json:"id"`
	FromAccount string     `json:"from_account"`
	ToAccount   string     `json:"to_account"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// PendingRequestResponse adds the sender's profile to a pending request.
type PendingRequestResponse struct {
	FriendRequestResponse
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

// QuotaResponse reports the caller's remaining send allowance.
type QuotaResponse struct {
	Limit             int `json:"limit"`
	Remaining         int `json:"remaining"`
	RetryAfterSeconds int `json:"retry_after_seconds"`
}

// SignupRequest is the body of POST /signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST /token/refresh.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// SendRequest is the body of POST /friend-request/send.
type SendRequest struct {
	ToAccountID string `json:"to_account_id"`
}

// RespondRequest is the body of POST /friend-request/accept and /reject.
type RespondRequest struct {
	RequestID string `json:"request_id"`
}

// Handler builds the HTTP routing tree.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.metrics.Middleware)

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)
	if g.metrics != nil {
		r.Method(http.MethodGet, g.config.Metrics.Path, g.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(g.throttle.Handler)
		r.Post("/signup", g.handleSignup)
		r.Post("/login", g.handleLogin)
	})
	r.Post("/token/refresh", g.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(g.store, g.issuer))

		r.Get("/me", g.handleMe)
		r.Get("/search", g.handleSearch)
		r.Get("/friends", g.handleFriends)
		r.Get("/events", g.handleEvents)

		r.Route("/friend-request", func(r chi.Router) {
			r.Get("/pending", g.handlePending)
			r.Get("/quota", g.handleQuota)
			r.Post("/send", g.handleSend)
			r.Post("/accept", g.handleAccept)
			r.Post("/reject", g.handleReject)
		})
	})

	return r
}

func (g *Gateway) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	account, err := auth.NewAccount(req.Email, req.Name, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrNameTooLong):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		g.internalError(w, r, "building account", err)
		return
	}

	if err := g.store.CreateAccount(r.Context(), account); err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			g.sendJSONError(w, http.StatusConflict, "email already registered")
			return
		}
		g.internalError(w, r, "creating account", err)
		return
	}

	g.logger.Info("account created", "account_id", account.ID)
	g.sendJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	account, err := auth.Authenticate(r.Context(), g.store, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			g.sendJSONError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		g.internalError(w, r, "authenticating", err)
		return
	}

	g.issueTokens(w, r, account.ID)
}

func (g *Gateway) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	subject, err := g.issuer.Redeem(req.Refresh)
	if err != nil {
		g.logger.Debug("refresh rejected", "error", err)
		g.sendJSONError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	if _, err := g.store.GetAccount(r.Context(), subject); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			g.sendJSONError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		g.internalError(w, r, "loading account", err)
		return
	}

	g.issueTokens(w, r, subject)
}

func (g *Gateway) issueTokens(w http.ResponseWriter, r *http.Request, accountID string) {
	pair, err := g.issuer.IssuePair(accountID)
	if err != nil {
		g.internalError(w, r, "issuing tokens", err)
		return
	}
	g.sendJSON(w, http.StatusOK, pair)
}

func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	g.sendJSON(w, http.StatusOK, AccountResponse{ID: id.AccountID, Email: id.Email, Name: id.Name})
}

func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	accounts, err := g.social.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		g.sendServiceError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, toAccountResponses(accounts))
}

func (g *Gateway) handleFriends(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	friends, err := g.social.FriendsOf(r.Context(), id.AccountID)
	if err != nil {
		g.sendServiceError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, toAccountResponses(friends))
}

func (g *Gateway) handlePending(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	pending, err := g.social.ListPending(r.Context(), id.AccountID)
	if err != nil {
		g.sendServiceError(w, r, err)
		return
	}

	resp := make([]PendingRequestResponse, 0, len(pending))
	for _, p := range pending {
		resp = append(resp, PendingRequestResponse{
			FriendRequestResponse: toFriendRequestResponse(&p.FriendRequest),
			FromEmail:             p.FromEmail,
			FromName:              p.FromName,
		})
	}
	g.sendJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleQuota(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	q, err := g.social.Quota(r.Context(), id.AccountID)
	if err != nil {
		g.sendServiceError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, QuotaResponse{
		Limit:             q.Limit,
		Remaining:         q.Remaining,
		RetryAfterSeconds: ceilSeconds(q.RetryAfter),
	})
}

func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	id := auth.MustFromContext(r.Context())
	fr, err := g.social.Send(r.Context(), id.AccountID, req.ToAccountID)
	if err != nil {
		g.sendServiceError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusCreated, toFriendRequestResponse(fr))
}

func (g *Gateway) handleAccept(w http.ResponseWriter, r *http.Request) {
	g.handleRespond(w, r, g.social.Accept)
}

func (g *Gateway) handleReject(w http.ResponseWriter, r *http.Request) {
	g.handleRespond(w, r, g.social.Reject)
}

// respondFunc is Service.Accept or Service.Reject.
type respondFunc func(ctx context.Context, actorID, requestID string) (*store.FriendRequest, error)

func (g *Gateway) handleRespond(w http.ResponseWriter, r *http.Request, respond respondFunc) {
	var req RespondRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	id := auth.MustFromContext(r.Context())
	fr, err := respond(r.Context(), id.AccountID, req.RequestID)
	if err != nil {
		g.sendServiceError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, toFriendRequestResponse(fr))
}

// handleEvents streams the caller's friend request events as Server-Sent Events.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	id := auth.MustFromContext(r.Context())
	ch, _ := g.broadcaster.Subscribe(r.Context(), id.AccountID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	g.writeSSEEvent(w, "connected", map[string]string{"account_id": id.AccountID})
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			g.writeSSEEvent(w, string(ev.Type), ev)
			flusher.Flush()
		}
	}
}

// sendServiceError maps a social error to its HTTP status.
func (g *Gateway) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var rle *social.RateLimitError
	switch {
	case errors.As(err, &rle):
		w.Header().Set("Retry-After", strconv.Itoa(max(ceilSeconds(rle.RetryAfter), 1)))
		g.sendJSONError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, social.ErrRateLimited):
		g.sendJSONError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, social.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, social.ErrInvalidOperand), errors.Is(err, social.ErrInvalidArgument):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, social.ErrConflict), errors.Is(err, social.ErrInvalidState):
		g.sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, social.ErrForbidden):
		g.sendJSONError(w, http.StatusForbidden, err.Error())
	default:
		g.internalError(w, r, "service call failed", err)
	}
}

// internalError logs err and writes a generic 500.
func (g *Gateway) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	g.logger.Error(msg, "error", err, "method", r.Method, "path", r.URL.Path)
	g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
}

// decodeJSON reads a bounded JSON body into dst, writing a 400 on failure.
func (g *Gateway) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// formatSSEEvent formats an SSE event as a string with the standard format:
// event: <eventType>\ndata: <data>\n\n
func formatSSEEvent(eventType, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data)
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	_, _ = fmt.Fprint(w, formatSSEEvent(event, string(dataJSON)))
}

// sendJSON writes v as a JSON response.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func toAccountResponse(a *store.Account) AccountResponse {
	return AccountResponse{ID: a.ID, Email: a.Email, Name: a.Name}
}

func toAccountResponses(accounts []*store.Account) []AccountResponse {
	resp := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}
	return resp
}

func toFriendRequestResponse(fr *store.FriendRequest) FriendRequestResponse {
	return FriendRequestResponse{
		ID:          fr.ID,
		FromAccount: fr.FromAccount,
		ToAccount:   fr.ToAccount,
		Status:      string(fr.Status),
		CreatedAt:   fr.CreatedAt,
		RespondedAt: fr.RespondedAt,
	}
}
