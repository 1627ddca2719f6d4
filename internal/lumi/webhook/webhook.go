// Package webhook implements Lumi's inbound messaging endpoint.
//
// Deliveries arrive at:
//
//	POST /callback
//
// Each request carries an X-Line-Signature header: the base64-encoded
// HMAC-SHA256 of the raw request body keyed with the channel secret.
// Requests failing verification are rejected with 400 before any event
// parsing happens.
//
// A delivery contains a batch of events. Text message events are handed
// to the Responder; everything else (stickers, follows, joins) is
// acknowledged and skipped. The endpoint always returns 200 for a
// verified delivery, even when individual events fail, because the
// platform retries non-2xx deliveries and a retry would replay the
// already-handled events in the same batch.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// maxBodyBytes caps inbound webhook request bodies to prevent memory
// exhaustion from oversized payloads.
const maxBodyBytes = 1 * 1024 * 1024 // 1 MiB

// Responder produces Lumi's reply to one inbound text message. It must
// always return displayable text; error handling and fallback replies
// are its responsibility, not the webhook's.
type Responder interface {
	Respond(ctx context.Context, userID, text string) string
}

// Replier delivers a reply for the given reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// --- wire types for the inbound delivery ---

type delivery struct {
	Destination string  `json:"destination"`
	Events      []event `json:"events"`
}

type event struct {
	Type       string  `json:"type"`
	ReplyToken string  `json:"replyToken"`
	Source     source  `json:"source"`
	Message    message `json:"message"`
}

type source struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type message struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Handler is the HTTP handler for POST /callback.
type Handler struct {
	channelSecret []byte
	responder     Responder
	replier       Replier
	logger        *slog.Logger
}

// NewHandler creates a webhook Handler.
func NewHandler(channelSecret string, responder Responder, replier Replier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		channelSecret: []byte(channelSecret),
		responder:     responder,
		replier:       replier,
		logger:        logger,
	}
}

// RouteRegistrar is satisfied by *http.ServeMux and by the health
// server's Handle method, so the webhook can mount itself without
// importing the app package.
type RouteRegistrar interface {
	Handle(pattern string, handler http.Handler)
}

// RegisterRoutes mounts the /callback handler on the given registrar.
func (h *Handler) RegisterRoutes(r RouteRegistrar) {
	r.Handle("/callback", h)
}

// ServeHTTP verifies the delivery signature and dispatches its events.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("webhook: failed to read request body", "err", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if err := h.verifySignature(r.Header.Get("X-Line-Signature"), body); err != nil {
		h.logger.Info("webhook: signature verification failed", "err", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var d delivery
	if err := json.Unmarshal(body, &d); err != nil {
		h.logger.Warn("webhook: malformed delivery body", "err", err)
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	deliveryID := uuid.NewString()
	for i := range d.Events {
		h.handleEvent(r.Context(), deliveryID, &d.Events[i])
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

// verifySignature checks the base64 HMAC-SHA256 of body against header.
func (h *Handler) verifySignature(header string, body []byte) error {
	if header == "" {
		return errMissingSignature
	}
	provided, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return errMalformedSignature
	}

	mac := hmac.New(sha256.New, h.channelSecret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), provided) {
		return errSignatureMismatch
	}
	return nil
}

// handleEvent processes a single event from a verified delivery.
// Failures are logged, never propagated: the delivery as a whole has
// already been accepted.
func (h *Handler) handleEvent(ctx context.Context, deliveryID string, ev *event) {
	if ev.Type != "message" || ev.Message.Type != "text" {
		h.logger.Debug("webhook: skipping event",
			"delivery_id", deliveryID, "event_type", ev.Type, "message_type", ev.Message.Type)
		return
	}
	if ev.Source.UserID == "" || ev.ReplyToken == "" {
		h.logger.Warn("webhook: text event missing user or reply token",
			"delivery_id", deliveryID)
		return
	}

	reply := h.responder.Respond(ctx, ev.Source.UserID, ev.Message.Text)
	if err := h.replier.Reply(ctx, ev.ReplyToken, reply); err != nil {
		h.logger.Error("webhook: reply delivery failed",
			"delivery_id", deliveryID, "err", err)
	}
}
