package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sitekeep/internal/models"
)

const alertBuffer = 64

// Client is one dashboard connection subscribed to a fingerprint's alerts.
type Client struct {
	Hub         *Hub
	Conn        *websocket.Conn
	Send        chan []byte
	Fingerprint string
}

// ExpiryAlert is pushed to a fingerprint's dashboards after a donation is applied.
type ExpiryAlert struct {
	Type         string    `json:"type"`
	Fingerprint  string    `json:"-"`
	NewExpiry    time.Time `json:"newExpiry"`
	ExtendedDays int       `json:"extendedDays"`
	Amount       float64   `json:"amount"`
	Revived      int64     `json:"revived"`
}

// Hub fans alerts out to connected clients. All client bookkeeping happens
// on the goroutine running Run.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	alerts     chan ExpiryAlert
	done       chan struct{}
	logger     *zap.SugaredLogger
}

// NewHub creates a Hub. Call Run to start it.
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		alerts:     make(chan ExpiryAlert, alertBuffer),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Register subscribes client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client and closes its Send channel. It is a no-op once
// the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// NotifyDonation queues an alert for the donor's dashboards. It never blocks;
// alerts are dropped when the queue is full.
func (h *Hub) NotifyDonation(donation models.Donation, outcome models.DonationOutcome) {
	alert := ExpiryAlert{
		Type:         "expiry_extended",
		Fingerprint:  outcome.Fingerprint,
		NewExpiry:    outcome.NewExpiry,
		ExtendedDays: outcome.ExtendedDays,
		Amount:       donation.Amount,
		Revived:      outcome.Revived,
	}

	select {
	case h.alerts <- alert:
	default:
		h.logger.Warnw("alert queue full, dropping expiry alert", "fingerprint", alert.Fingerprint)
	}
}

// Run processes registrations and alerts until ctx is cancelled, then closes
// every client's Send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for fp, set := range h.clients {
				for client := range set {
					close(client.Send)
				}
				delete(h.clients, fp)
			}
			return

		case client := <-h.register:
			set, ok := h.clients[client.Fingerprint]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.Fingerprint] = set
			}
			set[client] = struct{}{}
			h.logger.Debugw("websocket client registered", "fingerprint", client.Fingerprint)

		case client := <-h.unregister:
			h.remove(client)

		case alert := <-h.alerts:
			set, ok := h.clients[alert.Fingerprint]
			if !ok {
				continue
			}

			jsonData, err := json.Marshal(alert)
			if err != nil {
				h.logger.Errorw("failed to marshal expiry alert", "error", err)
				continue
			}

			for client := range set {
				select {
				case client.Send <- jsonData:
				default:
					// Slow consumer; drop it rather than stall the hub.
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	set, ok := h.clients[client.Fingerprint]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.Send)
	if len(set) == 0 {
		delete(h.clients, client.Fingerprint)
	}
	h.logger.Debugw("websocket client unregistered", "fingerprint", client.Fingerprint)
}
