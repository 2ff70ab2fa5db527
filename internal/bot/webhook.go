package bot

import (
	"encoding/json"
	"net/http"
	"sync"

	"gopkg.in/telebot.v3"

	"github.com/Ejimurphy/task-earnings-bot/internal/auth"
	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
)

// SecretTokenHeader carries the secret Telegram echoes back on every webhook call
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Webhook is a telebot.Poller that receives updates over the shared HTTP
// listener. Unlike telebot's own Webhook it never owns a server or closes the
// stop channel, so the listener can be shut down independently of the bot.
type Webhook struct {
	endpoint *telebot.Webhook
	register func(b *telebot.Bot, w *telebot.Webhook) error

	mu   sync.RWMutex
	dest chan<- telebot.Update
	done <-chan struct{}
}

// NewWebhook creates a poller that registers publicURL with Telegram and only
// accepts updates carrying secret.
func NewWebhook(publicURL, secret string) *Webhook {
	return &Webhook{
		endpoint: &telebot.Webhook{
			SecretToken: secret,
			Endpoint:    &telebot.WebhookEndpoint{PublicURL: publicURL},
		},
		register: func(b *telebot.Bot, w *telebot.Webhook) error {
			return b.SetWebhook(w)
		},
	}
}

// Poll attaches the update channel, registers the webhook and blocks until stop
// is closed
func (w *Webhook) Poll(b *telebot.Bot, dest chan telebot.Update, stop chan struct{}) {
	w.mu.Lock()
	w.dest = dest
	w.done = stop
	w.mu.Unlock()

	if err := w.register(b, w.endpoint); err != nil {
		logger.Error(0, "webhook_register_error", err)
	} else {
		logger.Info("webhook_registered", w.endpoint.Endpoint.PublicURL)
	}

	<-stop

	w.mu.Lock()
	w.dest = nil
	w.done = nil
	w.mu.Unlock()
}

// Ready reports whether updates are currently being accepted
func (w *Webhook) Ready() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dest != nil
}

// ServeHTTP hands a verified update to the bot. Requests without the secret are
// dropped with 401; requests that arrive while the bot is not polling get 503
// so Telegram retries them.
func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if !auth.MatchSecret(r.Header.Get(SecretTokenHeader), w.endpoint.SecretToken) {
		logger.Info("webhook_rejected", "missing or invalid secret token")
		http.Error(rw, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.mu.RLock()
	dest, done := w.dest, w.done
	w.mu.RUnlock()
	if dest == nil {
		http.Error(rw, "bot is not ready", http.StatusServiceUnavailable)
		return
	}

	var update telebot.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		logger.Error(0, "webhook_decode_error", err)
		http.Error(rw, "invalid update", http.StatusBadRequest)
		return
	}

	select {
	case dest <- update:
		rw.WriteHeader(http.StatusOK)
	case <-done:
		http.Error(rw, "bot is stopping", http.StatusServiceUnavailable)
	case <-r.Context().Done():
	}
}
