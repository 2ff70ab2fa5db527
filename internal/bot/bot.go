package bot

import (
	"fmt"
	"net/http"
	"time"

	"gopkg.in/telebot.v3"

	"github.com/Ejimurphy/task-earnings-bot/internal/config"
	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/service"
)

const (
	uniqueClaim      = "claim"
	uniqueBankSet    = "bank_set"
	uniqueBankChange = "bank_change"

	historyLimit = 10
	pendingLimit = 20
)

var (
	mainMenu    = &telebot.ReplyMarkup{ResizeKeyboard: true}
	btnTask     = mainMenu.Text("🎯 Perform Task")
	btnWallet   = mainMenu.Text("💰 Wallet Balance")
	btnWithdraw = mainMenu.Text("🏦 Withdraw")
	btnRefer    = mainMenu.Text("👥 Refer & Earn")
	btnSettings = mainMenu.Text("⚙️ Settings")
	btnHelp     = mainMenu.Text("🆘 Get Help")

	btnClaim      = telebot.InlineButton{Unique: uniqueClaim}
	btnBankSet    = telebot.Btn{Unique: uniqueBankSet}
	btnBankChange = telebot.Btn{Unique: uniqueBankChange}
	btnApprove    = telebot.Btn{Unique: service.UniqueApproveWithdrawal}
	btnDecline    = telebot.Btn{Unique: service.UniqueDeclineWithdrawal}
)

func init() {
	mainMenu.Reply(
		mainMenu.Row(btnTask, btnWallet),
		mainMenu.Row(btnWithdraw, btnRefer),
		mainMenu.Row(btnSettings, btnHelp),
	)
}

// Services are the use cases the bot drives
type Services struct {
	Tasks       *service.TaskService
	Accounts    *service.AccountService
	Withdrawals *service.WithdrawalService
	Admin       *service.AdminService
	Support     *service.SupportService
	Rules       *service.RulesService
}

// Handler turns Telegram updates into service calls
type Handler struct {
	tasks       *service.TaskService
	accounts    *service.AccountService
	withdrawals *service.WithdrawalService
	admin       *service.AdminService
	support     *service.SupportService
	rules       *service.RulesService

	states         *States
	botUsername    string
	supportContact string
}

// NewHandler creates a bot handler. botUsername is used for referral links.
func NewHandler(svc Services, botUsername, supportContact string) *Handler {
	return &Handler{
		tasks:          svc.Tasks,
		accounts:       svc.Accounts,
		withdrawals:    svc.Withdrawals,
		admin:          svc.Admin,
		support:        svc.Support,
		rules:          svc.Rules,
		states:         NewStates(),
		botUsername:    botUsername,
		supportContact: supportContact,
	}
}

// NewBot creates the telebot instance for the configured mode. In webhook mode
// the returned handler receives updates and must be mounted on the HTTP listener
// at config.WebhookPath.
func NewBot(cfg config.Config) (*telebot.Bot, http.Handler, error) {
	settings := telebot.Settings{
		Token:   cfg.BotToken,
		OnError: onError,
	}

	var webhook *Webhook
	if cfg.BotMode == config.BotModeWebhook {
		webhook = NewWebhook(cfg.BaseURL+config.WebhookPath, cfg.WebhookSecret)
		settings.Poller = webhook
	} else {
		settings.Poller = &telebot.LongPoller{Timeout: 10 * time.Second}
	}

	b, err := telebot.NewBot(settings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bot: %w", err)
	}
	if webhook == nil {
		return b, nil, nil
	}
	return b, webhook, nil
}

func onError(err error, c telebot.Context) {
	var userID int64
	if c != nil && c.Sender() != nil {
		userID = c.Sender().ID
	}
	logger.Error(userID, "bot_error", err)
}

// Register wires every command, menu button and callback onto b
func (h *Handler) Register(b *telebot.Bot) {
	b.Handle("/start", h.HandleStart)
	b.Handle("/help", h.HandleCommands)
	b.Handle("/cancel", h.HandleCancel)
	b.Handle("/history", h.HandleHistory)

	b.Handle("/task", h.HandleTask)
	b.Handle(&btnTask, h.HandleTask)
	b.Handle("/balance", h.HandleWallet)
	b.Handle(&btnWallet, h.HandleWallet)
	b.Handle("/withdraw", h.HandleWithdraw)
	b.Handle(&btnWithdraw, h.HandleWithdraw)
	b.Handle("/referral", h.HandleReferral)
	b.Handle(&btnRefer, h.HandleReferral)
	b.Handle("/settings", h.HandleSettings)
	b.Handle(&btnSettings, h.HandleSettings)
	b.Handle("/support", h.HandleGetHelp)
	b.Handle(&btnHelp, h.HandleGetHelp)

	b.Handle(&btnClaim, h.HandleClaim)
	b.Handle(&btnBankSet, h.HandleBankSet)
	b.Handle(&btnBankChange, h.HandleBankChange)

	b.Handle("/approve", h.HandleApprove, h.adminOnly)
	b.Handle("/decline", h.HandleDecline, h.adminOnly)
	b.Handle(&btnApprove, h.HandleApproveButton, h.adminOnly)
	b.Handle(&btnDecline, h.HandleDeclineButton, h.adminOnly)
	b.Handle("/pending", h.HandlePending, h.adminOnly)
	b.Handle("/stats", h.HandleStats, h.adminOnly)
	b.Handle("/tasks", h.HandleTasks, h.adminOnly)
	b.Handle("/set", h.HandleSet, h.adminOnly)
	b.Handle("/ban", h.HandleBan, h.adminOnly)
	b.Handle("/unban", h.HandleUnban, h.adminOnly)
	b.Handle("/broadcast", h.HandleBroadcast, h.adminOnly)
	b.Handle("/reply", h.HandleReply, h.adminOnly)

	b.Handle(telebot.OnText, h.HandleText)
}
