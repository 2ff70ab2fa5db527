package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/telebot.v3"

	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/service"
)

// HandleStart registers the user, records a referral payload and shows the menu
func (h *Handler) HandleStart(c telebot.Context) error {
	sender := c.Sender()
	ctx := context.Background()
	logger.Debug(sender.ID, "command_start", fmt.Sprintf("username=%s first_name=%s payload=%s", sender.Username, sender.FirstName, c.Data()))

	user, created, err := h.accounts.Register(ctx, sender.ID, sender.Username, sender.FirstName, c.Data())
	if err != nil {
		return h.replyError(c, "start_error", err)
	}
	h.states.Clear(sender.ID)

	rules, err := h.rules.Current(ctx)
	if err != nil {
		return h.replyError(c, "start_error", err)
	}

	name := user.FirstName
	if name == "" {
		name = "there"
	}
	welcome := fmt.Sprintf("👋 Welcome to Task Earnings Bot, %s!\n\n"+
		"🎯 Watch %d ads to earn %d coins per task.\n"+
		"👥 Earn %d coins for every friend who completes a task.\n"+
		"🏦 Withdraw to your bank from %d coins.\n\n"+
		"Use the menu below to get started.",
		name, rules.RequiredViews, rules.TaskReward, rules.ReferralReward, rules.MinWithdrawal)
	if created && user.ReferredBy != 0 {
		welcome += "\n\n🤝 You joined with a friend's referral link."
	}

	logger.Debug(sender.ID, "welcome_sent", fmt.Sprintf("created=%t coins=%d", created, user.Coins))
	return c.Send(welcome, mainMenu)
}

// HandleCommands lists the available commands
func (h *Handler) HandleCommands(c telebot.Context) error {
	logger.Debug(c.Sender().ID, "command_help", "")
	text := "📚 Available Commands\n\n" +
		"/start - Start the bot and show the menu\n" +
		"/task - Start or resume an ad task\n" +
		"/balance - Show your wallet balance\n" +
		"/withdraw [coins] - Request a withdrawal\n" +
		"/referral - Show your referral link\n" +
		"/settings - Manage your bank details\n" +
		"/history - Recent activity\n" +
		"/support - Contact support\n" +
		"/cancel - Cancel the current step\n" +
		"/help - Show this help message"
	if h.admin.IsAdmin(c.Sender().ID) {
		text += "\n\n🛠 Admin\n\n" +
			"/pending - Pending withdrawals\n" +
			"/approve <id> - Approve a withdrawal\n" +
			"/decline <id> <reason> - Decline and refund a withdrawal\n" +
			"/stats - Bot statistics\n" +
			"/tasks on|off - Enable or disable tasks\n" +
			"/set <key> <value> - Change a setting\n" +
			"/ban <user_id>, /unban <user_id>\n" +
			"/broadcast <text> - Message every user\n" +
			"/reply <user_id> <text> - Answer a help request"
	}
	return c.Send(text, mainMenu)
}

// HandleCancel clears any pending conversation step
func (h *Handler) HandleCancel(c telebot.Context) error {
	prev := h.states.Clear(c.Sender().ID)
	logger.Debug(c.Sender().ID, "command_cancel", "state="+prev.String())
	if prev == StateNone {
		return c.Send("Nothing to cancel.", mainMenu)
	}
	return c.Send("❎ Cancelled.", mainMenu)
}

// HandleTask starts or resumes the user's ad session
func (h *Handler) HandleTask(c telebot.Context) error {
	userID := c.Sender().ID
	h.states.Clear(userID)

	res, err := h.tasks.StartSession(context.Background(), userID)
	if err != nil {
		return h.replyError(c, "task_error", err)
	}

	text := fmt.Sprintf("📺 Watch %d ads to complete this task.\n\nProgress: %d/%d\n\n"+
		"Tap Watch ads to open the viewer. When you are done, tap Claim reward.",
		res.Progress.Required, res.Progress.Count, res.Progress.Required)
	if res.Resumed {
		text = "🔄 You already have a task in progress.\n\n" + text
	}
	if res.Progress.Reset {
		text += "\n\n⏱ Your progress was reset after a long pause."
	}

	logger.Debug(userID, "task_displayed", fmt.Sprintf("session_id=%s resumed=%t count=%d", res.Session.ID, res.Resumed, res.Progress.Count))
	return c.Send(text, taskMarkup(res.Link, res.Session.ID))
}

// HandleClaim settles a session from the Claim reward button
func (h *Handler) HandleClaim(c telebot.Context) error {
	userID := c.Sender().ID
	sessionID := c.Data()
	ctx := context.Background()

	owner, err := h.tasks.SessionOwner(ctx, sessionID)
	if err == nil && owner != userID {
		err = service.ErrSessionNotFound
	}
	if err != nil {
		return h.answerError(c, "claim_error", err)
	}

	settlement, err := h.tasks.Settle(ctx, sessionID)
	if err != nil {
		return h.answerError(c, "claim_error", err)
	}

	logger.Debug(userID, "claim_success", fmt.Sprintf("session_id=%s reward=%d", sessionID, settlement.Reward))
	return c.Respond(&telebot.CallbackResponse{Text: fmt.Sprintf("🎉 %d coins credited!", settlement.Reward)})
}

// HandleWallet shows the balance and its currency value
func (h *Handler) HandleWallet(c telebot.Context) error {
	userID := c.Sender().ID
	wallet, err := h.accounts.Wallet(context.Background(), userID)
	if err != nil {
		return h.replyError(c, "wallet_error", err)
	}

	bank := "not set"
	if b := wallet.User.Bank; !b.IsZero() {
		bank = fmt.Sprintf("%s, %s", b.BankName, b.AccountNumber)
	}
	text := fmt.Sprintf("💰 Wallet Balance\n\n🪙 Coins: %d\n💵 Value: %s\n🏦 Bank: %s\n👥 Referrals: %d\n\nMinimum withdrawal: %d coins",
		wallet.Coins, wallet.Rules.FormatAmount(wallet.Amount), bank, wallet.Referrals, wallet.Rules.MinWithdrawal)

	logger.Debug(userID, "wallet_displayed", fmt.Sprintf("coins=%d", wallet.Coins))
	return c.Send(text, mainMenu)
}

// HandleWithdraw requests a withdrawal directly when an amount is given and
// otherwise asks for one
func (h *Handler) HandleWithdraw(c telebot.Context) error {
	userID := c.Sender().ID
	if args := c.Args(); len(args) > 0 {
		return h.requestWithdrawal(c, strings.Join(args, ""))
	}

	wallet, err := h.accounts.Wallet(context.Background(), userID)
	if err != nil {
		return h.replyError(c, "withdraw_error", err)
	}
	if wallet.User.Bank.IsZero() {
		h.states.Clear(userID)
		return c.Send("🏦 Add your bank details before requesting a withdrawal.", bankMarkup(false))
	}

	h.states.Set(userID, StateAwaitingWithdrawAmount)
	return c.Send(fmt.Sprintf("💸 How many coins do you want to withdraw?\n\nBalance: %d coins (%s)\nMinimum: %d coins\n\nSend /cancel to stop.",
		wallet.Coins, wallet.Rules.FormatAmount(wallet.Amount), wallet.Rules.MinWithdrawal))
}

func (h *Handler) requestWithdrawal(c telebot.Context, raw string) error {
	userID := c.Sender().ID
	coins, ok := parseCoins(raw)
	if !ok {
		return c.Send("⚠️ Please send a whole number of coins, for example 60000.")
	}
	h.states.Clear(userID)

	w, err := h.withdrawals.Request(context.Background(), userID, coins)
	if err != nil {
		return h.replyError(c, "withdraw_error", err)
	}

	logger.Debug(userID, "withdraw_requested", fmt.Sprintf("withdrawal_id=%d coins=%d", w.ID, w.Coins))
	return c.Send(fmt.Sprintf("✅ Withdrawal #%d submitted.\n\nCoins: %d\nAmount: %s\nBank: %s (%s)\n\nYou will be notified once an admin reviews it.",
		w.ID, w.Coins, h.rules.Defaults().FormatAmount(w.Amount), w.Bank.BankName, w.Bank.AccountNumber), mainMenu)
}

// HandleReferral sends the referral link with a QR code
func (h *Handler) HandleReferral(c telebot.Context) error {
	userID := c.Sender().ID
	ctx := context.Background()

	ref, err := h.accounts.ReferralInfo(ctx, userID, h.botUsername)
	if err != nil {
		return h.replyError(c, "referral_error", err)
	}
	rules, err := h.rules.Current(ctx)
	if err != nil {
		return h.replyError(c, "referral_error", err)
	}

	caption := fmt.Sprintf("👥 Refer & Earn\n\nInvite friends and earn %d coins when each friend completes their first task.\n\nYour link:\n%s\n\nFriends joined: %d\nEarned: %d coins",
		rules.ReferralReward, ref.Link, ref.Count, ref.Earned)

	logger.Debug(userID, "referral_displayed", fmt.Sprintf("count=%d earned=%d", ref.Count, ref.Earned))
	return c.Send(&telebot.Photo{File: telebot.FromReader(bytes.NewReader(ref.QRCode)), Caption: caption})
}

// HandleSettings shows the bank details on file with a button to add or change them
func (h *Handler) HandleSettings(c telebot.Context) error {
	userID := c.Sender().ID
	wallet, err := h.accounts.Wallet(context.Background(), userID)
	if err != nil {
		return h.replyError(c, "settings_error", err)
	}

	bank := wallet.User.Bank
	if bank.IsZero() {
		return c.Send("⚙️ Settings\n\nNo bank account on file yet.", bankMarkup(false))
	}
	return c.Send(fmt.Sprintf("⚙️ Settings\n\n🏦 Bank: %s\n🔢 Account: %s\n👤 Name: %s",
		bank.BankName, bank.AccountNumber, bank.AccountName), bankMarkup(true))
}

// HandleBankSet starts the first bank capture
func (h *Handler) HandleBankSet(c telebot.Context) error {
	userID := c.Sender().ID
	wallet, err := h.accounts.Wallet(context.Background(), userID)
	if err == nil && !wallet.User.Bank.IsZero() {
		err = service.ErrBankOnFile
	}
	if err != nil {
		return h.answerError(c, "bank_set_error", err)
	}

	h.states.Set(userID, StateAwaitingBankDetails)
	if err := c.Respond(); err != nil {
		logger.Debug(userID, "callback_respond_error", err.Error())
	}
	return c.Send("🏦 Send your bank details in one message:\n\nBank Name, Account Number, Account Holder Name\n\nExample: Moniepoint, 0123456789, John Doe\n\nSend /cancel to stop.")
}

// HandleBankChange starts the bank change flow
func (h *Handler) HandleBankChange(c telebot.Context) error {
	userID := c.Sender().ID
	wallet, err := h.accounts.Wallet(context.Background(), userID)
	if err == nil && wallet.User.Bank.IsZero() {
		err = service.ErrNoBankOnFile
	}
	if err != nil {
		return h.answerError(c, "bank_change_error", err)
	}

	h.states.Set(userID, StateAwaitingBankChange)
	if err := c.Respond(); err != nil {
		logger.Debug(userID, "callback_respond_error", err.Error())
	}
	return c.Send("✏️ Send two lines:\n\nOld Bank, Old Account Number\nNew Bank, New Account Number, New Account Name\n\nSend /cancel to stop.")
}

// HandleGetHelp asks the user for a support message
func (h *Handler) HandleGetHelp(c telebot.Context) error {
	userID := c.Sender().ID
	h.states.Set(userID, StateAwaitingHelpMessage)
	text := "🆘 Describe your problem in one message and our team will reply here.\n\nSend /cancel to stop."
	if h.supportContact != "" {
		text += fmt.Sprintf("\n\nYou can also reach us at %s.", h.supportContact)
	}
	return c.Send(text)
}

// HandleHistory lists recent ledger entries and withdrawals
func (h *Handler) HandleHistory(c telebot.Context) error {
	userID := c.Sender().ID
	ctx := context.Background()

	txs, err := h.accounts.History(ctx, userID, historyLimit)
	if err != nil {
		return h.replyError(c, "history_error", err)
	}
	withdrawals, err := h.withdrawals.History(ctx, userID, historyLimit)
	if err != nil {
		return h.replyError(c, "history_error", err)
	}
	if len(txs) == 0 && len(withdrawals) == 0 {
		return c.Send("📜 No activity yet. Tap 🎯 Perform Task to start earning!", mainMenu)
	}

	var b strings.Builder
	b.WriteString("📜 Recent Activity\n")
	for _, t := range txs {
		fmt.Fprintf(&b, "\n%s  %+d coins  %s", t.CreatedAt.Format("Jan 2 15:04"), t.Amount, describeSource(t.SourceType))
	}
	if len(withdrawals) > 0 {
		b.WriteString("\n\n🏦 Withdrawals\n")
		for _, w := range withdrawals {
			fmt.Fprintf(&b, "\n%s #%d  %d coins  %s", statusEmoji(w.Status), w.ID, w.Coins, w.Status)
		}
	}

	logger.Debug(userID, "history_displayed", fmt.Sprintf("transactions=%d withdrawals=%d", len(txs), len(withdrawals)))
	return c.Send(b.String(), mainMenu)
}

// HandleText routes free text according to the user's conversation state
func (h *Handler) HandleText(c telebot.Context) error {
	userID := c.Sender().ID
	text := strings.TrimSpace(c.Text())
	state := h.states.Get(userID)
	logger.Debug(userID, "text_received", "state="+state.String())

	switch state {
	case StateAwaitingBankDetails:
		return h.saveBank(c, text)
	case StateAwaitingBankChange:
		return h.changeBank(c, text)
	case StateAwaitingWithdrawAmount:
		return h.requestWithdrawal(c, text)
	case StateAwaitingHelpMessage:
		return h.submitHelp(c, text)
	default:
		return c.Send("⚠️ Invalid text. Please use one of the available command buttons.", mainMenu)
	}
}

func (h *Handler) saveBank(c telebot.Context, text string) error {
	userID := c.Sender().ID
	bank, err := h.accounts.SaveBank(context.Background(), userID, text)
	if errors.Is(err, service.ErrInvalidInput) {
		return c.Send(errorText(userID, "bank_set_invalid", err) + "\n\nPlease try again or send /cancel.")
	}
	h.states.Clear(userID)
	if err != nil {
		return h.replyError(c, "bank_set_error", err)
	}
	return c.Send(fmt.Sprintf("✅ Bank details saved.\n\n🏦 Bank: %s\n🔢 Account: %s\n👤 Name: %s",
		bank.BankName, bank.AccountNumber, bank.AccountName), mainMenu)
}

func (h *Handler) changeBank(c telebot.Context, text string) error {
	userID := c.Sender().ID
	bank, err := h.accounts.ChangeBank(context.Background(), userID, text)
	if errors.Is(err, service.ErrInvalidInput) {
		return c.Send(errorText(userID, "bank_change_invalid", err) + "\n\nPlease try again or send /cancel.")
	}
	h.states.Clear(userID)
	if err != nil {
		return h.replyError(c, "bank_change_error", err)
	}
	return c.Send(fmt.Sprintf("✅ Bank details updated.\n\n🏦 Bank: %s\n🔢 Account: %s\n👤 Name: %s",
		bank.BankName, bank.AccountNumber, bank.AccountName), mainMenu)
}

func (h *Handler) submitHelp(c telebot.Context, text string) error {
	userID := c.Sender().ID
	req, err := h.support.Submit(context.Background(), userID, text)
	if errors.Is(err, service.ErrInvalidInput) {
		return c.Send(errorText(userID, "help_invalid", err))
	}
	h.states.Clear(userID)
	if err != nil {
		return h.replyError(c, "help_error", err)
	}
	logger.Debug(userID, "help_submitted", fmt.Sprintf("help_id=%d", req.ID))
	return c.Send("✅ Your message has been sent to support. We will reply here soon.", mainMenu)
}
