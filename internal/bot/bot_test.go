package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"gopkg.in/telebot.v3"

	"github.com/Ejimurphy/task-earnings-bot/internal/config"
	"github.com/Ejimurphy/task-earnings-bot/internal/service"
	"github.com/Ejimurphy/task-earnings-bot/internal/storage"
)

const testAdminID = 900

// fakeSender records notifications instead of calling Telegram
type fakeSender struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (f *fakeSender) Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := strconv.ParseInt(to.Recipient(), 10, 64)
	if f.sent == nil {
		f.sent = make(map[int64][]string)
	}
	f.sent[id] = append(f.sent[id], fmt.Sprint(what))
	return &telebot.Message{}, nil
}

func (f *fakeSender) textsTo(id int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[id]...)
}

// fakeContext implements the parts of telebot.Context the handlers use
type fakeContext struct {
	telebot.Context

	sender    *telebot.User
	text      string
	data      string
	args      []string
	callback  *telebot.Callback
	sent      []interface{}
	opts      [][]interface{}
	responses []*telebot.CallbackResponse
}

func (c *fakeContext) Sender() *telebot.User       { return c.sender }
func (c *fakeContext) Text() string                { return c.text }
func (c *fakeContext) Data() string                { return c.data }
func (c *fakeContext) Args() []string              { return c.args }
func (c *fakeContext) Callback() *telebot.Callback { return c.callback }

func (c *fakeContext) Send(what interface{}, opts ...interface{}) error {
	c.sent = append(c.sent, what)
	c.opts = append(c.opts, opts)
	return nil
}

func (c *fakeContext) Respond(resp ...*telebot.CallbackResponse) error {
	if len(resp) == 0 {
		resp = []*telebot.CallbackResponse{{}}
	}
	c.responses = append(c.responses, resp...)
	return nil
}

func (c *fakeContext) lastText() string {
	if len(c.sent) == 0 {
		return ""
	}
	return fmt.Sprint(c.sent[len(c.sent)-1])
}

func (c *fakeContext) lastResponse() *telebot.CallbackResponse {
	if len(c.responses) == 0 {
		return nil
	}
	return c.responses[len(c.responses)-1]
}

// message builds a context for a text message. Commands get their payload and
// arguments split off the way telebot does it.
func message(userID int64, text string) *fakeContext {
	c := &fakeContext{
		sender: &telebot.User{ID: userID, Username: fmt.Sprintf("user%d", userID), FirstName: "User"},
		text:   text,
	}
	if strings.HasPrefix(text, "/") {
		_, payload, _ := strings.Cut(text, " ")
		c.data = strings.TrimSpace(payload)
		c.args = strings.Fields(payload)
	}
	return c
}

func button(userID int64, data string) *fakeContext {
	return &fakeContext{
		sender:   &telebot.User{ID: userID},
		data:     data,
		callback: &telebot.Callback{Data: data},
	}
}

type testBot struct {
	store    *storage.Store
	sender   *fakeSender
	tasks    *service.TaskService
	withdraw *service.WithdrawalService
	handler  *Handler
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Defaults()
	cfg.BaseURL = "https://bot.example.com"
	cfg.AdminIDs = []int64{testAdminID}
	cfg.CoinRate = decimal.RequireFromString(cfg.CoinRateText)

	sender := &fakeSender{}
	notifier := service.NewNotificationService(sender, cfg.AdminIDs, cfg.Currency)
	admins := service.NewAdmins(cfg.AdminIDs)
	rules := service.NewRulesService(store, cfg)

	tb := &testBot{
		store:    store,
		sender:   sender,
		tasks:    service.NewTaskService(store, rules, notifier, cfg.BaseURL, cfg.SessionIdleReset),
		withdraw: service.NewWithdrawalService(store, rules, notifier, admins),
	}
	tb.handler = NewHandler(Services{
		Tasks:       tb.tasks,
		Accounts:    service.NewAccountService(store, rules, notifier),
		Withdrawals: tb.withdraw,
		Admin:       service.NewAdminService(store, rules, notifier, admins),
		Support:     service.NewSupportService(store, notifier),
		Rules:       rules,
	}, "testbot", "@TaskSupport")
	return tb
}

func (tb *testBot) createUser(t *testing.T, id int64) {
	t.Helper()
	if err := tb.store.CreateUser(context.Background(), id, fmt.Sprintf("user%d", id), "User", 0); err != nil {
		t.Fatalf("CreateUser(%d) failed: %v", id, err)
	}
}

func (tb *testBot) user(t *testing.T, id int64) *storage.User {
	t.Helper()
	user, err := tb.store.GetUser(context.Background(), id)
	if err != nil || user == nil {
		t.Fatalf("GetUser(%d): user=%v err=%v", id, user, err)
	}
	return user
}

func (tb *testBot) fundWithBank(t *testing.T, id, coins int64) {
	t.Helper()
	ctx := context.Background()
	if err := tb.store.CreditCoins(ctx, id, coins); err != nil {
		t.Fatalf("CreditCoins failed: %v", err)
	}
	bank := storage.Bank{BankName: "Moniepoint", AccountNumber: "0123456789", AccountName: "John Doe"}
	if err := tb.store.SetBank(ctx, id, bank); err != nil {
		t.Fatalf("SetBank failed: %v", err)
	}
}

func TestStates(t *testing.T) {
	s := NewStates()
	if got := s.Get(1); got != StateNone {
		t.Errorf("Expected StateNone for unknown user, got %s", got)
	}

	s.Set(1, StateAwaitingBankDetails)
	if got := s.Get(1); got != StateAwaitingBankDetails {
		t.Errorf("Expected %s, got %s", StateAwaitingBankDetails, got)
	}
	if got := s.Get(2); got != StateNone {
		t.Errorf("Expected states to be per user, got %s", got)
	}

	if prev := s.Clear(1); prev != StateAwaitingBankDetails {
		t.Errorf("Expected Clear to return previous state, got %s", prev)
	}
	if got := s.Get(1); got != StateNone {
		t.Errorf("Expected StateNone after Clear, got %s", got)
	}

	s.Set(3, StateAwaitingHelpMessage)
	s.Set(3, StateNone)
	if len(s.m) != 0 {
		t.Errorf("Expected setting StateNone to drop the entry, got %v", s.m)
	}
}

func TestStartRegistersReferral(t *testing.T) {
	tb := newTestBot(t)

	c := message(1, "/start")
	if err := tb.handler.HandleStart(c); err != nil {
		t.Fatalf("HandleStart failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "Welcome") {
		t.Errorf("Expected welcome message, got %q", c.lastText())
	}
	if len(c.opts[0]) == 0 || c.opts[0][0] != mainMenu {
		t.Error("Expected the main menu keyboard on the welcome message")
	}

	c = message(2, "/start 1")
	if err := tb.handler.HandleStart(c); err != nil {
		t.Fatalf("HandleStart failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "referral link") {
		t.Errorf("Expected referral note, got %q", c.lastText())
	}
	if got := tb.user(t, 2).ReferredBy; got != 1 {
		t.Errorf("Expected referred_by=1, got %d", got)
	}
	if len(tb.sender.textsTo(1)) != 1 {
		t.Errorf("Expected the referrer to be notified once, got %v", tb.sender.textsTo(1))
	}
}

func TestTextWithoutStateIsRejected(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)

	c := message(1, "hello")
	if err := tb.handler.HandleText(c); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "Invalid text") {
		t.Errorf("Expected invalid text reply, got %q", c.lastText())
	}
}

func TestUnknownUserIsAskedToStart(t *testing.T) {
	tb := newTestBot(t)

	c := message(42, "/balance")
	if err := tb.handler.HandleWallet(c); err != nil {
		t.Fatalf("HandleWallet failed: %v", err)
	}
	if c.lastText() != msgNotStarted {
		t.Errorf("Expected %q, got %q", msgNotStarted, c.lastText())
	}
}

func TestTaskAndClaim(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)
	tb.createUser(t, 2)
	ctx := context.Background()

	c := message(1, "🎯 Perform Task")
	if err := tb.handler.HandleTask(c); err != nil {
		t.Fatalf("HandleTask failed: %v", err)
	}
	markup, ok := c.opts[0][0].(*telebot.ReplyMarkup)
	if !ok {
		t.Fatalf("Expected inline markup, got %T", c.opts[0][0])
	}
	viewer := markup.InlineKeyboard[0][0]
	if viewer.WebApp == nil || !strings.HasPrefix(viewer.WebApp.URL, "https://bot.example.com/ad/") {
		t.Fatalf("Expected WebApp viewer button, got %+v", viewer)
	}
	claim := markup.InlineKeyboard[1][0]
	if claim.Unique != uniqueClaim || claim.Data == "" {
		t.Fatalf("Expected claim button carrying the session id, got %+v", claim)
	}
	sessionID := claim.Data

	// Not enough views yet.
	for i := 0; i < 3; i++ {
		if _, err := tb.tasks.RecordView(ctx, sessionID, nil, fmt.Sprintf("evt-%d", i)); err != nil {
			t.Fatalf("RecordView failed: %v", err)
		}
	}
	press := button(1, sessionID)
	if err := tb.handler.HandleClaim(press); err != nil {
		t.Fatalf("HandleClaim failed: %v", err)
	}
	if resp := press.lastResponse(); resp == nil || !strings.Contains(resp.Text, "3 of 10") {
		t.Errorf("Expected incomplete alert, got %+v", resp)
	}

	for i := 3; i < 10; i++ {
		if _, err := tb.tasks.RecordView(ctx, sessionID, nil, fmt.Sprintf("evt-%d", i)); err != nil {
			t.Fatalf("RecordView failed: %v", err)
		}
	}

	// Someone else's session looks like it does not exist.
	press = button(2, sessionID)
	if err := tb.handler.HandleClaim(press); err != nil {
		t.Fatalf("HandleClaim failed: %v", err)
	}
	if resp := press.lastResponse(); resp == nil || !resp.ShowAlert {
		t.Errorf("Expected an alert for a foreign session, got %+v", resp)
	}

	press = button(1, sessionID)
	if err := tb.handler.HandleClaim(press); err != nil {
		t.Fatalf("HandleClaim failed: %v", err)
	}
	if resp := press.lastResponse(); resp == nil || !strings.Contains(resp.Text, "200 coins credited") {
		t.Errorf("Expected credited response, got %+v", resp)
	}
	if got := tb.user(t, 1).Coins; got != config.DefaultTaskReward {
		t.Errorf("Expected balance %d, got %d", config.DefaultTaskReward, got)
	}

	press = button(1, sessionID)
	if err := tb.handler.HandleClaim(press); err != nil {
		t.Fatalf("HandleClaim failed: %v", err)
	}
	if resp := press.lastResponse(); resp == nil || !strings.Contains(resp.Text, "already been rewarded") {
		t.Errorf("Expected already settled alert, got %+v", resp)
	}
	if got := tb.user(t, 1).Coins; got != config.DefaultTaskReward {
		t.Errorf("Expected balance to stay %d, got %d", config.DefaultTaskReward, got)
	}
}

func TestBankCaptureFlow(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)

	press := button(1, "")
	if err := tb.handler.HandleBankSet(press); err != nil {
		t.Fatalf("HandleBankSet failed: %v", err)
	}
	if got := tb.handler.states.Get(1); got != StateAwaitingBankDetails {
		t.Fatalf("Expected %s, got %s", StateAwaitingBankDetails, got)
	}

	c := message(1, "Moniepoint, 12")
	if err := tb.handler.HandleText(c); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "try again") {
		t.Errorf("Expected retry prompt, got %q", c.lastText())
	}
	if got := tb.handler.states.Get(1); got != StateAwaitingBankDetails {
		t.Errorf("Expected state to stay %s after invalid input, got %s", StateAwaitingBankDetails, got)
	}

	c = message(1, "Moniepoint, 0123456789, John Doe")
	if err := tb.handler.HandleText(c); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "Bank details saved") {
		t.Errorf("Expected saved confirmation, got %q", c.lastText())
	}
	if got := tb.handler.states.Get(1); got != StateNone {
		t.Errorf("Expected state to be cleared, got %s", got)
	}
	if bank := tb.user(t, 1).Bank; bank.AccountNumber != "0123456789" || bank.AccountName != "John Doe" {
		t.Errorf("Unexpected bank on file: %+v", bank)
	}

	press = button(1, "")
	if err := tb.handler.HandleBankSet(press); err != nil {
		t.Fatalf("HandleBankSet failed: %v", err)
	}
	if resp := press.lastResponse(); resp == nil || !strings.Contains(resp.Text, "Change Bank") {
		t.Errorf("Expected bank-on-file alert, got %+v", resp)
	}
}

func TestBankChangeMismatch(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)
	tb.fundWithBank(t, 1, 0)

	if err := tb.handler.HandleBankChange(button(1, "")); err != nil {
		t.Fatalf("HandleBankChange failed: %v", err)
	}
	if got := tb.handler.states.Get(1); got != StateAwaitingBankChange {
		t.Fatalf("Expected %s, got %s", StateAwaitingBankChange, got)
	}

	c := message(1, "Access Bank, 9999999999\nGTBank, 1111111111, Jane Doe")
	if err := tb.handler.HandleText(c); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "do not match") {
		t.Errorf("Expected mismatch reply, got %q", c.lastText())
	}
	if bank := tb.user(t, 1).Bank; bank.BankName != "Moniepoint" || bank.AccountNumber != "0123456789" {
		t.Errorf("Expected bank details unchanged, got %+v", bank)
	}

	tb.handler.HandleBankChange(button(1, ""))
	c = message(1, "moniepoint, 0123456789\nGTBank, 1111111111, Jane Doe")
	if err := tb.handler.HandleText(c); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "updated") {
		t.Errorf("Expected update confirmation, got %q", c.lastText())
	}
	if bank := tb.user(t, 1).Bank; bank.BankName != "GTBank" || bank.AccountName != "Jane Doe" {
		t.Errorf("Expected new bank details, got %+v", bank)
	}
}

func TestWithdrawFlow(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)
	tb.fundWithBank(t, 1, 60000)

	c := message(1, "🏦 Withdraw")
	if err := tb.handler.HandleWithdraw(c); err != nil {
		t.Fatalf("HandleWithdraw failed: %v", err)
	}
	if got := tb.handler.states.Get(1); got != StateAwaitingWithdrawAmount {
		t.Fatalf("Expected %s, got %s", StateAwaitingWithdrawAmount, got)
	}

	c = message(1, "lots")
	if err := tb.handler.HandleText(c); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if got := tb.handler.states.Get(1); got != StateAwaitingWithdrawAmount {
		t.Errorf("Expected to keep waiting for an amount, got %s", got)
	}

	c = message(1, "60,000")
	if err := tb.handler.HandleText(c); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "Withdrawal #1 submitted") || !strings.Contains(c.lastText(), "₦60.00") {
		t.Errorf("Expected submitted confirmation, got %q", c.lastText())
	}
	if got := tb.user(t, 1).Coins; got != 0 {
		t.Errorf("Expected balance 0 after withdrawal, got %d", got)
	}
	if len(tb.sender.textsTo(testAdminID)) != 1 {
		t.Errorf("Expected one admin alert, got %v", tb.sender.textsTo(testAdminID))
	}
}

func TestWithdrawBelowMinimumCommand(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)
	tb.fundWithBank(t, 1, 70000)

	c := message(1, "/withdraw 100")
	if err := tb.handler.HandleWithdraw(c); err != nil {
		t.Fatalf("HandleWithdraw failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "60000") {
		t.Errorf("Expected minimum in reply, got %q", c.lastText())
	}
	if got := tb.user(t, 1).Coins; got != 70000 {
		t.Errorf("Expected balance unchanged, got %d", got)
	}
}

func TestWithdrawWithoutBank(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)

	c := message(1, "🏦 Withdraw")
	if err := tb.handler.HandleWithdraw(c); err != nil {
		t.Fatalf("HandleWithdraw failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "bank details") {
		t.Errorf("Expected bank prompt, got %q", c.lastText())
	}
	if got := tb.handler.states.Get(1); got != StateNone {
		t.Errorf("Expected no pending state, got %s", got)
	}
}

func TestCancel(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)

	tb.handler.HandleGetHelp(message(1, "🆘 Get Help"))
	c := message(1, "/cancel")
	if err := tb.handler.HandleCancel(c); err != nil {
		t.Fatalf("HandleCancel failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "Cancelled") {
		t.Errorf("Expected cancel confirmation, got %q", c.lastText())
	}
	if got := tb.handler.states.Get(1); got != StateNone {
		t.Errorf("Expected StateNone, got %s", got)
	}

	c = message(1, "/cancel")
	tb.handler.HandleCancel(c)
	if !strings.Contains(c.lastText(), "Nothing to cancel") {
		t.Errorf("Expected nothing to cancel, got %q", c.lastText())
	}
}

func TestReferralSendsQRCode(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)

	c := message(1, "👥 Refer & Earn")
	if err := tb.handler.HandleReferral(c); err != nil {
		t.Fatalf("HandleReferral failed: %v", err)
	}
	photo, ok := c.sent[0].(*telebot.Photo)
	if !ok {
		t.Fatalf("Expected a photo, got %T", c.sent[0])
	}
	if !strings.Contains(photo.Caption, "https://t.me/testbot?start=1") {
		t.Errorf("Expected referral link in caption, got %q", photo.Caption)
	}
}

func TestHelpAndReply(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)

	c := message(1, "🆘 Get Help")
	if err := tb.handler.HandleGetHelp(c); err != nil {
		t.Fatalf("HandleGetHelp failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "@TaskSupport") {
		t.Errorf("Expected support contact in prompt, got %q", c.lastText())
	}

	c = message(1, "My withdrawal is late")
	if err := tb.handler.HandleText(c); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	admin := tb.sender.textsTo(testAdminID)
	if len(admin) != 1 || !strings.Contains(admin[0], "My withdrawal is late") {
		t.Fatalf("Expected help request forwarded to admin, got %v", admin)
	}

	c = message(testAdminID, "/reply 1 We are on it")
	if err := tb.handler.HandleReply(c); err != nil {
		t.Fatalf("HandleReply failed: %v", err)
	}
	user := tb.sender.textsTo(1)
	if len(user) != 1 || user[0] != "💬 Support: We are on it" {
		t.Errorf("Expected support reply delivered, got %v", user)
	}
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)
	h := tb.handler

	commands := map[string]telebot.HandlerFunc{
		"/approve 1":         h.HandleApprove,
		"/decline 1 nope":    h.HandleDecline,
		"/pending":           h.HandlePending,
		"/stats":             h.HandleStats,
		"/tasks off":         h.HandleTasks,
		"/set task_reward 1": h.HandleSet,
		"/ban 2":             h.HandleBan,
		"/unban 2":           h.HandleUnban,
		"/broadcast hi":      h.HandleBroadcast,
		"/reply 2 hi":        h.HandleReply,
	}
	for text, handler := range commands {
		t.Run(text, func(t *testing.T) {
			c := message(1, text)
			if err := h.adminOnly(handler)(c); err != nil {
				t.Fatalf("handler failed: %v", err)
			}
			if !strings.Contains(c.lastText(), "admins only") {
				t.Errorf("Expected admin-only reply, got %q", c.lastText())
			}
		})
	}

	// The services refuse even when the middleware is bypassed.
	c := message(1, "/stats")
	if err := h.HandleStats(c); err != nil {
		t.Fatalf("HandleStats failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "admins only") {
		t.Errorf("Expected admin-only reply from service, got %q", c.lastText())
	}

	press := button(1, "1")
	if err := h.adminOnly(h.HandleApproveButton)(press); err != nil {
		t.Fatalf("button handler failed: %v", err)
	}
	if resp := press.lastResponse(); resp == nil || !resp.ShowAlert {
		t.Errorf("Expected admin-only alert for button, got %+v", resp)
	}
}

func TestApproveAndDecline(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)
	tb.fundWithBank(t, 1, 120000)
	ctx := context.Background()

	first, err := tb.withdraw.Request(ctx, 1, 60000)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	second, err := tb.withdraw.Request(ctx, 1, 60000)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	c := message(testAdminID, "/pending")
	if err := tb.handler.HandlePending(c); err != nil {
		t.Fatalf("HandlePending failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "Pending withdrawals (2)") {
		t.Errorf("Expected two pending withdrawals, got %q", c.lastText())
	}

	c = message(testAdminID, fmt.Sprintf("/approve %d", first.ID))
	if err := tb.handler.HandleApprove(c); err != nil {
		t.Fatalf("HandleApprove failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "approved") {
		t.Errorf("Expected approval reply, got %q", c.lastText())
	}

	c = message(testAdminID, fmt.Sprintf("/approve %d", first.ID))
	tb.handler.HandleApprove(c)
	if !strings.Contains(c.lastText(), "already been processed") {
		t.Errorf("Expected already processed reply, got %q", c.lastText())
	}

	press := button(testAdminID, strconv.FormatInt(second.ID, 10))
	if err := tb.handler.HandleDeclineButton(press); err != nil {
		t.Fatalf("HandleDeclineButton failed: %v", err)
	}
	if resp := press.lastResponse(); resp == nil || !strings.Contains(resp.Text, "declined") {
		t.Errorf("Expected declined toast, got %+v", resp)
	}
	if got := tb.user(t, 1).Coins; got != 60000 {
		t.Errorf("Expected refund to 60000, got %d", got)
	}

	c = message(testAdminID, "/approve abc")
	tb.handler.HandleApprove(c)
	if !strings.Contains(c.lastText(), "Usage") {
		t.Errorf("Expected usage reply, got %q", c.lastText())
	}
}

func TestTasksToggleAndSettings(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)

	c := message(testAdminID, "/tasks off")
	if err := tb.handler.HandleTasks(c); err != nil {
		t.Fatalf("HandleTasks failed: %v", err)
	}
	c = message(1, "/task")
	tb.handler.HandleTask(c)
	if !strings.Contains(c.lastText(), "disabled") {
		t.Errorf("Expected tasks disabled reply, got %q", c.lastText())
	}

	tb.handler.HandleTasks(message(testAdminID, "/tasks on"))

	c = message(testAdminID, "/set task_reward 300")
	if err := tb.handler.HandleSet(c); err != nil {
		t.Fatalf("HandleSet failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "task_reward: 300") {
		t.Errorf("Expected updated settings, got %q", c.lastText())
	}

	c = message(testAdminID, "/set bogus 1")
	tb.handler.HandleSet(c)
	if !strings.Contains(c.lastText(), "Unknown setting") {
		t.Errorf("Expected unknown setting reply, got %q", c.lastText())
	}
}

func TestBanBlocksTasks(t *testing.T) {
	tb := newTestBot(t)
	tb.createUser(t, 1)

	c := message(testAdminID, "/ban 1")
	if err := tb.handler.HandleBan(c); err != nil {
		t.Fatalf("HandleBan failed: %v", err)
	}
	if !strings.Contains(c.lastText(), "banned") {
		t.Errorf("Expected ban confirmation, got %q", c.lastText())
	}

	c = message(1, "/task")
	tb.handler.HandleTask(c)
	if !strings.Contains(c.lastText(), "suspended") {
		t.Errorf("Expected suspended reply, got %q", c.lastText())
	}
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not started", service.ErrUserNotFound, msgNotStarted},
		{"incomplete", &service.IncompleteError{Count: 4, Required: 10}, "watched 4 of 10 ads. Watch 6 more"},
		{"policy", service.ErrInsufficientBalance, "⚠️ Insufficient balance"},
		{"io failure", errors.New("database is locked"), msgTryLater},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorText(1, "test", tt.err); !strings.Contains(got, tt.want) {
				t.Errorf("errorText() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestParseHelpers(t *testing.T) {
	if first, rest := splitFirst("  12   not paid yet "); first != "12" || rest != "not paid yet" {
		t.Errorf("splitFirst() = %q, %q", first, rest)
	}
	if first, rest := splitFirst("12"); first != "12" || rest != "" {
		t.Errorf("splitFirst() = %q, %q", first, rest)
	}

	for raw, want := range map[string]int64{"60000": 60000, "60,000": 60000, " 1_000 ": 1000} {
		if got, ok := parseCoins(raw); !ok || got != want {
			t.Errorf("parseCoins(%q) = %d, %t", raw, got, ok)
		}
	}
	for _, raw := range []string{"", "abc", "-5", "0"} {
		if _, ok := parseCoins(raw); ok {
			t.Errorf("parseCoins(%q) should fail", raw)
		}
	}

	if id, err := parseID("#7"); err != nil || id != 7 {
		t.Errorf("parseID(#7) = %d, %v", id, err)
	}
	if _, err := parseID("x"); err == nil {
		t.Error("parseID(x) should fail")
	}
}
