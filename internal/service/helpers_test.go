package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/telebot.v3"

	"github.com/Ejimurphy/task-earnings-bot/internal/config"
	"github.com/Ejimurphy/task-earnings-bot/internal/storage"
)

const testAdminID = 900

type sentMessage struct {
	To   int64
	What interface{}
	Opts []interface{}
}

// fakeSender records messages instead of calling Telegram
type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	calls   int
	err     error
	failFor map[int64]error
	delay   time.Duration // set before use
}

func (f *fakeSender) Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	id, _ := strconv.ParseInt(to.Recipient(), 10, 64)
	if err := f.failFor[id]; err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, sentMessage{To: id, What: what, Opts: opts})
	return &telebot.Message{ID: len(f.sent)}, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSender) textsTo(id int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, m := range f.sent {
		if m.To == id {
			texts = append(texts, fmt.Sprint(m.What))
		}
	}
	return texts
}

// testClock is a settable clock for staleness tests
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store       *storage.Store
	cfg         config.Config
	sender      *fakeSender
	notifier    *NotificationService
	rules       *RulesService
	tasks       *TaskService
	withdrawals *WithdrawalService
	accounts    *AccountService
	admin       *AdminService
	support     *SupportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Defaults()
	cfg.BotToken = "test-token"
	cfg.BaseURL = "https://bot.example.com"
	cfg.AdminIDs = []int64{testAdminID}
	cfg.CoinRate = testCoinRate(t, cfg.CoinRateText)

	sender := &fakeSender{}
	notifier := NewNotificationService(sender, cfg.AdminIDs, cfg.Currency)
	notifier.retryDelay = 0

	admins := NewAdmins(cfg.AdminIDs)
	rules := NewRulesService(store, cfg)
	return &testEnv{
		store:       store,
		cfg:         cfg,
		sender:      sender,
		notifier:    notifier,
		rules:       rules,
		tasks:       NewTaskService(store, rules, notifier, cfg.BaseURL, cfg.SessionIdleReset),
		withdrawals: NewWithdrawalService(store, rules, notifier, admins),
		accounts:    NewAccountService(store, rules, notifier),
		admin:       NewAdminService(store, rules, notifier, admins),
		support:     NewSupportService(store, notifier),
	}
}

func (e *testEnv) createUser(t *testing.T, id, referredBy int64) {
	t.Helper()
	if err := e.store.CreateUser(context.Background(), id, fmt.Sprintf("user%d", id), "User", referredBy); err != nil {
		t.Fatalf("CreateUser(%d) failed: %v", id, err)
	}
}

func (e *testEnv) balance(t *testing.T, id int64) int64 {
	t.Helper()
	user, err := e.store.GetUser(context.Background(), id)
	if err != nil || user == nil {
		t.Fatalf("GetUser(%d): user=%v err=%v", id, user, err)
	}
	return user.Coins
}

func (e *testEnv) giveCoins(t *testing.T, id, coins int64) {
	t.Helper()
	if err := e.store.CreditCoins(context.Background(), id, coins); err != nil {
		t.Fatalf("CreditCoins failed: %v", err)
	}
}

func (e *testEnv) setBank(t *testing.T, id int64, bank storage.Bank) {
	t.Helper()
	if err := e.store.SetBank(context.Background(), id, bank); err != nil {
		t.Fatalf("SetBank failed: %v", err)
	}
}

// watchAds records n views with distinct event ids and returns the last progress
func (e *testEnv) watchAds(t *testing.T, sessionID string, n int) Progress {
	t.Helper()
	var progress Progress
	for i := 0; i < n; i++ {
		idx := i
		var err error
		progress, err = e.tasks.RecordView(context.Background(), sessionID, &idx, fmt.Sprintf("%s-evt-%d", sessionID, i))
		if err != nil {
			t.Fatalf("RecordView #%d failed: %v", i, err)
		}
	}
	return progress
}

func (e *testEnv) startSession(t *testing.T, userID int64) string {
	t.Helper()
	res, err := e.tasks.StartSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	return res.Session.ID
}

func testCoinRate(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("invalid coin rate %q: %v", raw, err)
	}
	return rate
}
