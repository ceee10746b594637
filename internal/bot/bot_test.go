package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel/metric/noop"

	adminhandler "rsvp-bot/internal/admin/handler"
	"rsvp-bot/internal/admin/policy"
	"rsvp-bot/internal/dialog"
	"rsvp-bot/internal/notify"
	regrepo "rsvp-bot/internal/registration/repository"
	regservice "rsvp-bot/internal/registration/service"
	rsvpdomain "rsvp-bot/internal/rsvp/domain"
	rsvprepo "rsvp-bot/internal/rsvp/repository"
	rsvpservice "rsvp-bot/internal/rsvp/service"
)

const operatorChat int64 = 500

// fakeSender records every Chattable and can fail sends to chosen chats.
type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	failChat map[int64]bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok && f.failChat[m.ChatID] {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing sent")
	}
	m, ok := f.sent[len(f.sent)-1].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("last sent = %T, want MessageConfig", f.sent[len(f.sent)-1])
	}
	return m
}

type botFixture struct {
	sender *fakeSender
	router *Router
	ctrl   *rsvpservice.Controller
	regs   *regservice.Service
}

func newBotFixture(t *testing.T, capacity int) *botFixture {
	t.Helper()
	ctx := context.Background()
	regStore := regrepo.NewMemoryRepository()
	regs := regservice.NewService(regStore, regStore)
	sender := &fakeSender{}
	ctrl := rsvpservice.NewController(rsvprepo.NewMemoryRepository(), regs, NewNotifier(sender, nil), capacity,
		rsvpservice.WithMeterProvider(noop.NewMeterProvider()))
	engine := dialog.NewEngine(dialog.NewCacheStore(time.Hour), regs, "НИЯУ МИФИ", nil, nil)
	auth, err := policy.NewAuthorizer(ctx, []int64{operatorChat})
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}
	admin := adminhandler.NewHandler(auth, ctrl, regs, 48*time.Hour, nil)
	return &botFixture{
		sender: sender,
		router: NewRouter(sender, engine, ctrl, admin, nil),
		ctrl:   ctrl,
		regs:   regs,
	}
}

func textMessage(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID, Type: "private"}, Text: text}
}

func commandMessage(chatID int64, cmd string) *tgbotapi.Message {
	text := "/" + cmd
	return &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}
}

func (f *botFixture) say(t *testing.T, chatID int64, text string) tgbotapi.MessageConfig {
	t.Helper()
	f.router.HandleMessage(context.Background(), textMessage(chatID, text))
	return f.sender.last(t)
}

func (f *botFixture) register(t *testing.T, chatID int64) string {
	t.Helper()
	ctx := context.Background()
	f.router.HandleMessage(ctx, commandMessage(chatID, "start"))
	for _, text := range []string{"Да", "иванов иван", "Нет", "1234 567890", "Пропустить", "Пропустить", "Да"} {
		f.router.HandleMessage(ctx, textMessage(chatID, text))
	}
	reg, err := f.regs.LastByChat(ctx, chatID)
	if err != nil || reg == nil {
		t.Fatalf("registration for chat %d = %v, %v", chatID, reg, err)
	}
	return reg.ID
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		text string
		want dialog.Input
	}{
		{"Да", dialog.Yes},
		{" да ", dialog.Yes},
		{"НЕТ", dialog.No},
		{"Назад", dialog.Back},
		{"пропустить", dialog.Skip},
		{"Да, приду", dialog.Text("Да, приду")},
		{"Иванов Иван", dialog.Text("Иванов Иван")},
	}
	for _, tc := range testCases {
		if got := Classify(tc.text); got != tc.want {
			t.Errorf("Classify(%q) = %+v, want %+v", tc.text, got, tc.want)
		}
	}
}

func TestReplyMarkup(t *testing.T) {
	kb, ok := ReplyMarkup(dialog.KeyboardYesNoBack).(tgbotapi.ReplyKeyboardMarkup)
	if !ok {
		t.Fatalf("YesNoBack markup is %T", ReplyMarkup(dialog.KeyboardYesNoBack))
	}
	if len(kb.Keyboard) != 2 || len(kb.Keyboard[0]) != 2 || kb.Keyboard[1][0].Text != dialog.ButtonBack {
		t.Errorf("YesNoBack keyboard = %+v", kb.Keyboard)
	}
	if !kb.ResizeKeyboard {
		t.Error("keyboard should resize")
	}
	skip := ReplyMarkup(dialog.KeyboardBackSkip).(tgbotapi.ReplyKeyboardMarkup)
	if skip.Keyboard[0][0].Text != dialog.ButtonSkip || skip.Keyboard[1][0].Text != dialog.ButtonBack {
		t.Errorf("BackSkip keyboard = %+v", skip.Keyboard)
	}
	if _, ok := ReplyMarkup(dialog.KeyboardRemove).(tgbotapi.ReplyKeyboardRemove); !ok {
		t.Errorf("Remove markup is %T", ReplyMarkup(dialog.KeyboardRemove))
	}
}

func TestRegisterCommands(t *testing.T) {
	s := &fakeSender{}
	if err := RegisterCommands(s); err != nil {
		t.Fatalf("RegisterCommands: %v", err)
	}
	if len(s.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(s.requests))
	}
	cfg, ok := s.requests[0].(tgbotapi.SetMyCommandsConfig)
	if !ok || len(cfg.Commands) != 3 || cfg.Commands[0].Command != "start" {
		t.Errorf("request = %+v", s.requests[0])
	}
}

func TestNotifier(t *testing.T) {
	s := &fakeSender{failChat: map[int64]bool{2: true}}
	n := NewNotifier(s, nil)
	ctx := context.Background()
	if !n.Notify(ctx, 1, notify.KindInvitation, map[string]string{"deadline": "03.03.2026 10:00"}) {
		t.Fatal("invitation not delivered")
	}
	m := s.last(t)
	if m.ChatID != 1 || !strings.Contains(m.Text, "03.03.2026 10:00") || m.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("invitation = %+v", m)
	}
	if _, ok := m.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup); !ok {
		t.Errorf("invitation markup = %T, want a yes/no keyboard", m.ReplyMarkup)
	}
	if n.Notify(ctx, 2, notify.KindPromoted, nil) {
		t.Error("Notify to a blocked chat reported success")
	}
	if n.Notify(ctx, 1, notify.Kind("bogus"), nil) {
		t.Error("Notify with an unknown kind reported success")
	}
}

func TestRouter_RegistrationThenRSVP(t *testing.T) {
	f := newBotFixture(t, 1)
	id := f.register(t, 10)

	// The dialog is finished, so a bare yes goes to the controller; the window is not open yet.
	if m := f.say(t, 10, "Да"); m.Text != textRSVPNotOpen {
		t.Errorf("yes before window = %q", m.Text)
	}
	if _, err := f.ctrl.OpenWindow(context.Background(), id, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("OpenWindow: %v", err)
	}
	if m := f.say(t, 10, "да"); m.Text != textConfirmed {
		t.Errorf("yes after window = %q", m.Text)
	}
	if m := f.say(t, 10, "Нет"); m.Text != textAlreadyConfirmed {
		t.Errorf("no after confirm = %q", m.Text)
	}
}

func TestRouter_YesInsideDialogGoesToDialog(t *testing.T) {
	f := newBotFixture(t, 1)
	f.router.HandleMessage(context.Background(), commandMessage(20, "start"))
	m := f.say(t, 20, "Да")
	if m.Text == textNotRegistered || m.Text == textRSVPNotOpen {
		t.Fatalf("consent yes was routed to the controller: %q", m.Text)
	}
	ok, err := f.regs.HasConsent(context.Background(), 20)
	if err != nil || !ok {
		t.Errorf("HasConsent = %v, %v; want true", ok, err)
	}
}

func TestRouter_NotRegistered(t *testing.T) {
	f := newBotFixture(t, 1)
	if m := f.say(t, 30, "Да"); m.Text != textNotRegistered {
		t.Errorf("yes from stranger = %q", m.Text)
	}
	f.router.HandleMessage(context.Background(), commandMessage(30, "cancel"))
	if m := f.sender.last(t); m.Text != textNotRegistered {
		t.Errorf("cancel from stranger = %q", m.Text)
	}
}

func TestRouter_WaitlistCancelAndPromotion(t *testing.T) {
	f := newBotFixture(t, 1)
	ctx := context.Background()
	first := f.register(t, 40)
	second := f.register(t, 41)
	deadline := time.Now().Add(time.Hour)
	for _, id := range []string{first, second} {
		if _, err := f.ctrl.OpenWindow(ctx, id, deadline); err != nil {
			t.Fatalf("OpenWindow: %v", err)
		}
	}
	f.say(t, 40, "Да")
	m := f.say(t, 41, "Да")
	if !strings.Contains(m.Text, "номер: 1") {
		t.Errorf("waitlisted reply = %q", m.Text)
	}

	f.router.HandleMessage(ctx, commandMessage(41, "status"))
	if m := f.sender.last(t); !strings.Contains(m.Text, "номер: 1") {
		t.Errorf("status = %q", m.Text)
	}

	f.router.HandleMessage(ctx, commandMessage(40, "cancel"))
	// The promotion notice to chat 41 is sent before the reply to chat 40.
	f.sender.mu.Lock()
	sent := append([]tgbotapi.Chattable(nil), f.sender.sent...)
	f.sender.mu.Unlock()
	promo := sent[len(sent)-2].(tgbotapi.MessageConfig)
	if promo.ChatID != 41 || promo.Text != textPromoted {
		t.Errorf("promotion message = %+v", promo)
	}
	if m := f.sender.last(t); m.ChatID != 40 || m.Text != textCancelled {
		t.Errorf("cancel reply = %+v", m)
	}

	f.router.HandleMessage(ctx, commandMessage(40, "cancel"))
	if m := f.sender.last(t); m.Text != textNothingToCancel {
		t.Errorf("second cancel = %q", m.Text)
	}
	if m := f.say(t, 41, "Да"); m.Text != textConfirmed {
		t.Errorf("promoted yes = %q", m.Text)
	}
}

func TestRouter_AdminCommands(t *testing.T) {
	f := newBotFixture(t, 5)
	f.register(t, 50)
	ctx := context.Background()

	f.router.HandleMessage(ctx, commandMessage(operatorChat, "start_rsvp"))
	if m := f.sender.last(t); m.ChatID != operatorChat || !strings.Contains(m.Text, "Отправлено: 1") || m.ParseMode != "" {
		t.Errorf("start_rsvp reply = %+v", m)
	}

	f.router.HandleMessage(ctx, commandMessage(operatorChat, "export"))
	f.sender.mu.Lock()
	doc, ok := f.sender.sent[len(f.sender.sent)-1].(tgbotapi.DocumentConfig)
	f.sender.mu.Unlock()
	if !ok {
		t.Fatal("export did not send a document")
	}
	file, ok := doc.File.(tgbotapi.FileBytes)
	if !ok || file.Name != adminhandler.ExportFileName || !strings.Contains(string(file.Bytes), "awaiting") {
		t.Errorf("export document = %+v", doc.File)
	}
}

func TestRouter_AdminCommandFromStrangerIsText(t *testing.T) {
	f := newBotFixture(t, 5)
	f.router.HandleMessage(context.Background(), commandMessage(60, "stats"))
	m := f.sender.last(t)
	if strings.Contains(m.Text, "Статистика") {
		t.Errorf("stranger got stats: %q", m.Text)
	}
}

func TestRouter_IgnoresGroupChats(t *testing.T) {
	f := newBotFixture(t, 5)
	ctx := context.Background()
	for _, chatType := range []string{"group", "supergroup", "channel"} {
		const groupChat int64 = -1001
		start := commandMessage(groupChat, "start")
		start.Chat.Type = chatType
		f.router.HandleMessage(ctx, start)
		for _, text := range []string{"Да", "иванов иван", "Нет"} {
			m := textMessage(groupChat, text)
			m.Chat.Type = chatType
			f.router.HandleMessage(ctx, m)
		}
		stats := commandMessage(operatorChat, "stats")
		stats.Chat.Type = chatType
		f.router.HandleMessage(ctx, stats)
	}
	if len(f.sender.sent) != 0 {
		t.Errorf("sent %d messages to non-private chats, want 0", len(f.sender.sent))
	}
	if reg, _ := f.regs.LastByChat(ctx, -1001); reg != nil {
		t.Errorf("group chat registered: %+v", reg)
	}
}

func TestRouter_ReplyFailureIsLogged(t *testing.T) {
	f := newBotFixture(t, 1)
	f.sender.failChat = map[int64]bool{70: true}
	f.router.HandleMessage(context.Background(), textMessage(70, "Да"))
	if len(f.sender.sent) != 0 {
		t.Errorf("sent = %d, want 0", len(f.sender.sent))
	}
}

func TestRouter_IgnoresMessagesWithoutChat(t *testing.T) {
	f := newBotFixture(t, 1)
	f.router.HandleMessage(context.Background(), nil)
	f.router.HandleMessage(context.Background(), &tgbotapi.Message{Text: "Да"})
	if len(f.sender.sent) != 0 {
		t.Errorf("sent = %d, want 0", len(f.sender.sent))
	}
}

func TestStatusText(t *testing.T) {
	pos := 3
	testCases := []struct {
		rec  *rsvpdomain.Record
		want string
	}{
		{nil, textStatusRegistered},
		{&rsvpdomain.Record{Status: rsvpdomain.StatusRegistered}, textStatusRegistered},
		{&rsvpdomain.Record{Status: rsvpdomain.StatusAwaiting}, textStatusAwaiting},
		{&rsvpdomain.Record{Status: rsvpdomain.StatusInvited}, textStatusInvited},
		{&rsvpdomain.Record{Status: rsvpdomain.StatusWaitlisted, WaitlistPosition: &pos}, "Вы в листе ожидания, ваш номер: 3."},
		{&rsvpdomain.Record{Status: rsvpdomain.StatusConfirmed}, textAlreadyConfirmed},
		{&rsvpdomain.Record{Status: rsvpdomain.StatusDeclined}, textAlreadyDeclined},
		{&rsvpdomain.Record{Status: rsvpdomain.StatusExpired}, textRSVPClosed},
	}
	for _, tc := range testCases {
		if got, _ := statusText(tc.rec); got != tc.want {
			t.Errorf("statusText(%+v) = %q, want %q", tc.rec, got, tc.want)
		}
	}
}

// fakeSource feeds a fixed list of updates and records StopReceivingUpdates.
type fakeSource struct {
	ch      chan tgbotapi.Update
	stopped chan struct{}
	once    sync.Once
}

func newFakeSource(updates []tgbotapi.Update, closeAfter bool) *fakeSource {
	s := &fakeSource{ch: make(chan tgbotapi.Update, len(updates)), stopped: make(chan struct{})}
	for _, u := range updates {
		s.ch <- u
	}
	if closeAfter {
		close(s.ch)
	}
	return s
}

func (s *fakeSource) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return s.ch }

func (s *fakeSource) StopReceivingUpdates() { s.once.Do(func() { close(s.stopped) }) }

// orderHandler records texts per chat and whether any chat ran on two goroutines at once.
type orderHandler struct {
	mu      sync.Mutex
	byChat  map[int64][]string
	running map[int64]bool
	overlap bool
}

func (h *orderHandler) HandleMessage(_ context.Context, msg *tgbotapi.Message) {
	h.mu.Lock()
	if h.running[msg.Chat.ID] {
		h.overlap = true
	}
	h.running[msg.Chat.ID] = true
	h.mu.Unlock()

	time.Sleep(time.Millisecond)

	h.mu.Lock()
	h.byChat[msg.Chat.ID] = append(h.byChat[msg.Chat.ID], msg.Text)
	h.running[msg.Chat.ID] = false
	h.mu.Unlock()
}

func TestPoller_PerChatOrder(t *testing.T) {
	var updates []tgbotapi.Update
	chats := []int64{1, 2, 3, -1001, 4}
	for i := 0; i < 10; i++ {
		for _, c := range chats {
			updates = append(updates, tgbotapi.Update{Message: textMessage(c, string(rune('a'+i)))})
		}
	}
	updates = append(updates, tgbotapi.Update{}) // no message
	src := newFakeSource(updates, true)
	h := &orderHandler{byChat: map[int64][]string{}, running: map[int64]bool{}}
	if err := NewPoller(src, h, 3, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.overlap {
		t.Error("one chat was handled concurrently")
	}
	for _, c := range chats {
		if got := strings.Join(h.byChat[c], ""); got != "abcdefghij" {
			t.Errorf("chat %d order = %q", c, got)
		}
	}
}

func TestPoller_StopsOnContextCancel(t *testing.T) {
	src := newFakeSource(nil, false)
	h := &orderHandler{byChat: map[int64][]string{}, running: map[int64]bool{}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewPoller(src, h, 2, nil).Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	select {
	case <-src.stopped:
	default:
		t.Error("StopReceivingUpdates not called")
	}
}

type panicHandler struct {
	mu    sync.Mutex
	calls int
}

func (h *panicHandler) HandleMessage(_ context.Context, msg *tgbotapi.Message) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if msg.Text == "boom" {
		panic("handler exploded")
	}
}

func TestPoller_RecoversFromPanic(t *testing.T) {
	src := newFakeSource([]tgbotapi.Update{
		{Message: textMessage(1, "boom")},
		{Message: textMessage(1, "ok")},
	}, true)
	h := &panicHandler{}
	if err := NewPoller(src, h, 1, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.calls != 2 {
		t.Errorf("calls = %d, want 2", h.calls)
	}
}

func TestShard(t *testing.T) {
	for _, id := range []int64{0, 1, 7, -1, -1001234567890, 1 << 40} {
		s := shard(id, 4)
		if s < 0 || s >= 4 {
			t.Errorf("shard(%d, 4) = %d", id, s)
		}
		if s != shard(id, 4) {
			t.Errorf("shard(%d) not stable", id)
		}
	}
}
