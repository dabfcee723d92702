package chat

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"polychat/internal/annotate"
	"polychat/internal/config"
	"polychat/internal/models"
	"polychat/internal/service/assistant"
	"polychat/internal/storage"
)

type stubModel struct {
	reply string
	err   error
	got   [][]*schema.Message
}

func (m *stubModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.got = append(m.got, input)
	if m.err != nil {
		return nil, m.err
	}
	return &schema.Message{Role: schema.Assistant, Content: m.reply}, nil
}

type stubRecommender struct {
	line   string
	called int
}

func (r *stubRecommender) Recommend(_ context.Context, _ models.Sentiment, _ string) string {
	r.called++
	return r.line
}

func TestGeneratePositiveFirstTurn(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	store := assistant.NewService(db, "sqlite3")
	llm := &stubModel{reply: "Glad to hear it!"}
	svc := NewService(store, llm, nil)
	ctx := context.Background()

	text := "I love this!"
	reply, err := svc.Generate(ctx, "u1", "s1", text)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "Glad to hear it!" {
		t.Fatalf("reply = %q", reply)
	}

	if len(llm.got) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(llm.got))
	}
	prompt := llm.got[0]
	if prompt[0].Role != schema.System || !strings.Contains(prompt[0].Content, "positive") {
		t.Fatalf("expected templated system message mentioning positive, got %+v", prompt[0])
	}
	if !containsSystem(prompt, framingSteer) {
		t.Fatalf("expected framing steering message on empty session")
	}
	if !containsSystem(prompt, enthusiasmSteer) {
		t.Fatalf("expected enthusiasm steering message for positive sentiment")
	}
	if last := prompt[len(prompt)-1]; last.Role != schema.User || last.Content != text {
		t.Fatalf("expected trailing user turn %q, got %+v", text, last)
	}

	stored, err := store.SessionMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("session messages: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(stored))
	}
	if stored[0].Role != models.RoleHuman || stored[0].Content != text {
		t.Fatalf("unexpected human row: %+v", stored[0])
	}
	if stored[0].Sentiment != models.SentimentPositive {
		t.Fatalf("human sentiment = %s, want positive", stored[0].Sentiment)
	}
	if stored[1].Role != models.RoleAssistant || stored[1].Content != reply {
		t.Fatalf("unexpected assistant row: %+v", stored[1])
	}

	// steering messages must not be persisted
	for _, msg := range stored {
		if msg.Role == models.RoleSystem {
			t.Fatalf("steering message was persisted: %+v", msg)
		}
	}

	lang, err := store.PreferredLanguage(ctx, "u1")
	if err != nil {
		t.Fatalf("preferred language: %v", err)
	}
	if want := annotate.DetectLanguage(text); lang != want {
		t.Fatalf("preferred language = %q, want detected %q", lang, want)
	}
}

func TestGenerateEmptyMessageUsesDefaults(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	store := assistant.NewService(db, "sqlite3")
	llm := &stubModel{reply: "How can I help?"}
	svc := NewService(store, llm, nil)
	ctx := context.Background()

	if _, err := svc.Generate(ctx, "u1", "s1", ""); err != nil {
		t.Fatalf("generate with empty message: %v", err)
	}

	stored, err := store.SessionMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("session messages: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(stored))
	}
	if stored[0].Language != annotate.DefaultLanguage {
		t.Fatalf("language = %q, want default %q", stored[0].Language, annotate.DefaultLanguage)
	}
	if stored[0].Sentiment != models.SentimentNeutral {
		t.Fatalf("sentiment = %s, want neutral", stored[0].Sentiment)
	}
}

func TestGenerateLLMFailurePropagatesAfterHumanPersist(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	store := assistant.NewService(db, "sqlite3")
	llm := &stubModel{err: errors.New("upstream timeout")}
	svc := NewService(store, llm, nil)
	ctx := context.Background()

	_, err := svc.Generate(ctx, "u1", "s1", "hello")
	if err == nil {
		t.Fatalf("expected error from failed model call")
	}
	if !errors.Is(err, ErrLLM) {
		t.Fatalf("expected ErrLLM, got %v", err)
	}

	stored, err := store.SessionMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("session messages: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected only the human message stored, got %d rows", len(stored))
	}
	if stored[0].Role != models.RoleHuman {
		t.Fatalf("stored row role = %s, want human", stored[0].Role)
	}
}

func TestGenerateWithRecommenderInjectsMedia(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	store := assistant.NewService(db, "sqlite3")
	llm := &stubModel{reply: "Here is a song for you."}
	rec := &stubRecommender{line: "unable to fetch recommendation"}
	svc := NewService(store, llm, rec)
	ctx := context.Background()

	if _, err := svc.Generate(ctx, "u1", "s1", "I love this!"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rec.called != 1 {
		t.Fatalf("expected recommender to run once, ran %d times", rec.called)
	}
	prompt := llm.got[0]
	if prompt[0].Role != schema.System || !strings.Contains(prompt[0].Content, "unable to fetch recommendation") {
		t.Fatalf("expected placeholder in system message, got %+v", prompt[0])
	}
	stored, err := store.SessionMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("session messages: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected both messages persisted, got %d", len(stored))
	}
}

func TestGenerateNegativeSteering(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	store := assistant.NewService(db, "sqlite3")
	llm := &stubModel{reply: "I am sorry to hear that."}
	svc := NewService(store, llm, nil)

	if _, err := svc.Generate(context.Background(), "u1", "s1", "I hate this, it is terrible and awful."); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !containsSystem(llm.got[0], empathySteer) {
		t.Fatalf("expected empathy steering message for negative sentiment")
	}
	if containsSystem(llm.got[0], enthusiasmSteer) {
		t.Fatalf("did not expect enthusiasm steering on a negative turn")
	}
}

func TestGenerateSecondTurnSkipsFraming(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	store := assistant.NewService(db, "sqlite3")
	llm := &stubModel{reply: "ok"}
	svc := NewService(store, llm, nil)
	ctx := context.Background()

	if _, err := svc.Generate(ctx, "u1", "s1", "The meeting is at three o'clock."); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := svc.Generate(ctx, "u1", "s1", "Please reschedule it to four."); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if containsSystem(llm.got[1], framingSteer) {
		t.Fatalf("framing steer should only appear on an empty session")
	}
	// prior turns must be present in the second prompt
	var sawFirst bool
	for _, msg := range llm.got[1] {
		if msg.Content == "The meeting is at three o'clock." {
			sawFirst = true
		}
	}
	if !sawFirst {
		t.Fatalf("expected first human turn in second prompt history")
	}
}

func containsSystem(messages []*schema.Message, content string) bool {
	for _, msg := range messages {
		if msg.Role == schema.System && msg.Content == content {
			return true
		}
	}
	return false
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}
