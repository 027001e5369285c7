package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
)

const (
	defaultArchiveTimeout = 3 * time.Second
	DefaultSessionIdleTTL = 30 * time.Minute
	DefaultMaxSessions    = 10000
)

// QuestionRouter is the fusion contract ChatUseCase depends on.
type QuestionRouter interface {
	Route(ctx context.Context, question string, route domain.Route, history []domain.ConversationTurn) string
}

type ChatOptions struct {
	MemoryWindow   int
	ArchiveTimeout time.Duration
	// IdleTTL drops sessions not used for this long.
	IdleTTL time.Duration
	// MaxSessions caps live sessions; the least recently used goes first.
	MaxSessions int
}

type chatSession struct {
	// turn serializes questions within one session.
	turn   sync.Mutex
	memory *ConversationMemory
	// lastUsed is guarded by ChatUseCase.mu.
	lastUsed time.Time
}

// ChatUseCase owns conversation sessions and drives classify -> route -> record.
type ChatUseCase struct {
	router  QuestionRouter
	archive ports.TurnArchive
	opts    ChatOptions

	mu        sync.Mutex
	sessions  map[string]*chatSession
	lastSweep time.Time
	now       func() time.Time
}

func NewChatUseCase(router QuestionRouter, archive ports.TurnArchive, opts ChatOptions) *ChatUseCase {
	if opts.MemoryWindow <= 0 {
		opts.MemoryWindow = DefaultMemoryWindow
	}
	if opts.ArchiveTimeout <= 0 {
		opts.ArchiveTimeout = defaultArchiveTimeout
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultSessionIdleTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	return &ChatUseCase{
		router:   router,
		archive:  archive,
		opts:     opts,
		sessions: make(map[string]*chatSession),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ask answers question inside sessionID. An empty sessionID starts a new
// session; an unknown one is created on first use and, when a transcript
// archive is configured, resumed from its archived turns.
func (uc *ChatUseCase) Ask(ctx context.Context, sessionID, question string) (*domain.ChatAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("question is required"))
	}

	sessionID = strings.TrimSpace(sessionID)
	resumable := sessionID != ""
	if !resumable {
		sessionID = uuid.NewString()
	}
	session, created := uc.session(sessionID)

	session.turn.Lock()
	defer session.turn.Unlock()

	if created && resumable {
		uc.resume(ctx, sessionID, session.memory)
	}

	route := Classify(question)
	answer := uc.router.Route(ctx, question, route, session.memory.History())
	session.memory.Record(question, answer)

	uc.archiveTurn(ctx, domain.ArchivedTurn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Route:     route,
		Input:     question,
		Output:    answer,
		CreatedAt: uc.now(),
	})

	return &domain.ChatAnswer{
		SessionID: sessionID,
		Route:     route,
		Answer:    answer,
		Entities:  ExtractEntities(question),
	}, nil
}

func (uc *ChatUseCase) History(_ context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	session, ok := uc.lookup(sessionID)
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "history", fmt.Errorf("session_id=%s", sessionID))
	}
	return session.memory.History(), nil
}

// EndSession discards the session and its memory.
func (uc *ChatUseCase) EndSession(_ context.Context, sessionID string) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if _, ok := uc.sessions[sessionID]; !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "end session", fmt.Errorf("session_id=%s", sessionID))
	}
	delete(uc.sessions, sessionID)
	return nil
}

func (uc *ChatUseCase) Classify(question string) domain.ClassificationScores {
	return ScoreQuestion(question)
}

func (uc *ChatUseCase) session(sessionID string) (*chatSession, bool) {
	now := uc.now()
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if session, ok := uc.liveLocked(sessionID, now); ok {
		session.lastUsed = now
		return session, false
	}

	uc.evictLocked(now)
	session := &chatSession{memory: NewConversationMemory(uc.opts.MemoryWindow), lastUsed: now}
	uc.sessions[sessionID] = session
	slog.Info("session_started", "session_id", sessionID)
	return session, true
}

func (uc *ChatUseCase) lookup(sessionID string) (*chatSession, bool) {
	now := uc.now()
	uc.mu.Lock()
	defer uc.mu.Unlock()

	session, ok := uc.liveLocked(sessionID, now)
	if ok {
		session.lastUsed = now
	}
	return session, ok
}

// liveLocked returns the session unless it has been idle past the TTL, in
// which case it is dropped.
func (uc *ChatUseCase) liveLocked(sessionID string, now time.Time) (*chatSession, bool) {
	session, ok := uc.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if now.Sub(session.lastUsed) > uc.opts.IdleTTL {
		delete(uc.sessions, sessionID)
		return nil, false
	}
	return session, true
}

// evictLocked makes room for one new session: idle sessions are swept at most
// every quarter TTL, then the least recently used go while at the cap.
func (uc *ChatUseCase) evictLocked(now time.Time) {
	expired := 0
	if now.Sub(uc.lastSweep) >= uc.opts.IdleTTL/4 {
		for id, session := range uc.sessions {
			if now.Sub(session.lastUsed) > uc.opts.IdleTTL {
				delete(uc.sessions, id)
				expired++
			}
		}
		uc.lastSweep = now
	}

	evicted := 0
	for len(uc.sessions) >= uc.opts.MaxSessions {
		oldestID := ""
		var oldest time.Time
		for id, session := range uc.sessions {
			if oldestID == "" || session.lastUsed.Before(oldest) {
				oldestID, oldest = id, session.lastUsed
			}
		}
		delete(uc.sessions, oldestID)
		evicted++
	}

	if expired > 0 || evicted > 0 {
		slog.Info("sessions_evicted", "idle", expired, "over_capacity", evicted, "live", len(uc.sessions))
	}
}

// resume loads the latest archived turns of sessionID into memory. Failures
// leave the session empty.
func (uc *ChatUseCase) resume(ctx context.Context, sessionID string, memory *ConversationMemory) {
	if uc.archive == nil {
		return
	}
	archiveCtx, cancel := context.WithTimeout(ctx, uc.opts.ArchiveTimeout)
	defer cancel()

	turns, err := uc.archive.ListTurns(archiveCtx, sessionID, memory.Capacity())
	if err != nil {
		slog.Warn("session_resume_failed", "session_id", sessionID, "error", err)
		return
	}
	if len(turns) == 0 {
		return
	}
	restored := make([]domain.ConversationTurn, 0, len(turns))
	for _, t := range turns {
		restored = append(restored, domain.ConversationTurn{Input: t.Input, Output: t.Output, RecordedAt: t.CreatedAt})
	}
	memory.restore(restored)
	slog.Info("session_resumed", "session_id", sessionID, "turns", len(restored))
}

// archiveTurn is best-effort: the answer is already in memory.
func (uc *ChatUseCase) archiveTurn(ctx context.Context, turn domain.ArchivedTurn) {
	if uc.archive == nil {
		return
	}
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.opts.ArchiveTimeout)
	defer cancel()

	if err := uc.archive.AppendTurn(archiveCtx, turn); err != nil {
		slog.Warn("turn_archive_failed", "session_id", turn.SessionID, "error", err)
	}
}
