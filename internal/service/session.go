// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"game-night-bot/internal/model"
	"game-night-bot/internal/repository"
)

// Common errors for session operations.
var (
	// ErrNoActiveSession means the chat has no running game night.
	ErrNoActiveSession = errors.New("no active game night session")
	// ErrStaleMessage means the interaction came from a lobby or poll
	// message that has been superseded. Stale interactions must never
	// mutate state.
	ErrStaleMessage = errors.New("session message is stale")
)

// StartOutcome tells the handler how a /gamenight request resolved.
type StartOutcome int

const (
	// StartedFresh means a new lobby was created.
	StartedFresh StartOutcome = iota
	// NeedsConfirmation means an active populated lobby exists and the
	// user must choose between resuming it and restarting.
	NeedsConfirmation
)

// SessionService handles game night lobby lifecycle.
type SessionService struct {
	sessions *repository.SessionRepository
	users    *repository.UserRepository
	polls    *repository.PollRepository

	// endNightOnClose ends the session when its poll closes instead of
	// returning to the lobby.
	endNightOnClose bool
}

// NewSessionService creates a new SessionService instance.
func NewSessionService(
	sessions *repository.SessionRepository,
	users *repository.UserRepository,
	polls *repository.PollRepository,
	endNightOnClose bool,
) *SessionService {
	return &SessionService{
		sessions:        sessions,
		users:           users,
		polls:           polls,
		endNightOnClose: endNightOnClose,
	}
}

// EndNightOnClose reports the configured close policy.
func (s *SessionService) EndNightOnClose() bool {
	return s.endNightOnClose
}

// Start begins a game night for a chat. When an active session with a
// populated lobby already exists, no state is changed and the caller is
// told to ask for confirmation first.
func (s *SessionService) Start(ctx context.Context, chatID int64) (*model.Session, StartOutcome, error) {
	existing, err := s.sessions.GetActive(ctx, chatID)
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, 0, err
	}
	if existing != nil {
		count, err := s.sessions.PlayerCount(ctx, chatID)
		if err != nil {
			return nil, 0, err
		}
		if count > 0 {
			return existing, NeedsConfirmation, nil
		}
	}

	session, err := s.Restart(ctx, chatID)
	if err != nil {
		return nil, 0, err
	}
	return session, StartedFresh, nil
}

// Restart discards any existing session state for the chat, including
// lobby membership and open poll records, and creates a fresh lobby.
func (s *SessionService) Restart(ctx context.Context, chatID int64) (*model.Session, error) {
	if err := s.polls.DeleteByChat(ctx, chatID); err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, chatID)
	if err != nil {
		return nil, err
	}

	log.Info().Int64("chat_id", chatID).Msg("Game night session started")
	return session, nil
}

// Resume returns the chat's active session so the lobby can be
// re-rendered on a fresh message. The stored message ID is cleared;
// the caller records the new one with BindMessage.
func (s *SessionService) Resume(ctx context.Context, chatID int64) (*model.Session, error) {
	session, err := s.sessions.GetActive(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, err
	}
	return session, nil
}

// End closes the chat's session and purges its poll records.
func (s *SessionService) End(ctx context.Context, chatID int64) error {
	if err := s.polls.DeleteByChat(ctx, chatID); err != nil {
		return err
	}
	if err := s.sessions.SetActive(ctx, chatID, false); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrNoActiveSession
		}
		return err
	}
	if err := s.sessions.ClearPlayers(ctx, chatID); err != nil {
		return err
	}

	log.Info().Int64("chat_id", chatID).Msg("Game night session ended")
	return nil
}

// BindMessage records the Telegram message the lobby lives on. Any
// previously bound message becomes stale.
func (s *SessionService) BindMessage(ctx context.Context, chatID int64, messageID int) error {
	return s.sessions.SetMessageID(ctx, chatID, messageID)
}

// Validate loads the active session and checks the interaction against
// the bound lobby message. Interactions from superseded messages get
// ErrStaleMessage and must not mutate anything.
func (s *SessionService) Validate(ctx context.Context, chatID int64, messageID int) (*model.Session, error) {
	session, err := s.sessions.GetActive(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, err
	}
	if session.MessageID == nil || *session.MessageID != messageID {
		return nil, ErrStaleMessage
	}
	return session, nil
}

// Join adds a user to the lobby, upserting their user record first.
func (s *SessionService) Join(ctx context.Context, chatID, userID int64, name string) error {
	if _, err := s.sessions.GetActive(ctx, chatID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrNoActiveSession
		}
		return err
	}
	if _, err := s.users.Upsert(ctx, userID, name); err != nil {
		return err
	}
	return s.sessions.AddPlayer(ctx, chatID, userID)
}

// AddGuest creates a guest user and seats them in the lobby. Guests
// get minted negative IDs so they never collide with Telegram IDs.
func (s *SessionService) AddGuest(ctx context.Context, chatID int64, name string, addedBy int64) (*model.User, error) {
	if _, err := s.sessions.GetActive(ctx, chatID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, err
	}

	minID, err := s.users.MinGuestID(ctx)
	if err != nil {
		return nil, err
	}
	guest, err := s.users.CreateGuest(ctx, minID-1, name, addedBy)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.AddPlayer(ctx, chatID, guest.TelegramID); err != nil {
		return nil, err
	}

	log.Info().Int64("chat_id", chatID).Str("guest", name).Msg("Guest added to lobby")
	return guest, nil
}

// Leave removes a user from the lobby.
func (s *SessionService) Leave(ctx context.Context, chatID, userID int64) error {
	return s.sessions.RemovePlayer(ctx, chatID, userID)
}

// Players lists the lobby roster.
func (s *SessionService) Players(ctx context.Context, chatID int64) ([]*model.User, error) {
	return s.sessions.Players(ctx, chatID)
}

// ToggleWeighted flips weighted voting and returns the new value.
func (s *SessionService) ToggleWeighted(ctx context.Context, session *model.Session) (bool, error) {
	next := !session.Weighted
	if err := s.sessions.SetWeighted(ctx, session.ChatID, next); err != nil {
		return session.Weighted, err
	}
	session.Weighted = next
	return next, nil
}

// TogglePollMode switches between custom and native polls.
func (s *SessionService) TogglePollMode(ctx context.Context, session *model.Session) (model.PollMode, error) {
	next := model.PollModeCustom
	if session.PollMode == model.PollModeCustom {
		next = model.PollModeNative
	}
	if err := s.sessions.SetPollMode(ctx, session.ChatID, next); err != nil {
		return session.PollMode, err
	}
	session.PollMode = next
	return next, nil
}

// ToggleHideVoters flips anonymous voting display.
func (s *SessionService) ToggleHideVoters(ctx context.Context, session *model.Session) (bool, error) {
	next := !session.HideVoters
	if err := s.sessions.SetHideVoters(ctx, session.ChatID, next); err != nil {
		return session.HideVoters, err
	}
	session.HideVoters = next
	return next, nil
}

// CycleVoteLimit advances the vote limit setting one step.
func (s *SessionService) CycleVoteLimit(ctx context.Context, session *model.Session, next int) error {
	if err := s.sessions.SetVoteLimit(ctx, session.ChatID, next); err != nil {
		return err
	}
	session.VoteLimit = next
	return nil
}
