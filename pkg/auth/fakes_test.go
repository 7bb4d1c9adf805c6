package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/verigate/identity-core/pkg/domain"
)

// In-memory fakes for the store and delivery interfaces. They hold the
// same contracts the Postgres repositories do, including atomic
// backup-code consumption under a single lock.

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*domain.User)}
}

func copyUser(u *domain.User) *domain.User {
	cp := *u
	if u.Name != nil {
		name := *u.Name
		cp.Name = &name
	}
	if u.MFA.Secret != nil {
		secret := *u.MFA.Secret
		cp.MFA.Secret = &secret
	}
	if u.MFA.PhoneNumber != nil {
		phone := *u.MFA.PhoneNumber
		cp.MFA.PhoneNumber = &phone
	}
	if u.MFA.BackupCodes != nil {
		cp.MFA.BackupCodes = append([]string(nil), u.MFA.BackupCodes...)
	}
	return &cp
}

func (s *fakeUserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return domain.ErrUserAlreadyExists
		}
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *fakeUserStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeUserStore) SetEmailVerified(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.EmailVerified = true
	return nil
}

func (s *fakeUserStore) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *fakeUserStore) UpdateMFA(_ context.Context, id uuid.UUID, settings domain.MFASettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.MFA = settings
	return nil
}

func (s *fakeUserStore) ConsumeBackupCode(_ context.Context, id uuid.UUID, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return false, domain.ErrUserNotFound
	}
	for i, c := range u.MFA.BackupCodes {
		if c == code {
			u.MFA.BackupCodes = append(u.MFA.BackupCodes[:i], u.MFA.BackupCodes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type fakeTokenStore struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*domain.AuthToken
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[uuid.UUID]*domain.AuthToken)}
}

func (s *fakeTokenStore) Create(_ context.Context, token *domain.AuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	s.tokens[token.ID] = &cp
	return nil
}

func (s *fakeTokenStore) FindByHash(_ context.Context, tokenHash string, kind domain.AuthTokenKind) (*domain.AuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.tokens {
		if tok.TokenHash == tokenHash && tok.Kind == kind {
			cp := *tok
			return &cp, nil
		}
	}
	return nil, domain.ErrTokenNotFound
}

func (s *fakeTokenStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[id]; !ok {
		return domain.ErrTokenNotFound
	}
	delete(s.tokens, id)
	return nil
}

func (s *fakeTokenStore) DeleteByUserAndKind(_ context.Context, userID uuid.UUID, kind domain.AuthTokenKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, tok := range s.tokens {
		if tok.UserID == userID && tok.Kind == kind {
			delete(s.tokens, id)
		}
	}
	return nil
}

func (s *fakeTokenStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// fakeMailer records every delivery so tests can fish out tokens and codes.
type fakeMailer struct {
	mu                  sync.Mutex
	verificationTokens  []string
	passwordResetTokens []string
	mfaCodes            []string
}

func (m *fakeMailer) SendVerification(_ context.Context, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verificationTokens = append(m.verificationTokens, token)
	return nil
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passwordResetTokens = append(m.passwordResetTokens, token)
	return nil
}

func (m *fakeMailer) SendMFACode(_ context.Context, _, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mfaCodes = append(m.mfaCodes, code)
	return nil
}

func (m *fakeMailer) lastMFACode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.mfaCodes) == 0 {
		return ""
	}
	return m.mfaCodes[len(m.mfaCodes)-1]
}

type fakeSMSSender struct {
	mu       sync.Mutex
	messages []string
}

func (s *fakeSMSSender) Send(_ context.Context, _, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

func (s *fakeSMSSender) lastMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}
