package repository

import (
	"context"
	"sync"
	"time"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/model"
)

type memoryData struct {
	users  map[string]model.User
	tokens map[model.TokenKind]map[string]model.Token
}

func (d *memoryData) clone() *memoryData {
	out := &memoryData{
		users:  make(map[string]model.User, len(d.users)),
		tokens: make(map[model.TokenKind]map[string]model.Token, len(d.tokens)),
	}
	for id, u := range d.users {
		out.users[id] = u
	}
	for kind, tokens := range d.tokens {
		copied := make(map[string]model.Token, len(tokens))
		for id, t := range tokens {
			copied[id] = t
		}
		out.tokens[kind] = copied
	}
	return out
}

type memoryState struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data *memoryData
}

// MemoryStore is an in-process Store. Transactions are serialised and roll
// back by restoring a snapshot taken when they began.
type MemoryStore struct {
	state *memoryState
	inTx  bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			data: &memoryData{
				users:  map[string]model.User{},
				tokens: map[model.TokenKind]map[string]model.Token{},
			},
		},
	}
}

func (s *MemoryStore) Users() UserRepository {
	return &memoryUserRepository{state: s.state}
}

func (s *MemoryStore) Tokens(kind model.TokenKind) TokenRepository {
	return &memoryTokenRepository{state: s.state, kind: kind}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.state.txMu.Lock()
	defer s.state.txMu.Unlock()

	s.state.mu.Lock()
	snapshot := s.state.data.clone()
	s.state.mu.Unlock()

	if err := fn(ctx, &MemoryStore{state: s.state, inTx: true}); err != nil {
		s.state.mu.Lock()
		s.state.data = snapshot
		s.state.mu.Unlock()
		return err
	}

	return nil
}

type memoryUserRepository struct {
	state *memoryState
}

func (r *memoryUserRepository) CreateUser(_ context.Context, user *model.User) (*model.User, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	for _, existing := range r.state.data.users {
		if existing.Email == user.Email {
			return nil, ErrDuplicate
		}
	}
	if _, ok := r.state.data.users[user.ID]; ok {
		return nil, ErrDuplicate
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.state.data.users[user.ID] = *user

	created := *user
	return &created, nil
}

func (r *memoryUserRepository) GetUser(_ context.Context, id string) (*model.User, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	user, ok := r.state.data.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *memoryUserRepository) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	for _, user := range r.state.data.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryUserRepository) UpdateUser(_ context.Context, id string, params UpdateUserParams) (*model.User, error) {
	if params.empty() {
		return nil, errNoUserFieldsToUpdate
	}

	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	user, ok := r.state.data.users[id]
	if !ok {
		return nil, ErrNotFound
	}

	if params.PasswordHash != nil {
		user.PasswordHash = *params.PasswordHash
	}
	if params.Verified != nil {
		user.Verified = *params.Verified
	}
	user.UpdatedAt = time.Now()
	r.state.data.users[id] = user

	return &user, nil
}

type memoryTokenRepository struct {
	state *memoryState
	kind  model.TokenKind
}

func (r *memoryTokenRepository) tokens() map[string]model.Token {
	tokens, ok := r.state.data.tokens[r.kind]
	if !ok {
		tokens = map[string]model.Token{}
		r.state.data.tokens[r.kind] = tokens
	}
	return tokens
}

func (r *memoryTokenRepository) CreateToken(_ context.Context, token *model.Token) (*model.Token, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	tokens := r.tokens()
	for _, existing := range tokens {
		if existing.Token == token.Token {
			return nil, ErrDuplicate
		}
	}

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	tokens[token.ID] = *token

	created := *token
	return &created, nil
}

func (r *memoryTokenRepository) GetToken(_ context.Context, value string) (*model.Token, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	for _, token := range r.tokens() {
		if token.Token == value {
			return &token, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryTokenRepository) GetLatestTokenByIdentifier(_ context.Context, identifier string) (*model.Token, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	var latest *model.Token
	for _, token := range r.tokens() {
		if token.Identifier != identifier {
			continue
		}
		if latest == nil || token.CreatedAt.After(latest.CreatedAt) {
			t := token
			latest = &t
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (r *memoryTokenRepository) DeleteToken(_ context.Context, id string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	tokens := r.tokens()
	if _, ok := tokens[id]; !ok {
		return ErrNotFound
	}
	delete(tokens, id)
	return nil
}

func (r *memoryTokenRepository) DeleteTokensByIdentifier(_ context.Context, identifier string) (int64, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	var deleted int64
	tokens := r.tokens()
	for id, token := range tokens {
		if token.Identifier == identifier {
			delete(tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memoryTokenRepository) DeleteExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	var deleted int64
	tokens := r.tokens()
	for id, token := range tokens {
		if token.ExpiresAt.Before(now) {
			delete(tokens, id)
			deleted++
		}
	}
	return deleted, nil
}
