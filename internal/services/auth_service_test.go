package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/go-portfolio-backend/internal/domain"
	"github.com/tbourn/go-portfolio-backend/internal/repo"
)

// ----- Fakes -----

type nilDB struct{ err error }

func (p nilDB) DB(context.Context) (*gorm.DB, error) { return nil, p.err }

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User // by username
	seq   int

	lookupErr error
	createErr error
	deleteN   int64
	deleteErr error

	createCalls int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*domain.User{}, deleteN: 1}
}

func (r *fakeUserRepo) add(t *testing.T, username, password string) *domain.User {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	r.seq++
	u := &domain.User{ID: "u" + string(rune('0'+r.seq)), Username: username, PasswordHash: string(h)}
	r.users[username] = u
	return u
}

func (r *fakeUserRepo) CreateUser(_ context.Context, _ *gorm.DB, username, hash string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.createErr != nil {
		return nil, r.createErr
	}
	if _, ok := r.users[username]; ok {
		return nil, repo.ErrDuplicate
	}
	u := &domain.User{ID: "new", Username: username, PasswordHash: hash}
	r.users[username] = u
	return u, nil
}

func (r *fakeUserRepo) GetUserByUsername(_ context.Context, _ *gorm.DB, username string) (*domain.User, error) {
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	if u, ok := r.users[username]; ok {
		return u, nil
	}
	return nil, repo.ErrNotFound
}

func (r *fakeUserRepo) UsernameExists(_ context.Context, _ *gorm.DB, username string) (bool, error) {
	if r.lookupErr != nil {
		return false, r.lookupErr
	}
	_, ok := r.users[username]
	return ok, nil
}

func (r *fakeUserRepo) DeleteUser(_ context.Context, _ *gorm.DB, _ string) (int64, error) {
	return r.deleteN, r.deleteErr
}

// ----- Tests -----

func TestNewAuthService_CostFallback(t *testing.T) {
	if s := NewAuthService(nilDB{}, newFakeUserRepo(), 2); s.BcryptCost != 10 {
		t.Fatalf("cost below minimum should fall back to 10, got %d", s.BcryptCost)
	}
	if s := NewAuthService(nilDB{}, newFakeUserRepo(), 12); s.BcryptCost != 12 {
		t.Fatalf("cost = %d", s.BcryptCost)
	}
}

func TestAuthenticate(t *testing.T) {
	r := newFakeUserRepo()
	alice := r.add(t, "alice", "correct-horse")
	s := NewAuthService(nilDB{}, r, bcrypt.MinCost)
	ctx := context.Background()

	u, err := s.Authenticate(ctx, "alice", "correct-horse")
	if err != nil || u.ID != alice.ID {
		t.Fatalf("Authenticate = (%v, %v)", u, err)
	}

	cases := []struct {
		name, user, pass string
		want             error
	}{
		{"unknown user", "bob", "whatever", ErrUnknownUser},
		{"wrong password", "alice", "nope", ErrIncorrectPassword},
		{"case sensitive username", "Alice", "correct-horse", ErrUnknownUser},
		{"missing username", "", "x", ErrMissingCredentials},
		{"missing password", "alice", "", ErrMissingCredentials},
	}
	for _, tc := range cases {
		if _, err := s.Authenticate(ctx, tc.user, tc.pass); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v; want %v", tc.name, err, tc.want)
		}
	}
}

func TestAuthenticate_InfraErrors(t *testing.T) {
	r := newFakeUserRepo()
	r.users["broken"] = &domain.User{ID: "b", Username: "broken", PasswordHash: "not-a-hash"}
	s := NewAuthService(nilDB{}, r, bcrypt.MinCost)

	_, err := s.Authenticate(context.Background(), "broken", "pw")
	if err == nil || errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("malformed hash must not look like a bad password: %v", err)
	}

	r.lookupErr = errors.New("db down")
	if _, err := s.Authenticate(context.Background(), "broken", "pw"); err == nil || errors.Is(err, ErrUnknownUser) {
		t.Fatalf("lookup failure surfaced as %v", err)
	}

	s = NewAuthService(nilDB{err: errors.New("no db")}, r, bcrypt.MinCost)
	if _, err := s.Authenticate(context.Background(), "x", "y"); err == nil {
		t.Fatalf("expected db error")
	}
}

func TestRegister_ValidationOrder(t *testing.T) {
	r := newFakeUserRepo()
	r.add(t, "taken", "password1")
	s := NewAuthService(nilDB{}, r, bcrypt.MinCost)

	cases := []struct {
		name         string
		user, p1, p2 string
		want         string
	}{
		{"no username beats everything", "", "", "x", MsgUsernameRequired},
		{"no password", "ab", "", "", MsgPasswordRequired},
		{"mismatch before uniqueness", "taken", "a", "b", MsgPasswordMismatch},
		{"taken before length", "taken", "a", "a", MsgUsernameTaken},
		{"short username", "a", "secret1", "secret1", MsgUsernameShort},
		{"short username before short password", "a", "x", "x", MsgUsernameShort},
		{"short password", "ab", "secret", "secret", MsgPasswordShort},
		{"password over bcrypt limit", "ab", strings.Repeat("p", 73), strings.Repeat("p", 73), MsgPasswordLong},
	}
	for _, tc := range cases {
		_, err := s.Register(context.Background(), tc.user, tc.p1, tc.p2)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Msg != tc.want {
			t.Errorf("%s: err = %v; want %q", tc.name, err, tc.want)
		}
	}
	if r.createCalls != 0 {
		t.Fatalf("no insert expected, got %d", r.createCalls)
	}
}

func TestRegister_Success(t *testing.T) {
	r := newFakeUserRepo()
	s := NewAuthService(nilDB{}, r, bcrypt.MinCost)

	u, err := s.Register(context.Background(), "alice", "secret12", "secret12")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Username != "alice" || u.PasswordHash == "secret12" {
		t.Fatalf("unexpected user %+v", u)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret12")) != nil {
		t.Fatalf("stored hash does not verify")
	}
	if cost, _ := bcrypt.Cost([]byte(u.PasswordHash)); cost != bcrypt.MinCost {
		t.Fatalf("cost = %d", cost)
	}
}

func TestRegister_UniqueIndexIsAuthority(t *testing.T) {
	r := newFakeUserRepo()
	s := NewAuthService(nilDB{}, r, bcrypt.MinCost)
	r.createErr = repo.ErrDuplicate

	_, err := s.Register(context.Background(), "alice", "secret12", "secret12")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Msg != MsgUsernameTaken {
		t.Fatalf("constraint violation should read as taken: %v", err)
	}

	r.createErr = errors.New("disk full")
	_, err = s.Register(context.Background(), "alice", "secret12", "secret12")
	if err == nil || errors.As(err, &ve) {
		t.Fatalf("infra error must not be a validation error: %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	r := newFakeUserRepo()
	s := NewAuthService(nilDB{}, r, bcrypt.MinCost)

	if err := s.DeleteAccount(context.Background(), "u1"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	r.deleteN = 0
	if err := s.DeleteAccount(context.Background(), "u1"); !errors.Is(err, ErrAccountNotDeleted) {
		t.Fatalf("err = %v", err)
	}
	r.deleteErr = errors.New("boom")
	if err := s.DeleteAccount(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error")
	}
}
