package token

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"consoleauth/internal/session/models"
)

// StoreContractSuite runs the shared Store contract against one backend.
type StoreContractSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
	store    Store
}

func (s *StoreContractSuite) SetupTest() {
	s.store = s.newStore(s.T())
}

func (s *StoreContractSuite) TestAbsentKeysAreZeroValues() {
	ctx := context.Background()
	at, err := s.store.AccessToken(ctx)
	s.Require().NoError(err)
	s.Empty(at)

	rt, err := s.store.RefreshToken(ctx)
	s.Require().NoError(err)
	s.Empty(rt)

	user, err := s.store.User(ctx)
	s.Require().NoError(err)
	s.Nil(user)
}

func (s *StoreContractSuite) TestRoundTrip() {
	ctx := context.Background()
	s.Require().NoError(SavePair(ctx, s.store, models.TokenPair{AccessToken: "at-1", RefreshToken: "rt-1"}))
	s.Require().NoError(s.store.SetUser(ctx, &models.User{ID: "u-1", Username: "alice"}))

	at, err := s.store.AccessToken(ctx)
	s.Require().NoError(err)
	s.Equal("at-1", at)

	rt, err := s.store.RefreshToken(ctx)
	s.Require().NoError(err)
	s.Equal("rt-1", rt)

	user, err := s.store.User(ctx)
	s.Require().NoError(err)
	s.Require().NotNil(user)
	s.Equal("alice", user.Username)
}

func (s *StoreContractSuite) TestRemoveSingleKey() {
	ctx := context.Background()
	s.Require().NoError(SavePair(ctx, s.store, models.TokenPair{AccessToken: "at-1", RefreshToken: "rt-1"}))
	s.Require().NoError(s.store.RemoveAccessToken(ctx))

	at, err := s.store.AccessToken(ctx)
	s.Require().NoError(err)
	s.Empty(at)

	rt, err := s.store.RefreshToken(ctx)
	s.Require().NoError(err)
	s.Equal("rt-1", rt, "other keys survive")
}

func (s *StoreContractSuite) TestClearRemovesEverything() {
	ctx := context.Background()
	s.Require().NoError(SavePair(ctx, s.store, models.TokenPair{AccessToken: "at-1", RefreshToken: "rt-1"}))
	s.Require().NoError(s.store.SetUser(ctx, &models.User{ID: "u-1"}))

	s.Require().NoError(s.store.Clear(ctx))
	s.Require().NoError(s.store.Clear(ctx), "clearing twice is fine")

	at, _ := s.store.AccessToken(ctx)
	rt, _ := s.store.RefreshToken(ctx)
	user, _ := s.store.User(ctx)
	s.Empty(at)
	s.Empty(rt)
	s.Nil(user)
}

func TestMemoryStoreContract(t *testing.T) {
	suite.Run(t, &StoreContractSuite{newStore: func(*testing.T) Store { return NewMemoryStore() }})
}

func TestFileStoreContract(t *testing.T) {
	suite.Run(t, &StoreContractSuite{newStore: func(t *testing.T) Store {
		fs, err := NewFileStore(t.TempDir())
		if err != nil {
			t.Fatalf("new file store: %v", err)
		}
		return fs
	}})
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.SetRefreshToken(ctx, "rt-persisted"); err != nil {
		t.Fatal(err)
	}

	second, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	rt, err := second.RefreshToken(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rt != "rt-persisted" {
		t.Fatalf("expected persisted refresh token, got %q", rt)
	}

	info, err := os.Stat(filepath.Join(dir, sessionFileName))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 session file, got %o", perm)
	}
}

func TestFileStore_CorruptDocument(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fs.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := fs.AccessToken(ctx); err == nil {
		t.Fatal("expected decode error for corrupt document")
	}
	if err := fs.SetAccessToken(ctx, "at-new"); err != nil {
		t.Fatalf("write over corrupt document: %v", err)
	}
	at, err := fs.AccessToken(ctx)
	if err != nil || at != "at-new" {
		t.Fatalf("expected at-new, got %q (%v)", at, err)
	}
}
