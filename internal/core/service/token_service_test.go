package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stackpoint/account-service/internal/core/domain"
)

func newTestTokenService(accounts *stubAccountRepo, tokens *stubTokenRepo) *TokenService {
	return NewTokenService(tokens, accounts, "test-secret", "accounts-test", 15*time.Minute, 24*time.Hour, 30*24*time.Hour)
}

func testAccount(id string) *domain.Account {
	return &domain.Account{
		ID:            id,
		Email:         id + "@example.com",
		Username:      id,
		SecurityStamp: "stamp-" + id,
		Roles:         []string{domain.RoleUser},
	}
}

func TestTokenService_AccessToken_RoundTrip(t *testing.T) {
	svc := newTestTokenService(newStubAccountRepo(), newStubTokenRepo())
	account := testAccount("alice")

	signed, err := svc.IssueAccessToken(account)
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}

	claims, err := svc.ParseAccessToken(signed)
	if err != nil {
		t.Fatalf("ParseAccessToken returned error: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.SecurityStamp != "stamp-alice" {
		t.Fatalf("unexpected stamp: %s", claims.SecurityStamp)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != domain.RoleUser {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
}

func TestTokenService_AccessToken_WrongSecret(t *testing.T) {
	svc := newTestTokenService(newStubAccountRepo(), newStubTokenRepo())
	other := NewTokenService(newStubTokenRepo(), newStubAccountRepo(), "other-secret", "accounts-test", 0, 0, 0)

	signed, err := svc.IssueAccessToken(testAccount("alice"))
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}
	if _, err := other.ParseAccessToken(signed); err == nil {
		t.Fatal("expected parse to fail under a different secret")
	}
}

func TestTokenService_Refresh_RoundTrip(t *testing.T) {
	accounts := newStubAccountRepo()
	tokens := newStubTokenRepo()
	svc := newTestTokenService(accounts, tokens)

	account := testAccount("alice")
	accounts.add(account)

	plaintext, record, err := svc.IssueRefreshToken(context.Background(), account, false)
	if err != nil {
		t.Fatalf("IssueRefreshToken returned error: %v", err)
	}
	if record.TokenHash == plaintext {
		t.Fatal("plaintext must not be stored")
	}

	got, persistent, err := svc.RedeemRefreshToken(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("RedeemRefreshToken returned error: %v", err)
	}
	if got.ID != "alice" {
		t.Fatalf("unexpected account: %s", got.ID)
	}
	if persistent {
		t.Fatal("expected session-scoped token")
	}
}

func TestTokenService_Refresh_PersistenceInherited(t *testing.T) {
	accounts := newStubAccountRepo()
	svc := newTestTokenService(accounts, newStubTokenRepo())

	account := testAccount("alice")
	accounts.add(account)

	plaintext, record, err := svc.IssueRefreshToken(context.Background(), account, true)
	if err != nil {
		t.Fatalf("IssueRefreshToken returned error: %v", err)
	}
	if !record.IsPersistent {
		t.Fatal("expected persistent token")
	}

	_, persistent, err := svc.RedeemRefreshToken(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("RedeemRefreshToken returned error: %v", err)
	}
	if !persistent {
		t.Fatal("persistence flag must survive redemption")
	}
}

func TestTokenService_Refresh_SecondUseFails(t *testing.T) {
	accounts := newStubAccountRepo()
	svc := newTestTokenService(accounts, newStubTokenRepo())

	account := testAccount("alice")
	accounts.add(account)

	plaintext, _, err := svc.IssueRefreshToken(context.Background(), account, false)
	if err != nil {
		t.Fatalf("IssueRefreshToken returned error: %v", err)
	}
	if _, _, err := svc.RedeemRefreshToken(context.Background(), plaintext); err != nil {
		t.Fatalf("first redemption failed: %v", err)
	}
	if _, _, err := svc.RedeemRefreshToken(context.Background(), plaintext); !errors.Is(err, domain.ErrTokenAlreadyUsed) {
		t.Fatalf("expected ErrTokenAlreadyUsed, got %v", err)
	}
}

func TestTokenService_Refresh_ConcurrentSingleWinner(t *testing.T) {
	accounts := newStubAccountRepo()
	svc := newTestTokenService(accounts, newStubTokenRepo())

	account := testAccount("alice")
	accounts.add(account)

	plaintext, _, err := svc.IssueRefreshToken(context.Background(), account, false)
	if err != nil {
		t.Fatalf("IssueRefreshToken returned error: %v", err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.RedeemRefreshToken(context.Background(), plaintext)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful redemption, got %d", wins)
	}
}

func TestTokenService_Refresh_InvalidatedAfterRevokeAll(t *testing.T) {
	accounts := newStubAccountRepo()
	svc := newTestTokenService(accounts, newStubTokenRepo())

	account := testAccount("alice")
	accounts.add(account)

	plaintext, _, err := svc.IssueRefreshToken(context.Background(), account, false)
	if err != nil {
		t.Fatalf("IssueRefreshToken returned error: %v", err)
	}
	if err := svc.RevokeAllSessions(context.Background(), "alice"); err != nil {
		t.Fatalf("RevokeAllSessions returned error: %v", err)
	}
	if _, _, err := svc.RedeemRefreshToken(context.Background(), plaintext); !errors.Is(err, domain.ErrTokenInvalidated) {
		t.Fatalf("expected ErrTokenInvalidated, got %v", err)
	}
}

func TestTokenService_RevokeAllSessions_RotatesStamp(t *testing.T) {
	accounts := newStubAccountRepo()
	svc := newTestTokenService(accounts, newStubTokenRepo())

	account := testAccount("alice")
	accounts.add(account)

	if err := svc.RevokeAllSessions(context.Background(), "alice"); err != nil {
		t.Fatalf("RevokeAllSessions returned error: %v", err)
	}
	if got := accounts.get("alice"); got.SecurityStamp == "stamp-alice" {
		t.Fatal("expected security stamp rotation")
	}
}

func TestTokenService_Refresh_UnknownToken(t *testing.T) {
	svc := newTestTokenService(newStubAccountRepo(), newStubTokenRepo())
	if _, _, err := svc.RedeemRefreshToken(context.Background(), "never-issued"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}
