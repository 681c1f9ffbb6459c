package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
)

func TestVerifier_IssueAndParse(t *testing.T) {
	t.Parallel()

	v := NewVerifier("secret")
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := v.Issue(Claims{Role: RoleCourier, SubjectID: 42, ExpiresAt: exp})

	c, err := v.Parse(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if c.Role != RoleCourier || c.SubjectID != 42 || !c.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected claims: %+v", c)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	t.Parallel()

	v := NewVerifier("secret")
	other := NewVerifier("other")
	future := time.Now().Add(time.Hour)

	cases := map[string]string{
		"not base64":    "%%%",
		"two parts":     base64.StdEncoding.EncodeToString([]byte("admin:1")),
		"wrong secret":  other.Issue(Claims{Role: RoleAdmin, ExpiresAt: future}),
		"expired":       v.Issue(Claims{Role: RoleAdmin, ExpiresAt: time.Now().Add(-time.Minute)}),
		"unknown role":  v.Issue(Claims{Role: "root", SubjectID: 1, ExpiresAt: future}),
		"courier no id": v.Issue(Claims{Role: RoleCourier, ExpiresAt: future}),
		"customer neg":  v.Issue(Claims{Role: RoleCustomer, SubjectID: -3, ExpiresAt: future}),
	}
	for name, token := range cases {
		if _, err := v.Parse(token); !errors.Is(err, apperr.ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestClaimsContext(t *testing.T) {
	t.Parallel()

	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("expected no claims")
	}
	ctx := WithClaims(context.Background(), Claims{Role: RoleAdmin})
	c, ok := FromContext(ctx)
	if !ok || c.Role != RoleAdmin {
		t.Fatalf("unexpected claims: %+v ok=%v", c, ok)
	}
}
