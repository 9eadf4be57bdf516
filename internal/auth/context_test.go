// ABOUTME: Tests for AuthContext propagation through context.Context
// ABOUTME: Covers round trip, absence and viewer access checks

package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	authCtx := &AuthContext{ViewerID: "alice", DisplayName: "Alice"}
	ctx := WithAuth(context.Background(), authCtx)

	got := FromContext(ctx)
	if got != authCtx {
		t.Fatalf("FromContext() = %v, want %v", got, authCtx)
	}
}

func TestFromContext_Missing(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %v, want nil", got)
	}
}

func TestAuthContext_CanView(t *testing.T) {
	authCtx := &AuthContext{ViewerID: "alice"}
	if !authCtx.CanView("alice") {
		t.Error("CanView(alice) = false, want true")
	}
	if authCtx.CanView("bob") {
		t.Error("CanView(bob) = true, want false")
	}

	var none *AuthContext
	if none.CanView("alice") {
		t.Error("nil AuthContext must not view anything")
	}
}
