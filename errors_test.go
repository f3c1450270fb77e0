package riskAuth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrEthical07/riskAuth/geo"
	"github.com/MrEthical07/riskAuth/internal/rate"
	"github.com/MrEthical07/riskAuth/jwt"
	"github.com/MrEthical07/riskAuth/mfa"
	"github.com/MrEthical07/riskAuth/session"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{nil, nil},
		{ErrAccountLocked, ErrAccountLocked},
		{fmt.Errorf("login: %w", ErrInvalidCaptcha), ErrInvalidCaptcha},
		{fmt.Errorf("%w: script", rate.ErrRateLimited), ErrRateLimited},
		{mfa.ErrRateLimited, ErrRateLimited},
		{session.ErrSessionNotFound, ErrTokenExpired},
		{session.ErrSessionExpired, ErrTokenExpired},
		{jwt.ErrTokenExpired, ErrTokenExpired},
		{fmt.Errorf("%w: bad kid", jwt.ErrTokenMalformed), ErrTokenInvalid},
		{session.ErrSessionRevoked, ErrTokenRevoked},
		{session.ErrRefreshReuse, ErrTokenRevoked},
		{mfa.ErrInvalidCode, ErrInvalidMFAToken},
		{mfa.ErrNoPendingEnrollment, ErrMFANotEnrolled},
		{geo.ErrLookupUnavailable, ErrGeoLookupUnavailable},
		{fmt.Errorf("%w: dial tcp", session.ErrRedisUnavailable), ErrUnavailable},
		{context.DeadlineExceeded, ErrUnavailable},
		{errors.New("boom"), ErrUnavailable},
	}

	for _, tc := range tests {
		if got := Classify(tc.in); got != tc.want {
			t.Fatalf("Classify(%v): expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

func TestEngineErrorsStayInTaxonomy(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := requestCtx()

	errs := []error{}
	_, err := f.engine.Authenticate(ctx, AuthenticateRequest{Username: "alice", Password: "wrong-password"})
	errs = append(errs, err)
	_, err = f.engine.Refresh(ctx, "bogus")
	errs = append(errs, err)
	_, err = f.engine.ValidateAccess(ctx, "bogus")
	errs = append(errs, err)
	errs = append(errs, f.engine.VerifyMFA(ctx, "u1", "999999"))

	for _, err := range errs {
		if err == nil {
			t.Fatal("expected an error")
		}
		if Classify(err) != err {
			t.Fatalf("%v is not a taxonomy error", err)
		}
	}
}

func TestAuditErrorCode(t *testing.T) {
	if got := auditErrorCode(fmt.Errorf("wrapped: %w", session.ErrRefreshReuse)); got != auditErrRefreshReuse {
		t.Fatalf("expected refresh_reuse, got %q", got)
	}
	if got := auditErrorCode(ErrUserNotFound); got != auditErrUserNotFound {
		t.Fatalf("expected user_not_found, got %q", got)
	}
	if got := auditErrorCode(nil); got != "" {
		t.Fatalf("expected empty code, got %q", got)
	}
}
