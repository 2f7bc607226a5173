package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/signonhq/signon/internal/idp"
)

func TestDetermineExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, Success},
		{"plain", errors.New("boom"), GeneralError},
		{"unavailable", idp.NewError(idp.CodeProviderUnavailable, "unreachable", nil), NetworkError},
		{"cancelled", idp.NewError(idp.CodeUserCancelled, "closed", nil), AuthError},
		{"duplicate", idp.NewError(idp.CodeDuplicateRequest, "busy", nil), AuthError},
		{"failure", idp.NewError(idp.CodeProviderFailure, "rejected", nil), AuthError},
		{"wrapped", fmt.Errorf("login: %w", idp.NewError(idp.CodeProviderUnavailable, "unreachable", nil)), NetworkError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetermineExitCode(tc.err); got != tc.want {
				t.Errorf("DetermineExitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
