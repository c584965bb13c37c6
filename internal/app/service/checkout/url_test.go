package checkout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriteRedirects(t *testing.T) {
	const base = "https://dogparkjp.com"
	cases := []struct {
		name        string
		success     string
		cancel      string
		wantSuccess string
		wantCancel  string
		wantErr     bool
	}{
		{
			name:        "foreign host is forced onto the trusted domain",
			success:     "https://evil.example/payment-confirmation",
			cancel:      "https://evil.example/checkout",
			wantSuccess: "https://dogparkjp.com/payment-confirmation?session_id={CHECKOUT_SESSION_ID}",
			wantCancel:  "https://dogparkjp.com/checkout",
		},
		{
			name:        "query string survives the rewrite",
			success:     "https://dogparkjp.com/done?from=cart",
			cancel:      "https://dogparkjp.com/cart",
			wantSuccess: "https://dogparkjp.com/done?from=cart&session_id={CHECKOUT_SESSION_ID}",
			wantCancel:  "https://dogparkjp.com/cart",
		},
		{
			name:        "relative path gets the trusted origin",
			success:     "/thanks",
			cancel:      "/cart",
			wantSuccess: "https://dogparkjp.com/thanks?session_id={CHECKOUT_SESSION_ID}",
			wantCancel:  "https://dogparkjp.com/cart",
		},
		{
			name:        "empty paths become root",
			success:     "",
			cancel:      "",
			wantSuccess: "https://dogparkjp.com/?session_id={CHECKOUT_SESSION_ID}",
			wantCancel:  "https://dogparkjp.com/",
		},
		{
			name:    "non-http scheme is rejected",
			success: "javascript:alert(1)",
			cancel:  "/cart",
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			success, cancel, err := rewriteRedirects(base, tc.success, tc.cancel)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantSuccess, success)
			require.Equal(t, tc.wantCancel, cancel)
		})
	}
}

func TestRewriteRedirectsMisconfiguredBase(t *testing.T) {
	_, _, err := rewriteRedirects("not-a-url", "/a", "/b")
	require.Error(t, err)
}
