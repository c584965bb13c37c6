package checkout

import (
	"fmt"
	"net/url"
	"strings"
)

// sessionIDPlaceholder is substituted by the gateway with the real session id
// on redirect.
const sessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

// rewriteRedirects forces both redirect targets onto the trusted base domain,
// keeping only the caller's path and query, and appends the session id
// placeholder to the success URL. Caller URLs are never used verbatim: this
// closes the open-redirect hole and satisfies the gateway's URL-format rules
// at the same time.
func rewriteRedirects(trustedBase, successRaw, cancelRaw string) (string, string, error) {
	successURL, err := rewriteOne(trustedBase, successRaw)
	if err != nil {
		return "", "", fmt.Errorf("invalid success_url: %w", err)
	}
	cancelURL, err := rewriteOne(trustedBase, cancelRaw)
	if err != nil {
		return "", "", fmt.Errorf("invalid cancel_url: %w", err)
	}

	if strings.Contains(successURL, "?") {
		successURL += "&session_id=" + sessionIDPlaceholder
	} else {
		successURL += "?session_id=" + sessionIDPlaceholder
	}
	return successURL, cancelURL, nil
}

func rewriteOne(trustedBase, raw string) (string, error) {
	base, err := url.Parse(trustedBase)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("trusted base URL is misconfigured")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	rewritten := url.URL{
		Scheme:   base.Scheme,
		Host:     base.Host,
		Path:     u.Path,
		RawQuery: u.RawQuery,
	}
	if rewritten.Path == "" {
		rewritten.Path = "/"
	}
	return rewritten.String(), nil
}
