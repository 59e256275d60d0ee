package integrations

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gurubase/gurubase-go/internal/models"
)

// IntegrationError is the single error kind every vendor API failure is
// converted into. The vendor's own message is preserved verbatim so the
// operator can see what the remote side actually said.
type IntegrationError struct {
	Vendor     models.IntegrationType
	StatusCode int
	Msg        string
}

func (e *IntegrationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error (status %d): %s", e.Vendor, e.StatusCode, e.Msg)
	}
	return fmt.Sprintf("%s API error: %s", e.Vendor, e.Msg)
}

// credential failure markers across vendors. Slack reports these in the
// error field of an otherwise-200 response, others use HTTP 401.
var expiredTokenMarkers = []string{
	"token_expired",
	"invalid_auth",
	"not_authed",
	"token_revoked",
}

// IsCredentialExpired reports whether err is a vendor credential failure
// that a token refresh could fix. This is the only recoverable vendor
// error class.
func IsCredentialExpired(err error) bool {
	var ie *IntegrationError
	if !errors.As(err, &ie) {
		return false
	}
	if ie.StatusCode == 401 {
		return true
	}
	msg := strings.ToLower(ie.Msg)
	for _, marker := range expiredTokenMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
