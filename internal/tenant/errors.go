package tenant

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vs-ai-ds/hms-backend/internal/model"
)

var (
	// ErrNestedScope is returned when Run is called while the context
	// is already bound to a tenant schema.
	ErrNestedScope = errors.New("tenant scope already bound for this request")

	// ErrInvalidSchemaName is returned when a handle carries a schema
	// name that does not match the provisioning pattern.
	ErrInvalidSchemaName = errors.New("invalid tenant schema name")
)

// UnavailableError reports a tenant that exists but may not serve
// clinical traffic in its current lifecycle state.
type UnavailableError struct {
	TenantID string
	Status   model.TenantStatus
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("tenant is %s", strings.ToLower(string(e.Status)))
}

// IsUnavailable reports whether err carries an UnavailableError.
func IsUnavailable(err error) (*UnavailableError, bool) {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
