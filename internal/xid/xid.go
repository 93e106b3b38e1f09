package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a human-readable business ID such as SALE-20261017-3F9A1C2B.
func New(prefix string) string {
	id := uuid.New()
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", strings.ToUpper(prefix), time.Now().UTC().Format("20060102"), suffix)
}

// UUID returns a random RFC 4122 identifier for internal rows.
func UUID() string {
	return uuid.NewString()
}
