package overlap

import (
	"fmt"
	"strings"
)

// EmptyKeyDomainError reports a key with no eligible (non-null) records
// on one or both sides. Its statistics are reported as zero.
type EmptyKeyDomainError struct {
	Key   string
	Sides []string
}

func (e *EmptyKeyDomainError) Error() string {
	return fmt.Sprintf("key %q has no eligible records on side %s", e.Key, strings.Join(e.Sides, ","))
}
