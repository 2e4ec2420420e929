package indicator

import (
	"fmt"
	"strings"
)

// CatalogIntegrityError reports catalog data the engine cannot build on,
// such as two indicators sharing one relation key. It is a configuration
// data bug, not something a user can recover from.
type CatalogIntegrityError struct {
	Reason       string
	Key          *RelationKey
	IndicatorIDs []string
}

func (e *CatalogIntegrityError) Error() string {
	var b strings.Builder
	b.WriteString("catalog integrity: ")
	b.WriteString(e.Reason)
	if e.Key != nil {
		fmt.Fprintf(&b, " (key %s)", e.Key)
	}
	if len(e.IndicatorIDs) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.IndicatorIDs, ", "))
	}
	return b.String()
}

// RelationNotFoundError reports a missing global counterpart. The resolver
// logs it and skips the relation.
type RelationNotFoundError struct {
	IndicatorID string
	Key         RelationKey
}

func (e *RelationNotFoundError) Error() string {
	return fmt.Sprintf("relation not found: global %s for indicator %s", e.Key, e.IndicatorID)
}
