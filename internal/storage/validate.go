package storage

import (
	"encoding/json"

	"fintrack/internal/core"
)

type documentCheck func(userID string, body json.RawMessage) error

// checks holds the rule each collection's documents must satisfy before a
// raw write. The typed repository applies the same rules to its values.
var checks = map[string]documentCheck{
	CollTransactions:        checkAs(func(_ string, t core.Transaction) error { return t.Validate() }),
	CollCards:               checkAs(func(_ string, c core.Card) error { return c.Validate() }),
	CollReserves:            checkAs(func(_ string, r core.Reserve) error { return r.Validate() }),
	CollReserveTransactions: checkAs(func(_ string, rt core.ReserveTransaction) error { return rt.Validate() }),
	CollCategories:          checkAs(func(_ string, c core.Category) error { return c.Validate() }),
	CollPartnerships:        checkAs(func(userID string, p core.Partnership) error { return p.Validate(userID) }),
	CollSettings:            checkAs(func(_ string, s core.Settings) error { return s.Validate() }),
}

// ValidateDocument reports whether body is an acceptable document of
// collection for userID. Failures wrap core.ErrInvalidArgument.
func ValidateDocument(userID, collection string, body json.RawMessage) error {
	check, ok := checks[collection]
	if !ok {
		return core.InvalidArgument("unknown collection %q", collection)
	}
	return check(userID, body)
}

func checkAs[T any](fn func(userID string, v T) error) documentCheck {
	return func(userID string, body json.RawMessage) error {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return core.InvalidArgument("malformed document: %v", err)
		}
		return fn(userID, v)
	}
}
