package httpx

import (
	"net/http"
	"strings"

	"github.com/odyssey-erp/malimina/internal/shared"
)

// IdempotencyHeader carries the client supplied request key.
const IdempotencyHeader = "Idempotency-Key"

// Idempotent runs fn at most once per Idempotency-Key and module. The key is
// released when fn fails so the client may retry. Requests without the header
// always run.
func Idempotent(r *http.Request, keys shared.IdempotencyKeys, module string, fn func() error) error {
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key == "" || keys == nil {
		return fn()
	}
	key = module + ":" + key
	if err := keys.CheckAndInsert(r.Context(), key, module); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_ = keys.Delete(r.Context(), key)
		return err
	}
	return nil
}
