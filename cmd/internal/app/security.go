package app

import (
	"errors"
	"fmt"

	"github.com/dwbrown115/GameServer/cmd/security/token"
)

// KeyWrapperFromConfig resolves the record-key wrapper and enforces the
// GS_REQUIRE_KEY_WRAP policy. Without the policy a missing KEK falls back
// to storing keys as-is; a malformed KEK is always fatal.
func KeyWrapperFromConfig(cfg Config) (token.KeyWrapper, error) {
	w, err := token.KeyWrapperFromEnv()
	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, token.ErrWrapKeyMissing):
		if cfg.RequireKeyWrap {
			return token.KeyWrapper{}, fmt.Errorf("security policy: GS_REQUIRE_KEY_WRAP=true but %s is missing", token.WrapKeyEnv)
		}
		return token.KeyWrapper{}, nil
	case errors.Is(err, token.ErrWrapKeyInvalid):
		return token.KeyWrapper{}, fmt.Errorf("security policy: %s must be 64 hex characters", token.WrapKeyEnv)
	default:
		return token.KeyWrapper{}, err
	}
}
