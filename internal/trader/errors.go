package trader

import (
	"errors"
	"fmt"

	"futures-ema-bot/internal/vault"
)

// Error kinds. Every error the trader package returns wraps exactly one of these.
var (
	// ErrConfiguration covers missing or invalid settings or credentials. Fatal to start.
	ErrConfiguration = errors.New("configuration error")
	// ErrDecryption means stored credentials are corrupt. Fatal to start.
	ErrDecryption = errors.New("decryption error")
	// ErrConnection covers stream and network failures. The bot reconnects.
	ErrConnection = errors.New("connection error")
	// ErrExecution covers failed order placement or cancellation. Not retried.
	ErrExecution = errors.New("execution error")
	// ErrState covers duplicate starts and stops of bots that are not running.
	ErrState = errors.New("state error")
)

func newError(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

func wrapError(kind error, op string, err error) error {
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}

// classifyVaultError maps credential lookup failures onto the error kinds.
func classifyVaultError(err error) error {
	switch {
	case errors.Is(err, vault.ErrDecryption):
		return wrapError(ErrDecryption, "resolve credentials", err)
	default:
		return wrapError(ErrConfiguration, "resolve credentials", err)
	}
}
