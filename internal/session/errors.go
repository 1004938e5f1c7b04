package session

import (
	"errors"

	"dechecs/internal/registry"
	"dechecs/internal/rules"
)

// Erros esperados, causados pelo usuário. Sempre viram um evento "error"
// escopado à conexão de origem; nunca derrubam um handler.
var (
	ErrNotYourTurn       = errors.New("not your turn")
	ErrGameNotInProgress = errors.New("game is not in progress")
	ErrNotCancellable    = errors.New("game cannot be cancelled")
	ErrInvalidState      = errors.New("action not valid in the current state")
	ErrNoOffer           = errors.New("no matching offer to accept")
	ErrAlreadyInGame     = errors.New("connection already has an active game")
	ErrBadPayload        = errors.New("malformed payload")
)

// isExpected separa erros de protocolo (usuário) de falhas reais. Só as
// falhas reais são retransmitidas para o broker.
func isExpected(err error) bool {
	for _, expected := range []error{
		ErrNotYourTurn,
		ErrGameNotInProgress,
		ErrNotCancellable,
		ErrInvalidState,
		ErrNoOffer,
		ErrAlreadyInGame,
		ErrBadPayload,
		registry.ErrNotFound,
		rules.ErrIllegalMove,
	} {
		if errors.Is(err, expected) {
			return true
		}
	}
	return false
}
