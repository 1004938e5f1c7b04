// Package ledger expõe o binding do contrato de apostas. Mantido à mão
// sobre bind.BoundContract; a superfície é só o que o servidor chama:
// declareWinner, declareDraw e cancelGame.
package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// WagersABI cobre as funções de liquidação do contrato.
const WagersABI = `[
  {"type":"function","name":"declareWinner","stateMutability":"nonpayable","inputs":[{"name":"gameId","type":"string"},{"name":"winner","type":"address"}],"outputs":[]},
  {"type":"function","name":"declareDraw","stateMutability":"nonpayable","inputs":[{"name":"gameId","type":"string"}],"outputs":[]},
  {"type":"function","name":"cancelGame","stateMutability":"nonpayable","inputs":[{"name":"gameId","type":"string"}],"outputs":[]}
]`

// Wagers é o binding do contrato implantado.
type Wagers struct {
	contract *bind.BoundContract
}

// NewWagers vincula o contrato no endereço dado.
func NewWagers(address common.Address, backend bind.ContractBackend) (*Wagers, error) {
	parsed, err := abi.JSON(strings.NewReader(WagersABI))
	if err != nil {
		return nil, err
	}
	return &Wagers{
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// DeclareWinner registra o vencedor da partida e libera a aposta para ele.
func (w *Wagers) DeclareWinner(opts *bind.TransactOpts, gameID string, winner common.Address) (*types.Transaction, error) {
	return w.contract.Transact(opts, "declareWinner", gameID, winner)
}

// DeclareDraw registra o empate e devolve a aposta aos dois lados.
func (w *Wagers) DeclareDraw(opts *bind.TransactOpts, gameID string) (*types.Transaction, error) {
	return w.contract.Transact(opts, "declareDraw", gameID)
}

// CancelGame devolve a aposta do criador quando a partida é cancelada
// antes de ter oponente.
func (w *Wagers) CancelGame(opts *bind.TransactOpts, gameID string) (*types.Transaction, error) {
	return w.contract.Transact(opts, "cancelGame", gameID)
}
