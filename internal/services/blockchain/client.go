// Package blockchain envolve o cliente do nó Ethereum: monta, assina,
// envia e confirma as transações de liquidação. É o único ponto em que a
// conclusão de uma partida se torna externamente irreversível.
package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"dechecs/internal/ledger"
)

// GasLimit é a margem fixa por transação de liquidação.
const GasLimit = 100_000

// SubmissionError é uma falha de rede/nó antes da inclusão. O operador
// pode tentar de novo.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("settlement submission: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

// RejectionError é uma transação revertida pelo contrato. Não adianta
// reenviar sem investigar.
type RejectionError struct {
	TxHash string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("settlement reverted: tx %s", e.TxHash)
}

// Client assina com a conta do servidor e fala com o contrato de apostas.
type Client struct {
	client   *ethclient.Client
	contract *ledger.Wagers
	auth     *bind.TransactOpts
	address  common.Address

	// Serializa a aquisição de nonce + envio. Sem isso, duas liquidações
	// concorrentes da mesma conta fariam o nó rejeitar por nonce repetido.
	// A espera pelo recibo acontece FORA deste lock.
	submitMu sync.Mutex

	log *zap.SugaredLogger
}

// Dial conecta ao nó com retry (o nó pode subir depois do servidor) e
// vincula o contrato.
func Dial(ctx context.Context, url, privateKeyHex, contractAddr string, log *zap.SugaredLogger) (*Client, error) {
	var client *ethclient.Client
	var err error

	log.Infof("[Blockchain] Tentando conectar ao nó em %s...", url)
	for i := 0; i < 10; i++ {
		client, err = ethclient.Dial(url)
		if err == nil {
			if _, err = client.ChainID(ctx); err == nil {
				break
			}
		}
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("timeout connecting to node: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, err
	}
	auth.GasLimit = GasLimit

	addr := common.HexToAddress(contractAddr)
	contract, err := ledger.NewWagers(addr, client)
	if err != nil {
		return nil, fmt.Errorf("bind failed: %w", err)
	}

	log.Infof("[Blockchain] Conectado. Contrato de apostas em %s", addr.Hex())
	return &Client{
		client:   client,
		contract: contract,
		auth:     auth,
		address:  addr,
		log:      log,
	}, nil
}

// DeclareWinner declara o vencedor da partida e bloqueia até o recibo.
func (c *Client) DeclareWinner(ctx context.Context, gameID, winnerAddr string) (string, error) {
	txHash, err := c.submit(ctx, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.DeclareWinner(opts, gameID, common.HexToAddress(winnerAddr))
	})
	if err == nil {
		c.log.Infof("[Blockchain] Vencedor declarado na partida %s. Tx: %s", gameID, txHash)
	}
	return txHash, err
}

// DeclareDraw declara empate na partida e bloqueia até o recibo.
func (c *Client) DeclareDraw(ctx context.Context, gameID string) (string, error) {
	txHash, err := c.submit(ctx, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.DeclareDraw(opts, gameID)
	})
	if err == nil {
		c.log.Infof("[Blockchain] Empate declarado na partida %s. Tx: %s", gameID, txHash)
	}
	return txHash, err
}

// Refund devolve a aposta do criador de uma partida cancelada.
func (c *Client) Refund(ctx context.Context, gameID string) (string, error) {
	txHash, err := c.submit(ctx, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.CancelGame(opts, gameID)
	})
	if err == nil {
		c.log.Infof("[Blockchain] Aposta devolvida na partida %s. Tx: %s", gameID, txHash)
	}
	return txHash, err
}

// submit busca o nonce imediatamente antes de assinar (evita rejeição por
// nonce velho sob chamadas concorrentes), envia e espera a mineração.
func (c *Client) submit(ctx context.Context, txFunc func(*bind.TransactOpts) (*types.Transaction, error)) (string, error) {
	c.submitMu.Lock()
	nonce, err := c.client.PendingNonceAt(ctx, c.auth.From)
	if err != nil {
		c.submitMu.Unlock()
		return "", &SubmissionError{Err: err}
	}
	c.auth.Nonce = big.NewInt(int64(nonce))
	c.auth.Context = ctx

	tx, err := txFunc(c.auth)
	c.submitMu.Unlock()
	if err != nil {
		return "", &SubmissionError{Err: err}
	}

	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	if receipt.Status == 0 {
		return "", &RejectionError{TxHash: tx.Hash().Hex()}
	}
	return tx.Hash().Hex(), nil
}
