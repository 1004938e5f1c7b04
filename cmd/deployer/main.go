// Job de deploy do contrato de apostas. Roda uma vez na subida do
// ambiente: publica o contrato, espera a mineração e grava o endereço no
// KV do Consul para os servidores de sessão lerem.
package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	consul "github.com/hashicorp/consul/api"

	"dechecs/internal/ledger"
)

const (
	defaultEthURL     = "http://ganache:8545"
	defaultConsulAddr = "consul:8500"
	consulKey         = "dechecs/config/contract_address"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log.Println("[Deployer] Iniciando job de deploy do contrato de apostas...")

	ethURL := envOr("ETH_NODE_URL", defaultEthURL)
	privateKeyHex := os.Getenv("DEPLOYER_PRIVATE_KEY")
	if privateKeyHex == "" {
		log.Fatal("Fatal: DEPLOYER_PRIVATE_KEY é obrigatória")
	}
	bytecodeHex := os.Getenv("WAGERS_BYTECODE")
	if bytecodeHex == "" {
		// O artefato compilado pode vir montado como arquivo no contêiner.
		raw, err := os.ReadFile(envOr("WAGERS_BYTECODE_FILE", "/contracts/wagers.bin"))
		if err != nil {
			log.Fatalf("Fatal: bytecode do contrato indisponível: %v", err)
		}
		bytecodeHex = strings.TrimSpace(string(raw))
	}

	// Conexão com o nó, com retry: o job costuma subir junto com a chain.
	var client *ethclient.Client
	var err error
	for i := 0; i < 30; i++ {
		client, err = ethclient.Dial(ethURL)
		if err == nil {
			if _, err = client.ChainID(context.Background()); err == nil {
				break
			}
		}
		log.Printf("[Deployer] Aguardando nó Ethereum... (%v)", err)
		time.Sleep(time.Second)
	}
	if err != nil {
		log.Fatalf("Fatal: nó Ethereum inalcançável: %v", err)
	}

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		log.Fatalf("Fatal: chave privada inválida: %v", err)
	}
	chainID, err := client.ChainID(context.Background())
	if err != nil {
		log.Fatalf("Fatal: falha ao ler chain ID: %v", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		log.Fatalf("Fatal: falha ao criar transactor: %v", err)
	}
	auth.GasLimit = 3_000_000

	parsed, err := abi.JSON(strings.NewReader(ledger.WagersABI))
	if err != nil {
		log.Fatalf("Fatal: ABI do contrato inválida: %v", err)
	}

	log.Println("[Deployer] Enviando transação de criação do contrato...")
	addr, tx, _, err := bind.DeployContract(auth, parsed, common.FromHex(bytecodeHex), client)
	if err != nil {
		log.Fatalf("Fatal: falha no deploy: %v", err)
	}
	log.Printf("[Deployer] Deploy enviado. Tx: %s", tx.Hash().Hex())
	log.Printf("[Deployer] Endereço do contrato: %s", addr.Hex())

	if _, err := bind.WaitMined(context.Background(), client, tx); err != nil {
		log.Fatalf("Fatal: erro na mineração do contrato: %v", err)
	}
	log.Println("[Deployer] Contrato minerado e confirmado.")

	consulConfig := consul.DefaultConfig()
	consulConfig.Address = envOr("CONSUL_HTTP_ADDR", defaultConsulAddr)
	consulClient, err := consul.NewClient(consulConfig)
	if err != nil {
		log.Fatalf("Fatal: erro ao criar cliente Consul: %v", err)
	}

	// Retry no Consul: ele pode estar elegendo líder.
	for i := 0; i < 30; i++ {
		kv := &consul.KVPair{Key: consulKey, Value: []byte(addr.Hex())}
		if _, err = consulClient.KV().Put(kv, nil); err == nil {
			log.Printf("[Deployer] Endereço salvo no Consul em %s", consulKey)
			return
		}
		log.Printf("[Deployer] Aguardando Consul... (%v)", err)
		time.Sleep(time.Second)
	}
	log.Fatal("Fatal: timeout tentando salvar no Consul")
}
