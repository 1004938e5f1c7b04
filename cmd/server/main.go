package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dechecs/internal/network"
	"dechecs/internal/ratelimit"
	"dechecs/internal/registry"
	"dechecs/internal/rules"
	"dechecs/internal/services/blockchain"
	"dechecs/internal/services/broker"
	"dechecs/internal/services/cluster"
	"dechecs/internal/session"
	"dechecs/internal/stats"
)

// ============================================================================
// Constantes de Configuração Padrão
// ============================================================================
const (
	defaultServiceName = "dechecs-session"
	defaultServicePort = 8080
	defaultHealthPort  = 8080 // Por padrão, a mesma porta do serviço.
	defaultConsulAddr  = "consul:8500"
	defaultRedisAddr   = "redis:6379"
	defaultNatsURL     = "nats://nats:4222"
	defaultEthURL      = "ws://ganache:8545"

	defaultAdmissionCapacity = 100
	defaultAdmissionRefill   = 10
	defaultAdmissionInterval = time.Second
)

// Config armazena todas as configurações da aplicação.
type Config struct {
	ServiceName string
	ServicePort int
	HealthPort  int
	ConsulAddr  string

	RedisAddr    string
	NatsURL      string
	EthURL       string
	PrivateKey   string
	ContractAddr string

	AdmissionCapacity int
	AdmissionRefill   int
	AdmissionInterval time.Duration
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("formato de %s inválido: %w", key, err)
	}
	return n, nil
}

// loadConfig carrega a configuração a partir de variáveis de ambiente.
func loadConfig() (*Config, error) {
	cfg := &Config{
		ServiceName:       envOr("SESSION_SERVICE_NAME", defaultServiceName),
		ConsulAddr:        envOr("CONSUL_HTTP_ADDR", defaultConsulAddr),
		RedisAddr:         envOr("REDIS_ADDR", defaultRedisAddr),
		NatsURL:           envOr("NATS_URL", defaultNatsURL),
		EthURL:            envOr("ETH_NODE_URL", defaultEthURL),
		PrivateKey:        os.Getenv("ARBITER_PRIVATE_KEY"),
		ContractAddr:      os.Getenv("WAGERS_CONTRACT_ADDR"),
		AdmissionInterval: defaultAdmissionInterval,
	}
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("ARBITER_PRIVATE_KEY é obrigatória")
	}
	if cfg.ContractAddr == "" {
		return nil, fmt.Errorf("WAGERS_CONTRACT_ADDR é obrigatória")
	}

	var err error
	if cfg.ServicePort, err = envIntOr("SESSION_SERVICE_PORT", defaultServicePort); err != nil {
		return nil, err
	}
	if cfg.HealthPort, err = envIntOr("HEALTH_CHECK_PORT", defaultHealthPort); err != nil {
		return nil, err
	}
	if cfg.AdmissionCapacity, err = envIntOr("ADMISSION_CAPACITY", defaultAdmissionCapacity); err != nil {
		return nil, err
	}
	if cfg.AdmissionRefill, err = envIntOr("ADMISSION_REFILL", defaultAdmissionRefill); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	// Em dev o .env complementa o ambiente; em produção ele não existe.
	_ = godotenv.Load()

	zl, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Falha ao criar logger: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync()
	log := zl.Sugar()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Falha ao carregar configuração: %v", err)
	}
	log.Infof("Configuração carregada: ServiceName=%s, Port=%d, Consul=%s, Redis=%s, NATS=%s",
		cfg.ServiceName, cfg.ServicePort, cfg.ConsulAddr, cfg.RedisAddr, cfg.NatsURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Infraestrutura externa: Redis (registro), NATS (relay), Ethereum
	// (liquidação) e Consul (descoberta).
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Falha ao conectar no Redis (%s): %v", cfg.RedisAddr, err)
	}

	brokerMgr, err := broker.Connect(cfg.NatsURL, log)
	if err != nil {
		log.Fatalf("Falha ao conectar no NATS (%s): %v", cfg.NatsURL, err)
	}
	defer brokerMgr.Close()

	chain, err := blockchain.Dial(ctx, cfg.EthURL, cfg.PrivateKey, cfg.ContractAddr, log)
	if err != nil {
		log.Fatalf("Falha ao conectar no nó Ethereum (%s): %v", cfg.EthURL, err)
	}

	// Montagem da lógica de sessão.
	reg := registry.New(registry.NewRedisCache(rdb), log)
	gameCtl := session.NewGameController(reg, chain, brokerMgr, nil, log)
	playCtl := session.NewPlayController(reg, rules.NewEngine(), gameCtl, nil, log)
	handler := session.NewGameHandler(gameCtl, playCtl, brokerMgr, log)
	gameCtl.SetEmitter(handler)
	playCtl.SetEmitter(handler)

	limiter := ratelimit.NewTokenBucket(cfg.AdmissionCapacity, cfg.AdmissionRefill, cfg.AdmissionInterval)
	limiter.StartRefiller()
	defer limiter.StopRefiller()

	server := network.NewServer(handler, limiter, log)
	server.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.WSHandler)
	stats.NewRouter(reg, log).Mount(mux)

	// Registro no Consul, com desregistro garantido no desligamento.
	consulClient, err := cluster.NewConsulClient(cfg.ConsulAddr, log)
	if err != nil {
		log.Fatalf("Falha ao conectar no Consul: %v", err)
	}
	deregister, err := cluster.Register(consulClient, cfg.ServiceName, cfg.ServicePort, cfg.HealthPort, log)
	if err != nil {
		log.Fatalf("Falha ao registrar serviço no Consul: %v", err)
	}
	defer deregister()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", cfg.ServicePort),
		Handler: mux,
	}
	go func() {
		log.Infof("Servidor de sessão ouvindo em %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Servidor HTTP encerrou com erro: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Sinal de desligamento recebido, encerrando...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Desligamento do servidor HTTP falhou: %v", err)
	}

	// As partidas no cache pertencem a esta instância; um crash-restart
	// não deve ressuscitar sessões cujas conexões morreram.
	if err := reg.Clear(shutdownCtx); err != nil {
		log.Warnf("Falha ao limpar o registro de partidas: %v", err)
	}
	if err := rdb.Close(); err != nil {
		log.Warnf("Falha ao fechar conexão com o Redis: %v", err)
	}
	log.Info("Servidor de sessão encerrado")
}
