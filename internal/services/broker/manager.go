// Package broker é o dono da conexão NATS do processo. Ele retransmite
// falhas de handler e confirmações de liquidação para as outras instâncias.
package broker

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Tópicos publicados pelo servidor.
const (
	TopicFault      = "dechecs.fault"
	TopicSettlement = "dechecs.settlement"
)

// Manager mantém uma única conexão NATS pelo tempo de vida do processo.
type Manager struct {
	nc  *nats.Conn
	log *zap.SugaredLogger
}

// Connect abre a conexão com o broker. A reconexão fica por conta do
// cliente NATS.
func Connect(url string, log *zap.SugaredLogger) (*Manager, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	log.Infof("[Broker] Conectado ao NATS em %s", url)
	return &Manager{nc: nc, log: log}, nil
}

// Publish serializa o payload e publica no tópico. O cliente NATS é seguro
// para uso concorrente, então não há serialização extra aqui.
func (m *Manager) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.nc.Publish(topic, data)
}

// Close encerra a conexão somente se ela ainda estiver aberta. Erros aqui
// são de shutdown e não devem impedir a saída do processo.
func (m *Manager) Close() {
	if m.nc == nil || m.nc.IsClosed() {
		return
	}
	if err := m.nc.Drain(); err != nil {
		m.log.Warnf("[Broker] Erro ao drenar conexão NATS: %v", err)
		m.nc.Close()
	}
}
