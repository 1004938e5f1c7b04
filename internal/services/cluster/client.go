package cluster

import (
	"fmt"
	"strings"

	consul "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// NewConsulClient cria um cliente Consul, tentando uma lista de endereços
// separados por vírgula até encontrar um agente saudável com líder.
func NewConsulClient(addrs string, log *zap.SugaredLogger) (*consul.Client, error) {
	for _, node := range strings.Split(addrs, ",") {
		node = strings.TrimSpace(node)
		cfg := consul.DefaultConfig()
		cfg.Address = node

		client, err := consul.NewClient(cfg)
		if err != nil {
			log.Warnf("Falha ao criar cliente Consul para %s: %v", node, err)
			continue
		}

		if _, err := client.Status().Leader(); err != nil {
			log.Warnf("Nó Consul %s não respondeu ao health check: %v", node, err)
			continue
		}

		log.Infof("Conectado ao nó Consul: %s", node)
		return client, nil
	}

	return nil, fmt.Errorf("nenhum nó Consul disponível em: %s", addrs)
}
