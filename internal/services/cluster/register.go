package cluster

import (
	"fmt"
	"os"

	consul "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Register registra o servidor de sessão no Consul e devolve a função de
// desregistro para o desligamento gracioso. O ID é derivado do hostname,
// então múltiplas instâncias do mesmo serviço convivem no catálogo.
func Register(client *consul.Client, serviceName string, servicePort, healthPort int, log *zap.SugaredLogger) (func(), error) {
	hostname := os.Getenv("HOSTNAME")
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	serviceID := fmt.Sprintf("%s-%s", serviceName, hostname)

	registration := &consul.AgentServiceRegistration{
		ID:   serviceID,
		Name: serviceName,
		Port: servicePort,
		// Sem Address: o agente usa o IP do contêiner que registra, e o
		// hostname do check é resolvível por DNS dentro da rede.
		Check: &consul.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/healthz", hostname, healthPort),
			Timeout:                        "5s",
			Interval:                       "10s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}

	if err := client.Agent().ServiceRegister(registration); err != nil {
		return nil, fmt.Errorf("falha ao registrar serviço no Consul: %w", err)
	}
	log.Infof("Serviço '%s' registrado no Consul com ID: %s", serviceName, serviceID)

	return func() {
		if err := client.Agent().ServiceDeregister(serviceID); err != nil {
			log.Warnf("Falha ao desregistrar serviço %s: %v", serviceID, err)
		}
	}, nil
}
