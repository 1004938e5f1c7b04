package network

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dechecs/internal/stats"
)

// Admission decide se uma conexão nova pode entrar. Implementado pelo
// token bucket do pacote ratelimit.
type Admission interface {
	ConsumeToken() bool
}

// Server é a estrutura principal do nosso servidor de rede.
// Ele gerencia um Hub e aplica o controle de admissão no upgrade.
type Server struct {
	hub       *Hub
	admission Admission
	log       *zap.SugaredLogger
}

// upgrader armazena as configurações para promover uma conexão HTTP para WebSocket.
var upgrader = websocket.Upgrader{
	// CheckOrigin permite controlar quais domínios podem se conectar.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// NewServer aceita um EventHandler para passá-lo ao Hub.
// Este é o ponto de injeção da lógica do jogo.
func NewServer(handler EventHandler, admission Admission, log *zap.SugaredLogger) *Server {
	return &Server{
		hub:       NewHub(handler),
		admission: admission,
		log:       log,
	}
}

// Run inicia a goroutine do Hub.
func (s *Server) Run() {
	go s.hub.Run()
}

// WSHandler é o ponto de entrada para conexões de clientes: promove a
// requisição HTTP para WebSocket e submete a conexão à admissão.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("Erro ao fazer upgrade da conexão: %v", err)
		return
	}

	// Admissão: sem token disponível, o cliente recebe UM aviso de erro e
	// é desconectado. Isso é uma rejeição normal, não uma falha.
	if !s.admission.ConsumeToken() {
		s.log.Warnf("Limite de conexões excedido. Desconectando %s", conn.RemoteAddr())
		stats.AdmissionRejectedTotal.Inc()
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		conn.WriteJSON(rejectionMessage())
		conn.Close()
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		hub:  s.hub,
		send: make(chan Message, 256),
		log:  s.log,
	}

	client.hub.register <- client

	go client.writeLoop()
	go client.readLoop()
}

func rejectionMessage() Message {
	payload, _ := json.Marshal(map[string]string{"error": "Connection limit exceeded"})
	return Message{Type: "error", Payload: payload}
}
