package network

import (
	"encoding/json"
)

// Message é o envelope padrão para toda a comunicação.
// Ele contém um tipo para roteamento e um payload com os dados.
// As structs tag como json:"type" serve para manter a convenção de cada linguagem
type Message struct {
	Type    string          `json:"type"`    // Ex: "move", "acceptGame", "error"
	Payload json.RawMessage `json:"payload"` // Dados específicos, mantidos em formato JSON bruto para decodificação posterior.
}

// Eventos de protocolo que os clientes enviam. O roteador do handler só
// conhece este conjunto fechado.
const (
	EventCreate         = "create"
	EventCancel         = "cancel"
	EventGetGameDetails = "getGameDetails"
	EventAcceptGame     = "acceptGame"
	EventMove           = "move"
	EventOfferDraw      = "offerDraw"
	EventAcceptDraw     = "acceptDraw"
	EventResign         = "resign"
	EventFlag           = "flag"
	EventOfferRematch   = "offerRematch"
	EventAcceptRematch  = "acceptRematch"
	EventExit           = "exit"
)
