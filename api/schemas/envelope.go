package schemas

// Envelope types used on the cross-frame relay.
const (
	EnvelopeCommand  = "command"
	EnvelopeResponse = "response"
)

// CommandPayload is the body of a relayed command.
type CommandPayload struct {
	Command CommandName    `json:"command"`
	Params  map[string]any `json:"params"`
}

// CommandEnvelope is posted from the embedding page into the inner content
// context.
type CommandEnvelope struct {
	Type    string         `json:"type"`
	ID      string         `json:"id"`
	Payload CommandPayload `json:"payload"`
}

// NewCommandEnvelope wraps cmd under the given correlation ID.
func NewCommandEnvelope(id string, cmd Command) CommandEnvelope {
	params := cmd.Params
	if params == nil {
		params = map[string]any{}
	}
	return CommandEnvelope{
		Type:    EnvelopeCommand,
		ID:      id,
		Payload: CommandPayload{Command: cmd.Name, Params: params},
	}
}

// ResponseEnvelope is posted back by the inner content context. The ID must
// round-trip unchanged; anything else is foreign traffic.
type ResponseEnvelope struct {
	Type    string  `json:"type"`
	ID      string  `json:"id"`
	Payload Outcome `json:"payload"`
}

// IsResponse reports whether the envelope is shaped like a relay response.
func (e ResponseEnvelope) IsResponse() bool {
	return e.Type == EnvelopeResponse && e.ID != ""
}
