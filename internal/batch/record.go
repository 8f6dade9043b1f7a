// Package batch encodes outbound translation request records and decodes
// inbound result records in the external pipeline's JSONL format.
package batch

// Wire constants for outbound records.
const (
	TargetMethod = "POST"
	TargetURL    = "/v1/chat/completions"

	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message in an outbound request body.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Body is the model invocation payload of an outbound record.
type Body struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// Request is one outbound translation request record.
type Request struct {
	CustomID string `json:"custom_id"`
	Method   string `json:"method"`
	URL      string `json:"url"`
	Body     Body   `json:"body"`
}

// NewRequest builds an outbound record for one assigned identifier, with
// the system message first and the user message second.
func NewRequest(id, model, systemPrompt, userPrompt string) Request {
	return Request{
		CustomID: id,
		Method:   TargetMethod,
		URL:      TargetURL,
		Body: Body{
			Model: model,
			Messages: []Message{
				{Role: RoleSystem, Content: systemPrompt},
				{Role: RoleUser, Content: userPrompt},
			},
		},
	}
}

// Choice is one completion choice in an inbound result body.
type Choice struct {
	Message Message `json:"message"`
}

// ResponseBody is the completion payload of an inbound record.
type ResponseBody struct {
	Choices []Choice `json:"choices"`
}

// Response wraps the completion payload of an inbound record.
type Response struct {
	Body ResponseBody `json:"body"`
}

// Result is one inbound result record in the shape the pipeline expects
// back from the model endpoint.
type Result struct {
	CustomID string   `json:"custom_id"`
	Response Response `json:"response"`
}

// NewResult builds an inbound record carrying one completion for the
// given identifier.
func NewResult(id, content string) Result {
	return Result{
		CustomID: id,
		Response: Response{
			Body: ResponseBody{
				Choices: []Choice{
					{Message: Message{Role: RoleAssistant, Content: content}},
				},
			},
		},
	}
}
