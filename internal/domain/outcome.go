package domain

// ErrorKind classifies a failed dispatch.
type ErrorKind string

const (
	KindAuth          ErrorKind = "auth_error"
	KindRateLimit     ErrorKind = "rate_limit"
	KindAPI           ErrorKind = "api_error"
	KindTimeout       ErrorKind = "timeout"
	KindNetwork       ErrorKind = "network_error"
	KindConfiguration ErrorKind = "configuration_error"
	KindAllAPIsFailed ErrorKind = "all_apis_failed"
)

// AllErrorKinds lists every kind in a stable order.
var AllErrorKinds = []ErrorKind{
	KindAuth, KindRateLimit, KindAPI, KindTimeout, KindNetwork, KindConfiguration, KindAllAPIsFailed,
}

// Fixed user-facing failure messages.
const (
	MsgConfiguration = "OpenAI API key is not configured. Please set the OPENAI_API_KEY environment variable."
	MsgAllAPIsFailed = "All external AI services are currently unavailable. Please check your API key configuration or try again later."
)

// Outcome is the tagged result of a dispatch: either a reply or a classified
// failure. The zero value is not a valid outcome.
type Outcome struct {
	OK      bool      `json:"ok"`
	Reply   string    `json:"reply,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Success builds a successful outcome.
func Success(reply string) Outcome { return Outcome{OK: true, Reply: reply} }

// Failure builds a failed outcome.
func Failure(kind ErrorKind, message string) Outcome {
	return Outcome{Kind: kind, Message: message}
}

// Failed reports whether the outcome carries a failure.
func (o Outcome) Failed() bool { return !o.OK }

// Text returns the reply on success and the failure message otherwise.
func (o Outcome) Text() string {
	if o.OK {
		return o.Reply
	}
	return o.Message
}
