package surface

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/benthamhq/bentham/pkg/costs"
	"github.com/benthamhq/bentham/pkg/types"
)

// Surface kinds understood by the registry
const (
	KindRESTChat = "restchat"
	KindEcho     = "echo"
)

// Definition declares one surface in configuration. The registry turns
// definitions into adapter factories at process start.
type Definition struct {
	ID        string        `json:"id" yaml:"id"`
	Kind      string        `json:"kind" yaml:"kind"`
	BaseURL   string        `json:"baseUrl" yaml:"baseUrl"`
	Model     string        `json:"model" yaml:"model"`
	APIKeyEnv string        `json:"apiKeyEnv" yaml:"apiKeyEnv"` // Env var holding the upstream credential
	TimeoutMs int64         `json:"timeoutMs" yaml:"timeoutMs"` // Per-call ceiling, 0 = none
	Pricing   costs.Pricing `json:"pricing" yaml:"pricing"`
}

// Message is one turn of conversation history
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one prompt execution against a surface
type Request struct {
	Query        string
	Model        string // Overrides the surface's default model when set
	SystemPrompt string
	History      []Message
	Temperature  *float64
	MaxTokens    int
	Location     *types.Location
	Evidence     types.EvidenceLevel
	SessionID    string
	UserAgent    string
	Options      map[string]interface{} // Opaque per-surface options from the manifest
}

// Response is a successfully captured answer
type Response struct {
	Text      string
	Citations []types.Citation
	TokensIn  int
	TokensOut int
	TTFBMs    int64
	Raw       json.RawMessage // Populated only at evidence level "full"
}

// Error is a classified adapter failure
type Error struct {
	Code    types.ErrorCode
	Message string
}

// NewError creates a classified adapter failure
func NewError(code types.ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Adapter executes prompts against one AI surface
type Adapter interface {
	// Query executes one prompt. Failures are *Error values carrying a
	// taxonomy code.
	Query(ctx context.Context, req *Request) (*Response, error)

	// HealthCheck probes the surface without executing a prompt
	HealthCheck(ctx context.Context) error

	// Close releases any session resources held by the adapter
	Close() error
}
