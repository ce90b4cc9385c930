package framework

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Upstream is a scriptable OpenAI-compatible chat endpoint. Each call
// pops the next scripted status; an empty script answers 200 with an
// echo of the prompt. Point a restchat surface definition at URL().
type Upstream struct {
	srv *httptest.Server

	mu     sync.Mutex
	script []int
	calls  int
}

// NewUpstream starts the stub endpoint
func NewUpstream() *Upstream {
	u := &Upstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(u.handle))
	return u
}

// Script queues HTTP statuses to answer with, in order. Use 200 for a
// successful chat completion.
func (u *Upstream) Script(statuses ...int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.script = append(u.script, statuses...)
}

// Calls reports how many requests the endpoint has served
func (u *Upstream) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

// URL is the base URL for a surface definition
func (u *Upstream) URL() string {
	return u.srv.URL
}

// Close shuts the endpoint down
func (u *Upstream) Close() {
	u.srv.Close()
}

func (u *Upstream) handle(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.calls++
	status := http.StatusOK
	if len(u.script) > 0 {
		status = u.script[0]
		u.script = u.script[1:]
	}
	u.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].Content
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": fmt.Sprintf("answer to: %s", prompt)}},
		},
		"usage": map[string]int{
			"prompt_tokens":     12,
			"completion_tokens": 48,
			"total_tokens":      60,
		},
	})
}
