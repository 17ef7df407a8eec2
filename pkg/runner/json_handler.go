package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/aretw0/doubtflow/pkg/domain"
)

// Event is one line written by the JSONHandler.
type Event struct {
	Type    string              `json:"type"` // message, signal or system
	Message *domain.ChatMessage `json:"message,omitempty"`
	Name    string              `json:"name,omitempty"`
	Args    map[string]any      `json:"args,omitempty"`
	Text    string              `json:"text,omitempty"`
}

// JSONHandler implements IOHandler over JSON Lines.
//
// Input lines may be a plain string, a JSON string, or an object
// {"optionId": "..."} / {"question": "..."}.
type JSONHandler struct {
	Reader   *bufio.Reader
	Encoder  *json.Encoder
	MaxInput int // bytes; zero uses MaxInputSize
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) Output(ctx context.Context, msgs []domain.ChatMessage) error {
	for i := range msgs {
		if err := h.Encoder.Encode(Event{Type: "message", Message: &msgs[i]}); err != nil {
			return err
		}
	}
	return nil
}

func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	text, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		return "", err
	}
	text = strings.TrimSpace(text)

	var in struct {
		OptionID string `json:"optionId"`
		Question string `json:"question"`
	}
	var str string
	switch {
	case json.Unmarshal([]byte(text), &str) == nil:
		text = str
	case json.Unmarshal([]byte(text), &in) == nil:
		if in.OptionID != "" {
			return CommandSelectPrefix + in.OptionID, nil
		}
		text = in.Question
	}

	return SanitizeInputLimit(text, inputLimit(h.MaxInput))
}

func (h *JSONHandler) Signal(ctx context.Context, name string, args map[string]any) error {
	return h.Encoder.Encode(Event{Type: "signal", Name: name, Args: args})
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(Event{Type: "system", Text: msg})
}
