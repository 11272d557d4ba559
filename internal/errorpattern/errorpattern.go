// Package errorpattern extracts a structured error identity from a raw DLQ
// message body, tolerating whatever shape of JSON (or non-JSON) the
// upstream producer happened to emit.
package errorpattern

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/dlqrecover/pipeline/internal/model"
)

const (
	maxMessageLen = 500
	maxStackLines = 3
)

type nestedError struct {
	Name    string      `json:"name"`
	Message string      `json:"message"`
	Stack   interface{} `json:"stack"`
	Code    string      `json:"code"`
}

type flatEnvelope struct {
	Error      *nestedError `json:"error"`
	ErrorMsg   string       `json:"errorMessage"`
	ErrorType  string       `json:"errorType"`
	StackTrace interface{}  `json:"stackTrace"`
	ErrorCode  joinedCode   `json:"errorCode"`
}

// joinedCode decodes errorCode whether the producer emitted it as a
// single string or as an array of codes, joining the array case into
// one comma-separated string.
type joinedCode string

func (c *joinedCode) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*c = joinedCode(single)
		return nil
	}
	var multi []string
	if err := json.Unmarshal(data, &multi); err != nil {
		return err
	}
	*c = joinedCode(strings.Join(multi, ", "))
	return nil
}

// Extract parses body into an ErrorPattern. It first tries the nested
// error.{name,message,stack,code} shape, then falls back to top-level
// errorMessage/errorType/stackTrace/errorCode, and finally — if the body
// isn't JSON at all, or neither shape is present — treats the whole body
// as the message with type "ParseError". affectedService is derived from
// the source queue name.
func Extract(body []byte, sourceQueue string) model.ErrorPattern {
	service := AffectedService(sourceQueue)

	var env flatEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Error != nil && (env.Error.Message != "" || env.Error.Name != "") {
			return model.ErrorPattern{
				Type:            env.Error.Name,
				Message:         truncateMessage(env.Error.Message),
				StackTop:        truncateStack(env.Error.Message, env.Error.Stack),
				Code:            env.Error.Code,
				AffectedService: service,
			}
		}
		if env.ErrorMsg != "" || env.ErrorType != "" {
			return model.ErrorPattern{
				Type:            env.ErrorType,
				Message:         truncateMessage(env.ErrorMsg),
				StackTop:        truncateStack(env.ErrorMsg, env.StackTrace),
				Code:            string(env.ErrorCode),
				AffectedService: service,
			}
		}
	}

	return model.ErrorPattern{
		Type:            "ParseError",
		Message:         truncateMessage(string(body)),
		AffectedService: service,
	}
}

// truncateMessage hard-truncates to 500 characters, appending an ellipsis
// marker when truncation actually occurred.
func truncateMessage(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	return s[:maxMessageLen] + "..."
}

// truncateStack normalizes a stack field (array of strings, a single
// newline-delimited string, or anything else) down to its top 3 frames,
// prepended with the error line itself. The error line is additional to,
// not counted against, the 3-frame cap.
func truncateStack(errorLine string, raw interface{}) []string {
	var lines []string
	switch v := raw.(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				lines = append(lines, s)
			}
		}
	case string:
		lines = strings.Split(v, "\n")
	}

	var frames []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		frames = append(frames, l)
		if len(frames) == maxStackLines {
			break
		}
	}

	errorLine = strings.TrimSpace(errorLine)
	switch {
	case errorLine == "" && len(frames) == 0:
		return nil
	case errorLine == "":
		return frames
	default:
		return append([]string{errorLine}, frames...)
	}
}

// AffectedService derives a service name from a source queue name by
// stripping a trailing "-dlq"/"_dlq" suffix and converting the remainder
// to PascalCase.
func AffectedService(queueName string) string {
	base := queueName
	for _, suffix := range []string{"-dlq", "_dlq"} {
		if strings.HasSuffix(strings.ToLower(base), suffix) {
			base = base[:len(base)-len(suffix)]
			break
		}
	}

	var sb strings.Builder
	newWord := true
	for _, r := range base {
		switch {
		case r == '-' || r == '_' || unicode.IsSpace(r):
			newWord = true
		case newWord:
			sb.WriteRune(unicode.ToUpper(r))
			newWord = false
		default:
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	return sb.String()
}
