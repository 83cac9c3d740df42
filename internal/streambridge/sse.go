package streambridge

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// sseFrame is one decoded "data: ..." frame, already JSON-unmarshaled
// when the payload parses; done reports the "[DONE]" sentinel.
type sseFrame struct {
	payload any
	done    bool
}

// scanSSEFrames reads an SSE body line by line, accepting both "\n" and
// "\r\n" terminators, accumulates "data:" lines until a blank line ends
// a frame, and invokes onFrame for each decodable frame. Frames whose
// accumulated payload isn't valid JSON and isn't the [DONE] sentinel
// are dropped silently, matching upstream's tolerance for keep-alive
// comments and malformed chunks.
func scanSSEFrames(body io.Reader, onFrame func(sseFrame) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data strings.Builder
	flush := func() error {
		raw := strings.TrimSpace(data.String())
		data.Reset()
		if raw == "" {
			return nil
		}
		if raw == "[DONE]" {
			return onFrame(sseFrame{done: true})
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil
		}
		return onFrame(sseFrame{payload: parsed})
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(rest, " "))
			continue
		}
		// Ignore event:/id:/retry:/comment lines; they carry no
		// payload this integration cares about.
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
