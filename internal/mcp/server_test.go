package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/johnrirwin/agenda/internal/dates"
	"github.com/johnrirwin/agenda/internal/models"
	"github.com/johnrirwin/agenda/internal/testutil"
	"github.com/johnrirwin/agenda/internal/timewindow"
)

var testNow = time.Date(2024, 3, 3, 18, 0, 0, 0, time.UTC)

type stubSource struct {
	events []models.Event
}

func (s *stubSource) Events(ctx context.Context) []models.Event { return s.events }

func (s *stubSource) Sources() []models.SourceInfo {
	return []models.SourceInfo{{Key: "rss", Enabled: true}, {Key: "grandmix", Enabled: true}}
}

func newEvent(source, title, start, timing string) models.Event {
	e := models.NewEvent(source)
	e.Title = title
	e.StartDate = start
	e.EndDate = start
	if timing != "" {
		e.Timings = append(e.Timings, models.Timing{Start: timing, End: timing})
	}
	return e
}

func newTestHandler() *Handler {
	parser := dates.NewParser(time.UTC)
	src := &stubSource{events: []models.Event{
		newEvent("rss", "Marché de printemps", "2024-03-03", ""),
		newEvent("grandmix", "Concert rock", "2024-03-03", "2024-03-03T20:30:00Z"),
		newEvent("grandmix", "Concert jazz", "2024-03-20", "2024-03-20T20:30:00Z"),
	}}
	return NewHandler(src, timewindow.New(parser, "fr_FR"), func() time.Time { return testNow }, 7, 5, testutil.NullLogger())
}

// run feeds the lines to a server and returns the decoded responses.
func run(t *testing.T, lines ...string) []Response {
	t.Helper()
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer

	s := NewServer(newTestHandler(), in, &out, testutil.NullLogger())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var responses []Response
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r Response
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		responses = append(responses, r)
	}
	return responses
}

func toolText(t *testing.T, r Response) string {
	t.Helper()
	raw, _ := json.Marshal(r.Result)
	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil || len(result.Content) != 1 {
		t.Fatalf("unexpected tool result %s", raw)
	}
	return result.Content[0].Text
}

func TestServer_Protocol(t *testing.T) {
	responses := run(t,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":4,"method":"resources/list"}`,
		`not json`,
	)

	if len(responses) != 5 {
		t.Fatalf("got %d responses, want 5 (notifications get none)", len(responses))
	}
	if responses[0].Error != nil {
		t.Errorf("initialize error = %v", responses[0].Error)
	}

	raw, _ := json.Marshal(responses[1].Result)
	var tools ToolsListResult
	if err := json.Unmarshal(raw, &tools); err != nil || len(tools.Tools) != 4 {
		t.Errorf("tools/list = %s", raw)
	}

	if responses[3].Error == nil || responses[3].Error.Code != -32601 {
		t.Errorf("unknown method error = %+v, want -32601", responses[3].Error)
	}
	if responses[4].Error == nil || responses[4].Error.Code != -32700 {
		t.Errorf("parse error = %+v, want -32700", responses[4].Error)
	}
}

func TestServer_ToolCalls(t *testing.T) {
	tests := []struct {
		name      string
		call      string
		wantParts []string
		notParts  []string
	}{
		{
			name:      "all events",
			call:      `{"name":"get_events"}`,
			wantParts: []string{`"count": 3`},
		},
		{
			name:      "by source and search",
			call:      `{"name":"get_events","arguments":{"source":"grandmix","search":"JAZZ"}}`,
			wantParts: []string{`"count": 1`, "Concert jazz"},
			notParts:  []string{"Concert rock"},
		},
		{
			name:      "upcoming days",
			call:      `{"name":"get_upcoming_days"}`,
			wantParts: []string{`"dayNumber": 0`, `"dayNumber": 6`, "Marché de printemps"},
			notParts:  []string{"Concert jazz"},
		},
		{
			name:      "starting soon",
			call:      `{"name":"get_events_starting_soon"}`,
			wantParts: []string{"Concert rock"},
			notParts:  []string{"Concert jazz", "Marché"},
		},
		{
			name:      "sources",
			call:      `{"name":"get_event_sources"}`,
			wantParts: []string{`"count": 2`, "grandmix"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responses := run(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":`+tt.call+`}`)
			if len(responses) != 1 {
				t.Fatalf("got %d responses, want 1", len(responses))
			}
			text := toolText(t, responses[0])
			for _, part := range tt.wantParts {
				if !strings.Contains(text, part) {
					t.Errorf("result missing %q:\n%s", part, text)
				}
			}
			for _, part := range tt.notParts {
				if strings.Contains(text, part) {
					t.Errorf("result should not contain %q:\n%s", part, text)
				}
			}
		})
	}
}

func TestServer_UnknownTool(t *testing.T) {
	responses := run(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"refresh"}}`)

	raw, _ := json.Marshal(responses[0].Result)
	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content[0].Text, "Unknown tool") {
		t.Errorf("result = %+v, want an error result", result)
	}
}

func TestServer_InvalidArguments(t *testing.T) {
	responses := run(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_events","arguments":{"source":7}}}`)

	text := toolText(t, responses[0])
	if !strings.Contains(text, "Invalid arguments") {
		t.Errorf("result = %s, want invalid arguments error", text)
	}
}

func TestServer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewServer(newTestHandler(), strings.NewReader(""), &bytes.Buffer{}, testutil.NullLogger())
	if err := s.Run(ctx); err != context.Canceled {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
