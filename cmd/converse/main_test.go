// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/converse/lib/llm"
	llmcontext "github.com/bureau-foundation/converse/lib/llm/context"
	"github.com/bureau-foundation/converse/lib/process"
	"github.com/bureau-foundation/converse/lib/testutil"
	"github.com/bureau-foundation/converse/lib/transcript"
)

// chatRequest is the part of an Ollama /api/chat body the tests check.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Options struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict"`
	} `json:"options"`
}

func (request chatRequest) summarization() bool {
	return len(request.Messages) > 0 && strings.HasPrefix(request.Messages[0].Content, "You compress")
}

// characters is the request's length as the token estimator counts it.
func (request chatRequest) characters() int {
	total := 0
	for _, message := range request.Messages {
		total += len(message.Content) + 20
	}
	return total
}

// ollamaBackend is a fake Ollama server. respond returns the text
// pieces to stream for a request, or an HTTP status to fail with. The
// final object reports one prompt token per character of the request,
// counting the estimator's per-message overhead.
type ollamaBackend struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []chatRequest
}

func newOllamaBackend(t *testing.T, respond func(chatRequest) ([]string, int)) *ollamaBackend {
	t.Helper()
	backend := &ollamaBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"models":[]}`))
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var request chatRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		backend.mu.Lock()
		backend.requests = append(backend.requests, request)
		backend.mu.Unlock()

		pieces, status := respond(request)
		if status != 0 {
			http.Error(w, `{"error":"model crashed"}`, status)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, piece := range pieces {
			line, _ := json.Marshal(map[string]any{"message": map[string]string{"role": "assistant", "content": piece}, "done": false})
			w.Write(append(line, '\n'))
		}
		fmt.Fprintf(w, `{"message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":%d}`+"\n",
			request.characters())
	})
	backend.server = httptest.NewServer(mux)
	t.Cleanup(backend.server.Close)
	return backend
}

func (backend *ollamaBackend) received() []chatRequest {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	return append([]chatRequest(nil), backend.requests...)
}

// answer replies "answer" to conversation requests and "recap" to
// summarization requests.
func answer(request chatRequest) ([]string, int) {
	if request.summarization() {
		return []string{"recap"}, 0
	}
	return []string{"ans", "wer"}, 0
}

// writeConfig writes a configuration with one Ollama provider named
// "local" plus extra YAML appended verbatim, and returns its path and
// the sessions directory.
func writeConfig(t *testing.T, baseURL, contextSection, extraProviders string) (string, string) {
	t.Helper()
	directory := t.TempDir()
	sessions := filepath.Join(directory, "sessions")
	if contextSection != "" {
		contextSection = "context:\n" + contextSection
	}
	document := fmt.Sprintf(`providers:
  - name: local
    protocol: ollama
    base_url: %s
    model: llama3
%s%ssessions:
  directory: %s
`, baseURL, extraProviders, contextSection, sessions)
	path := filepath.Join(directory, "config.yaml")
	if err := os.WriteFile(path, []byte(document), 0o600); err != nil {
		t.Fatal(err)
	}
	return path, sessions
}

type invocation struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
	stdin  string

	// pipedStdin makes stdin look like a pipe rather than a terminal.
	pipedStdin bool
}

func (invocation *invocation) run(ctx context.Context, args ...string) error {
	return run(ctx, args, streams{
		stdin:         strings.NewReader(invocation.stdin),
		stdout:        &invocation.stdout,
		stderr:        &invocation.stderr,
		stdinTerminal: !invocation.pipedStdin,
		getenv:        func(string) string { return "" },
	})
}

func loadSession(t *testing.T, directory, id string) *transcript.Transcript {
	t.Helper()
	session, err := transcript.NewStore(directory, nil).Load(id)
	if err != nil {
		t.Fatalf("loading session %q: %v", id, err)
	}
	return session
}

func roles(request chatRequest) string {
	var parts []string
	for _, message := range request.Messages {
		parts = append(parts, message.Role+":"+message.Content)
	}
	return strings.Join(parts, " | ")
}

func TestTurnStreamsAnswerAndSavesSession(t *testing.T) {
	t.Parallel()

	backend := newOllamaBackend(t, answer)
	configPath, sessions := writeConfig(t, backend.server.URL, "  instructions: Be brief.\n", "")

	var first invocation
	if err := first.run(context.Background(), "--config", configPath, "hello", "there"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if first.stdout.String() != "answer\n" {
		t.Errorf("stdout = %q, want %q", first.stdout.String(), "answer\n")
	}

	var second invocation
	if err := second.run(context.Background(), "--config", configPath, "--temperature", "0.2", "again"); err != nil {
		t.Fatalf("second run: %v", err)
	}

	requests := backend.received()
	if len(requests) != 2 {
		t.Fatalf("backend saw %d requests, want 2", len(requests))
	}
	if got, want := roles(requests[0]), "system:Be brief. | user:hello there"; got != want {
		t.Errorf("first request = %q, want %q", got, want)
	}
	if got, want := roles(requests[1]), "system:Be brief. | user:hello there | assistant:answer | user:again"; got != want {
		t.Errorf("second request = %q, want %q", got, want)
	}
	if requests[0].Options.Temperature != 0.7 || requests[1].Options.Temperature != 0.2 {
		t.Errorf("temperatures = %v, %v", requests[0].Options.Temperature, requests[1].Options.Temperature)
	}
	if requests[0].Model != "llama3" {
		t.Errorf("model = %q, want the configured model", requests[0].Model)
	}

	session := loadSession(t, sessions, "default")
	if len(session.Entries) != 5 || session.Provider != "local" {
		t.Errorf("session = %+v", session)
	}
}

func TestPromptFromStdin(t *testing.T) {
	t.Parallel()

	backend := newOllamaBackend(t, answer)
	configPath, _ := writeConfig(t, backend.server.URL, "", "")

	command := invocation{stdin: "  piped question\n", pipedStdin: true}
	if err := command.run(context.Background(), "--config", configPath, "--session", "pipe"); err != nil {
		t.Fatalf("run: %v", err)
	}
	requests := backend.received()
	if len(requests) != 1 || roles(requests[0]) != "user:piped question" {
		t.Errorf("requests = %+v", requests)
	}

	empty := invocation{pipedStdin: true}
	var exit *process.ExitError
	if err := empty.run(context.Background(), "--config", configPath); !errors.As(err, &exit) || exit.Code != process.ExitUsage {
		t.Errorf("empty stdin: err = %v, want a usage error", err)
	}
}

func TestInteractiveReadsOnePromptPerLine(t *testing.T) {
	t.Parallel()

	backend := newOllamaBackend(t, answer)
	configPath, sessions := writeConfig(t, backend.server.URL, "", "")

	command := invocation{stdin: "first\n\nsecond\n"}
	if err := command.run(context.Background(), "--config", configPath, "--session", "repl"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got, want := command.stdout.String(), "> answer\n> > answer\n> \n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
	if session := loadSession(t, sessions, "repl"); len(session.Entries) != 4 {
		t.Errorf("session has %d records, want 4", len(session.Entries))
	}
}

// seedSession stores two long exchanges so the next turn is over a
// small budget.
func seedSession(t *testing.T, sessions, id string) {
	t.Helper()
	store := transcript.NewStore(sessions, nil)
	session, err := store.Load(id)
	if err != nil {
		t.Fatal(err)
	}
	long := strings.Repeat("context ", 20)
	session.Append(store.Now(),
		llm.UserMessage("q1 "+long),
		llm.AssistantMessage("a1 "+long),
		llm.UserMessage("q2 "+long),
		llm.AssistantMessage("a2"),
	)
	if err := store.Save(session); err != nil {
		t.Fatal(err)
	}
}

func TestSummarizedTurnReplacesOlderHistory(t *testing.T) {
	t.Parallel()

	backend := newOllamaBackend(t, answer)
	configPath, sessions := writeConfig(t, backend.server.URL,
		"  strategy: summarize\n  budget_tokens: 40\n", "")
	seedSession(t, sessions, "long")

	var command invocation
	if err := command.run(context.Background(), "--config", configPath, "--session", "long", "next"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got, want := command.stdout.String(), "(earlier conversation summarized)\nanswer\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}

	requests := backend.received()
	if len(requests) != 2 || !requests[0].summarization() {
		t.Fatalf("requests = %+v, want a summarization request then the turn", requests)
	}
	if requests[0].Options.Temperature != 0 || requests[0].Options.NumPredict != llmcontext.DefaultMaxSummaryTokens {
		t.Errorf("summarization options = %+v", requests[0].Options)
	}
	if !strings.Contains(requests[0].Messages[1].Content, "q2") {
		t.Errorf("summarized transcript = %q, want the older messages", requests[0].Messages[1].Content)
	}
	if got, want := roles(requests[1]), "system:"+llmcontext.SummaryPrefix+"recap | assistant:a2 | user:next"; got != want {
		t.Errorf("turn request = %q, want %q", got, want)
	}

	session := loadSession(t, sessions, "long")
	active := session.Active()
	if len(active) != 4 || !active[0].Summary || active[3].Message.Content != "answer" {
		t.Errorf("active history = %+v", active)
	}
	superseded := 0
	for _, record := range session.Entries {
		if record.Superseded {
			superseded++
		}
	}
	if superseded != 3 {
		t.Errorf("%d records superseded, want 3", superseded)
	}
}

func TestFailedSummarizationSendsFullHistory(t *testing.T) {
	t.Parallel()

	backend := newOllamaBackend(t, func(request chatRequest) ([]string, int) {
		if request.summarization() {
			return nil, http.StatusInternalServerError
		}
		return []string{"answer"}, 0
	})
	configPath, sessions := writeConfig(t, backend.server.URL,
		"  strategy: summarize\n  budget_tokens: 40\n", "")
	seedSession(t, sessions, "long")

	var command invocation
	if err := command.run(context.Background(), "--config", configPath, "--session", "long", "next"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if command.stdout.String() != "answer\n" {
		t.Errorf("stdout = %q", command.stdout.String())
	}
	requests := backend.received()
	if len(requests) != 2 || len(requests[1].Messages) != 5 {
		t.Fatalf("turn request = %+v, want all five history messages", requests)
	}
	if !strings.Contains(command.stderr.String(), "sending the full history") {
		t.Errorf("stderr = %q, want a warning", command.stderr.String())
	}
	for _, entry := range loadSession(t, sessions, "long").Active() {
		if entry.Summary {
			t.Error("summary recorded after a failed summarization")
		}
	}
}

func TestTruncatingStrategyLeavesOutOldTurns(t *testing.T) {
	t.Parallel()

	backend := newOllamaBackend(t, answer)
	configPath, sessions := writeConfig(t, backend.server.URL,
		"  strategy: truncate\n  budget_tokens: 40\n", "")
	seedSession(t, sessions, "long")

	var command invocation
	if err := command.run(context.Background(), "--config", configPath, "--session", "long", "next"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(command.stdout.String(), "(") || !strings.Contains(command.stdout.String(), "earlier messages left out") {
		t.Errorf("stdout = %q, want an eviction notice", command.stdout.String())
	}
	requests := backend.received()
	if len(requests) != 1 || requests[0].summarization() {
		t.Fatalf("requests = %+v, want one turn and no summarization", requests)
	}
	if last := requests[0].Messages[len(requests[0].Messages)-1]; last.Content != "next" {
		t.Errorf("last message = %+v, want the new prompt", last)
	}
	// Truncation only shapes the request; the stored history is whole.
	if session := loadSession(t, sessions, "long"); len(session.Active()) != 6 {
		t.Errorf("stored history has %d entries, want 6", len(session.Active()))
	}
}

// firstWrite is an output that signals its first write.
type firstWrite struct {
	mu      sync.Mutex
	buffer  bytes.Buffer
	written chan struct{}
}

func (output *firstWrite) Write(data []byte) (int, error) {
	output.mu.Lock()
	defer output.mu.Unlock()
	if output.buffer.Len() == 0 {
		close(output.written)
	}
	return output.buffer.Write(data)
}

func (output *firstWrite) String() string {
	output.mu.Lock()
	defer output.mu.Unlock()
	return output.buffer.String()
}

func TestInterruptAbandonsTurn(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"partial"},"done":false}` + "\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	configPath, sessions := writeConfig(t, server.URL, "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stdout := &firstWrite{written: make(chan struct{})}
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"--config", configPath, "question"}, streams{
			stdin:         strings.NewReader(""),
			stdout:        stdout,
			stderr:        &bytes.Buffer{},
			stdinTerminal: true,
			getenv:        func(string) string { return "" },
		})
	}()

	testutil.RequireClosed(t, stdout.written, 5*time.Second, "no answer text was written")
	cancel()
	err := testutil.RequireReceive(t, done, 5*time.Second, "run did not return after cancellation")
	if !errors.Is(err, errInterrupted) {
		t.Fatalf("run = %v, want errInterrupted", err)
	}
	if got := stdout.String(); !strings.HasPrefix(got, "partial\n") || !strings.Contains(got, "(interrupted)") {
		t.Errorf("stdout = %q", got)
	}
	path, _ := transcript.NewStore(sessions, nil).Path("default")
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("interrupted turn saved a session file (stat err = %v)", err)
	}
}

func TestListMarksDefaultAndSkipped(t *testing.T) {
	t.Parallel()

	configPath, _ := writeConfig(t, "http://localhost:11434", "",
		"  - name: claude\n    protocol: anthropic\n    model: claude-haiku-4-5-20251001\n")

	var command invocation
	if err := command.run(context.Background(), "--config", configPath, "--list"); err != nil {
		t.Fatalf("run: %v", err)
	}
	output := command.stdout.String()
	if !strings.HasPrefix(output, "* local ") || !strings.Contains(output, "llama3") {
		t.Errorf("output = %q, want local marked as default", output)
	}
	if !strings.Contains(output, "claude") || !strings.Contains(output, "no API key configured") {
		t.Errorf("output = %q, want claude listed as skipped with its reason", output)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	backend := newOllamaBackend(t, answer)
	stopped := httptest.NewServer(http.NotFoundHandler())
	stoppedURL := stopped.URL
	stopped.Close()

	configPath, _ := writeConfig(t, backend.server.URL, "",
		fmt.Sprintf("  - name: offline\n    protocol: ollama\n    base_url: %s\n    model: llama3\n", stoppedURL))

	var command invocation
	err := command.run(context.Background(), "--config", configPath, "--health")
	var exit *process.ExitError
	if !errors.As(err, &exit) || exit.Err != nil || exit.Code != process.ExitFailure {
		t.Fatalf("run = %v, want a silent failure status", err)
	}
	output := command.stdout.String()
	if !strings.Contains(output, "local") || !strings.Contains(output, "ok") {
		t.Errorf("output = %q, want local ok", output)
	}
	if !strings.Contains(output, "offline") || !strings.Contains(output, "ollama serve") {
		t.Errorf("output = %q, want offline with a start hint", output)
	}
}

func TestCommandLineErrors(t *testing.T) {
	t.Parallel()

	configPath, _ := writeConfig(t, "http://localhost:11434", "", "")
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantText string
	}{
		{"unknown flag", []string{"--frobnicate"}, process.ExitUsage, "frobnicate"},
		{"negative max tokens", []string{"--config", configPath, "--max-tokens", "-1", "hi"}, process.ExitUsage, "--max-tokens"},
		{"missing config", []string{"--config", missing, "hi"}, process.ExitFailure, "no configuration file"},
		{"unknown provider", []string{"--config", configPath, "--provider", "nope", "hi"}, process.ExitFailure, "converse --list"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			var command invocation
			err := command.run(context.Background(), test.args...)
			if err == nil {
				t.Fatal("run succeeded")
			}
			var output bytes.Buffer
			if code := process.Report(&output, err); code != test.wantCode {
				t.Errorf("exit status = %d, want %d", code, test.wantCode)
			}
			if !strings.Contains(output.String(), test.wantText) {
				t.Errorf("report = %q, want it to mention %q", output.String(), test.wantText)
			}
		})
	}
}

func TestVersionAndHelp(t *testing.T) {
	t.Parallel()

	var version invocation
	if err := version.run(context.Background(), "--version"); err != nil {
		t.Fatalf("--version: %v", err)
	}
	if !strings.HasPrefix(version.stdout.String(), "converse ") {
		t.Errorf("--version output = %q", version.stdout.String())
	}

	var help invocation
	if err := help.run(context.Background(), "--help"); err != nil {
		t.Fatalf("--help: %v", err)
	}
	if !strings.Contains(help.stderr.String(), "--session") {
		t.Errorf("--help output = %q, want the flag list", help.stderr.String())
	}
}
