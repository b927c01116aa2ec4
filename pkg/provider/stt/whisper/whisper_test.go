package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/zentra/pkg/provider/stt"
	"github.com/MrWong99/zentra/pkg/provider/stt/whisper"
)

// capturedRequest holds the multipart fields of the last /inference call.
type capturedRequest struct {
	mu     sync.Mutex
	fields map[string]string
	wav    []byte
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText and records the submitted form.
func newMockServer(t *testing.T, responseText string, status int, got *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got != nil {
			got.mu.Lock()
			got.fields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				got.fields[k] = v[0]
			}
			if f, _, err := r.FormFile("file"); err == nil {
				got.wav, _ = io.ReadAll(f)
				f.Close()
			}
			got.mu.Unlock()
		}
		if status != http.StatusOK {
			http.Error(w, "boom", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_SendsAudioAndHints(t *testing.T) {
	t.Parallel()

	var got capturedRequest
	srv := newMockServer(t, "  zentra light on ", http.StatusOK, &got)
	p, err := whisper.New(srv.URL+"/", whisper.WithLanguage("de"), whisper.WithModel("tiny"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Transcribe(context.Background(), stt.Request{
		Samples:    make([]float32, 1600),
		SampleRate: 16000,
		Prompt:     "Zentra, light on",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "zentra light on" {
		t.Errorf("text: got %q, want trimmed %q", res.Text, "zentra light on")
	}
	if res.Language != "de" {
		t.Errorf("language: got %q, want %q", res.Language, "de")
	}

	got.mu.Lock()
	defer got.mu.Unlock()
	want := map[string]string{
		"language":   "de",
		"model":      "tiny",
		"prompt":     "Zentra, light on",
		"no_context": "true",
	}
	for k, v := range want {
		if got.fields[k] != v {
			t.Errorf("field %q: got %q, want %q", k, got.fields[k], v)
		}
	}
	// 44-byte header plus 1600 16-bit samples.
	if len(got.wav) != 44+3200 {
		t.Errorf("wav size: got %d, want %d", len(got.wav), 44+3200)
	}
}

func TestTranscribe_RequestLanguageOverrides(t *testing.T) {
	t.Parallel()

	var got capturedRequest
	srv := newMockServer(t, "hallo", http.StatusOK, &got)
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), stt.Request{
		Samples:             make([]float32, 160),
		SampleRate:          16000,
		Language:            "fr",
		ConditionOnPrevious: true,
	}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	got.mu.Lock()
	defer got.mu.Unlock()
	if got.fields["language"] != "fr" {
		t.Errorf("language: got %q, want fr", got.fields["language"])
	}
	if got.fields["no_context"] != "false" {
		t.Errorf("no_context: got %q, want false", got.fields["no_context"])
	}
	if _, ok := got.fields["prompt"]; ok {
		t.Error("empty prompt should not be sent")
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, "", http.StatusInternalServerError, nil)
	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{Samples: make([]float32, 16), SampleRate: 16000}); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, "never", http.StatusOK, nil)
	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, stt.Request{Samples: make([]float32, 16), SampleRate: 16000}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
