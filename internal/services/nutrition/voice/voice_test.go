package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/eatbot/internal/services/nutrition/ai/aitest"
	"github.com/tidwall/gjson"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration time.Duration
		mime     string
		want     error
	}{
		{name: "ogg voice", duration: 5 * time.Second, mime: "audio/ogg", want: nil},
		{name: "mpeg", duration: 30 * time.Second, mime: "audio/mpeg", want: nil},
		{name: "bare ogg", duration: 2 * time.Second, mime: "application/ogg", want: nil},
		{name: "too short", duration: 0, mime: "audio/ogg", want: ErrTooShort},
		{name: "too long", duration: 31 * time.Second, mime: "audio/ogg", want: ErrTooLong},
		{name: "video", duration: 3 * time.Second, mime: "video/mp4", want: ErrUnsupportedFormat},
		{name: "missing mime", duration: 3 * time.Second, mime: "", want: ErrUnsupportedFormat},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tc.duration, tc.mime, 0)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidateCustomLimit(t *testing.T) {
	t.Parallel()

	if err := Validate(45*time.Second, "audio/ogg", time.Minute); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	got := Normalize("  Шаренная картоско фарри и чикен ")
	if got != "жареная картофель фри и курица" {
		t.Fatalf("Normalize() = %q", got)
	}
}

func TestDownload(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/voice.oga" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "OggS")
	}))
	t.Cleanup(server.Close)

	data, err := Download(context.Background(), server.Client(), server.URL+"/file/voice.oga")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != "OggS" {
		t.Fatalf("data = %q", data)
	}

	if _, err := Download(context.Background(), server.Client(), server.URL+"/missing"); err == nil {
		t.Fatal("expected status error")
	}
}

func TestWhisperTranscribe(t *testing.T) {
	t.Parallel()

	server := aitest.NewServer(t)
	server.Transcript = "Гречка с курицей 200 грамм"

	whisper, err := NewWhisper(WhisperConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("new whisper: %v", err)
	}
	text, err := whisper.Transcribe(context.Background(), []byte("OggS"))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "гречка с курицей 200 грамм" {
		t.Fatalf("text = %q", text)
	}
	if server.Calls() != 1 {
		t.Fatalf("calls = %d, want 1", server.Calls())
	}
}

func TestWhisperEmptyTranscript(t *testing.T) {
	t.Parallel()

	server := aitest.NewServer(t)
	whisper, err := NewWhisper(WhisperConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("new whisper: %v", err)
	}
	if _, err := whisper.Transcribe(context.Background(), []byte("OggS")); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
}

func TestNewWhisperRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := NewWhisper(WhisperConfig{}); err == nil {
		t.Fatal("expected missing api key error")
	}
}

func TestNewCommandRequiresProgram(t *testing.T) {
	t.Parallel()

	if _, err := NewCommand("   "); err == nil {
		t.Fatal("expected missing command error")
	}
	cmd, err := NewCommand("python3 transcribe.py --model small")
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	if cmd.Name != "python3" || len(cmd.Args) != 3 {
		t.Fatalf("command = %+v", cmd)
	}
}

func TestCommandTranscribe(t *testing.T) {
	t.Parallel()

	text, err := helperCommand("ok").Transcribe(context.Background(), []byte("OggS"))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "жареная картошка, 4 байта" {
		t.Fatalf("text = %q", text)
	}
}

func TestCommandTranscribeFailure(t *testing.T) {
	t.Parallel()

	_, err := helperCommand("fail").Transcribe(context.Background(), []byte("OggS"))
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("err = %v, want model error", err)
	}
}

func TestCommandTranscribeInvalidOutput(t *testing.T) {
	t.Parallel()

	if _, err := helperCommand("garbage").Transcribe(context.Background(), []byte("OggS")); err == nil {
		t.Fatal("expected invalid output error")
	}
}

func helperCommand(mode string) *Command {
	return &Command{
		Name: os.Args[0],
		Args: []string{"-test.run=TestHelperTranscriber"},
		Env:  []string{"EATBOT_HELPER_TRANSCRIBER=" + mode},
	}
}

// TestHelperTranscriber acts as the transcription program when re-executed
// by helperCommand.
func TestHelperTranscriber(t *testing.T) {
	mode := os.Getenv("EATBOT_HELPER_TRANSCRIBER")
	if mode == "" {
		return
	}
	input, _ := io.ReadAll(os.Stdin)
	audio, _ := base64.StdEncoding.DecodeString(gjson.GetBytes(input, "audio").String())
	switch mode {
	case "ok":
		fmt.Printf(`{"success":true,"text":"Шаренная картошка, %d байта"}`, len(audio))
	case "fail":
		fmt.Print(`{"success":false,"error":"model not loaded"}`)
	default:
		fmt.Print("not json")
	}
	os.Exit(0)
}
