// Command whisperctl uploads an audio file to a whisperapi server and prints the transcript.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const defaultURL = "http://localhost:8080"

type options struct {
	file        string
	format      string
	language    string
	prompt      string
	temperature float64
	output      string
	baseURL     string
	apiKey      string
	timeout     time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "whisperctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	body, err := transcribe(ctx, http.DefaultClient, opts)
	if err != nil {
		return err
	}

	if opts.output == "" {
		_, err = stdout.Write(body)
		return err
	}
	if err := os.WriteFile(opts.output, body, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(stderr, "transcript saved to %s\n", opts.output)
	return nil
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("whisperctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: whisperctl [flags] FILE")
		fs.PrintDefaults()
	}

	baseURL := os.Getenv("WHISPER_API_URL")
	if baseURL == "" {
		baseURL = defaultURL
	}

	opts := &options{}
	fs.StringVar(&opts.format, "format", "json", "response format: json, text, verbose_json, vtt or srt")
	fs.StringVar(&opts.language, "language", "", "spoken language code, detected when empty")
	fs.StringVar(&opts.prompt, "prompt", "", "initial prompt to guide the model")
	fs.Float64Var(&opts.temperature, "temperature", 0, "sampling temperature between 0 and 1")
	fs.StringVar(&opts.output, "o", "", "write the transcript to this file instead of stdout")
	fs.StringVar(&opts.baseURL, "url", baseURL, "server base URL (env WHISPER_API_URL)")
	fs.StringVar(&opts.apiKey, "api-key", os.Getenv("WHISPER_API_KEY"), "API key sent as a bearer token (env WHISPER_API_KEY)")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "request timeout")

	// accept flags after the file name as well
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
	if len(positional) != 1 {
		fs.Usage()
		return nil, errors.New("exactly one audio file is required")
	}
	opts.file = positional[0]
	opts.format = strings.ToLower(opts.format)
	return opts, nil
}

// transcribe posts the file and returns the response body as the server rendered it.
func transcribe(ctx context.Context, client *http.Client, opts *options) ([]byte, error) {
	f, err := os.Open(opts.file)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(opts.file))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	endpoint := strings.TrimRight(opts.baseURL, "/") + "/v1/audio/transcriptions"
	if opts.format == "srt" {
		endpoint += "/srt"
	} else {
		mw.WriteField("response_format", opts.format)
	}
	if opts.language != "" {
		mw.WriteField("language", opts.language)
	}
	if opts.prompt != "" {
		mw.WriteField("prompt", opts.prompt)
	}
	mw.WriteField("temperature", strconv.FormatFloat(opts.temperature, 'f', -1, 64))
	if err := mw.Close(); err != nil {
		return nil, err
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if opts.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+opts.apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, errorMessage(body))
	}
	return body, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
