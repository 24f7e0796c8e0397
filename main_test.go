package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dtabarie/htget/httpclient"
)

// Test parseArgs function
func TestParseArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantMethod string
		wantURL    string
		wantArgs   []string
		wantErr    bool
	}{
		{"url only", []string{"http://example.com/"}, "GET", "http://example.com/", []string{}, false},
		{"method and url", []string{"POST", "http://example.com/"}, "POST", "http://example.com/", []string{}, false},
		{"lowercase method", []string{"post", "http://example.com/"}, "POST", "http://example.com/", []string{}, false},
		{"form args", []string{"POST", "http://h/", "a=1", "b=two words"}, "POST", "http://h/", []string{"a=1", "b=two words"}, false},
		{"flags after positional", []string{"GET", "http://h/", "-q", "a=1"}, "GET", "http://h/", []string{"a=1"}, false},
		{"no arguments", []string{}, "", "", nil, true},
		{"method without url", []string{"GET"}, "", "", nil, true},
		{"unknown flag", []string{"--nope", "http://h/"}, "", "", nil, true},
		{"conflicting flags", []string{"--head", "--body", "http://h/"}, "", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parseArgs(tt.args, io.Discard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if cfg.method != tt.wantMethod {
				t.Errorf("parseArgs() method = %v, want %v", cfg.method, tt.wantMethod)
			}
			if cfg.url != tt.wantURL {
				t.Errorf("parseArgs() url = %v, want %v", cfg.url, tt.wantURL)
			}
			if !reflect.DeepEqual(cfg.args, tt.wantArgs) {
				t.Errorf("parseArgs() args = %v, want %v", cfg.args, tt.wantArgs)
			}
		})
	}
}

func TestParseArgsFlags(t *testing.T) {
	cfg, err := parseArgs([]string{
		"-H", "Accept: text/html",
		"-H", "X-Id: 7",
		"--timeout", "2s",
		"--http1.0",
		"--unix-socket", "/tmp/x.sock",
		"http://h/",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs() error = %v", err)
	}
	if want := []string{"Accept: text/html", "X-Id: 7"}; !reflect.DeepEqual(cfg.headers, want) {
		t.Errorf("parseArgs() headers = %v, want %v", cfg.headers, want)
	}
	if cfg.timeout != 2*time.Second {
		t.Errorf("parseArgs() timeout = %v, want 2s", cfg.timeout)
	}
	if cfg.readTimeout != httpclient.DefaultReadTimeout {
		t.Errorf("parseArgs() readTimeout = %v, want %v", cfg.readTimeout, httpclient.DefaultReadTimeout)
	}
	if !cfg.http10 || cfg.unixSocket != "/tmp/x.sock" {
		t.Errorf("parseArgs() http10 = %v, unixSocket = %v", cfg.http10, cfg.unixSocket)
	}
}

// Test validateConfig function
func TestValidateConfig(t *testing.T) {
	valid := func() *config {
		return &config{timeout: time.Second, readTimeout: time.Second}
	}

	tests := []struct {
		name    string
		mutate  func(*config)
		wantErr bool
		errMsg  string
	}{
		{"valid config", func(*config) {}, false, ""},
		{"headersOnly and bodyOnly conflict", func(c *config) { c.headersOnly, c.bodyOnly = true, true }, true, "cannot use --head and --body together"},
		{"quiet and verbose conflict", func(c *config) { c.quiet, c.verbose = true, true }, true, "cannot use --quiet and --verbose together"},
		{"zero timeout", func(c *config) { c.timeout = 0 }, true, "--timeout must be positive"},
		{"zero read timeout", func(c *config) { c.readTimeout = 0 }, true, "--read-timeout must be positive"},
		{"negative settle", func(c *config) { c.settle = -time.Second }, true, "--settle must not be negative"},
		{"negative max bytes", func(c *config) { c.maxBytes = -1 }, true, "--max-bytes and --max-response must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err.Error() != tt.errMsg {
				t.Errorf("validateConfig() error message = %v, want %v", err.Error(), tt.errMsg)
			}
		})
	}
}

// Test expandEnvVars function
func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test_value")
	t.Setenv("API_KEY", "secret123")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple var", "Value is $TEST_VAR", "Value is test_value"},
		{"braced var", "Key: ${API_KEY}", "Key: secret123"},
		{"multiple vars", "$TEST_VAR and ${API_KEY}", "test_value and secret123"},
		{"undefined var", "Value is $UNDEFINED_VAR", "Value is $UNDEFINED_VAR"},
		{"in url", "http://h/$TEST_VAR?k=${API_KEY}", "http://h/test_value?k=secret123"},
		{"no vars", "plain text", "plain text"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandEnvVars(tt.input); got != tt.want {
				t.Errorf("expandEnvVars() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nHTGET_A=plain\nHTGET_B=\"double quoted\"\nHTGET_C='single'\nnot a pair\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	for _, k := range []string{"HTGET_A", "HTGET_B", "HTGET_C"} {
		t.Setenv(k, "")
	}

	cfg := &config{quiet: true}
	if err := loadEnvFile(path, newLogger(cfg, io.Discard)); err != nil {
		t.Fatalf("loadEnvFile() error = %v", err)
	}
	want := map[string]string{"HTGET_A": "plain", "HTGET_B": "double quoted", "HTGET_C": "single"}
	for k, v := range want {
		if got := os.Getenv(k); got != v {
			t.Errorf("loadEnvFile() %s = %q, want %q", k, got, v)
		}
	}

	if err := loadEnvFile(filepath.Join(t.TempDir(), "missing"), newLogger(cfg, io.Discard)); err == nil {
		t.Error("loadEnvFile() on missing file: want error")
	}
}

// Test parseHeaderFlags and parseFormArgs functions
func TestParseHeaderFlags(t *testing.T) {
	got, err := parseHeaderFlags([]string{"Accept: text/html", "X-Empty:", "X-Spaced :  v "}, false)
	if err != nil {
		t.Fatalf("parseHeaderFlags() error = %v", err)
	}
	want := httpclient.Fields{{Name: "Accept", Value: "text/html"}, {Name: "X-Empty", Value: ""}, {Name: "X-Spaced", Value: "v"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseHeaderFlags() = %v, want %v", got, want)
	}

	for _, bad := range []string{"no colon", ": value"} {
		_, err := parseHeaderFlags([]string{bad}, false)
		if httpclient.KindOf(err) != httpclient.EncodingFailure {
			t.Errorf("parseHeaderFlags(%q) error = %v, want encoding failure", bad, err)
		}
	}
}

func TestParseFormArgs(t *testing.T) {
	t.Setenv("HTGET_USER", "alice")

	got, err := parseFormArgs([]string{"a=1", "b=two words", "eq=x=y", "user=$HTGET_USER"}, true)
	if err != nil {
		t.Fatalf("parseFormArgs() error = %v", err)
	}
	want := httpclient.Fields{{Name: "a", Value: "1"}, {Name: "b", Value: "two words"}, {Name: "eq", Value: "x=y"}, {Name: "user", Value: "alice"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseFormArgs() = %v, want %v", got, want)
	}

	_, err = parseFormArgs([]string{"novalue"}, false)
	if code := exitCode(err); code != 3 {
		t.Errorf("exitCode() = %v, want 3", code)
	}
}

// Test colorize method
func TestConfigColorize(t *testing.T) {
	tests := []struct {
		name     string
		useColor bool
		color    string
		text     string
		want     string
	}{
		{"with color enabled", true, colorRed, "error", colorRed + "error" + colorReset},
		{"with color disabled", false, colorRed, "error", "error"},
		{"empty text no color", false, colorCyan, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config{useColor: tt.useColor}
			if got := cfg.colorize(tt.color, tt.text); got != tt.want {
				t.Errorf("colorize() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Test colorStatus method
func TestConfigColorStatus(t *testing.T) {
	tests := []struct {
		name     string
		useColor bool
		code     int
		want     string
	}{
		{"2xx green", true, 200, colorGreen + "200" + colorReset},
		{"3xx cyan", true, 301, colorCyan + "301" + colorReset},
		{"4xx yellow", true, 404, colorYellow + "404" + colorReset},
		{"5xx red", true, 500, colorRed + "500" + colorReset},
		{"1xx unchanged", true, 100, "100"},
		{"no color", false, 200, "200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config{useColor: tt.useColor}
			if got := cfg.colorStatus(tt.code); got != tt.want {
				t.Errorf("colorStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Test exitCode function
func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported protocol", &httpclient.Error{Kind: httpclient.UnsupportedProtocol}, 1},
		{"malformed url", &httpclient.Error{Kind: httpclient.MalformedURL}, 3},
		{"encoding failure", &httpclient.Error{Kind: httpclient.EncodingFailure}, 3},
		{"bad response", &httpclient.Error{Kind: httpclient.BadResponse}, 6},
		{"connection failure", &httpclient.Error{Kind: httpclient.ConnectionFailure}, 7},
		{"timeout", &httpclient.Error{Kind: httpclient.Timeout}, 28},
		{"empty reply", &httpclient.Error{Kind: httpclient.EmptyReply}, 52},
		{"other", io.ErrUnexpectedEOF, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Test writeResponse function
func TestWriteResponse(t *testing.T) {
	resp := &httpclient.Response{
		Proto:   "HTTP/1.1",
		Code:    200,
		Reason:  "OK",
		Headers: map[string]string{"Server": "test", "Content-Type": "text/plain"},
		Body:    "hello world",
	}

	tests := []struct {
		name string
		cfg  *config
		want string
	}{
		{"full", &config{}, "HTTP/1.1 200 OK\nContent-Type: text/plain\nServer: test\n\nhello world"},
		{"headers only", &config{headersOnly: true}, "HTTP/1.1 200 OK\nContent-Type: text/plain\nServer: test\n"},
		{"body only", &config{bodyOnly: true}, "hello world"},
		{"max bytes", &config{bodyOnly: true, maxBytes: 5}, "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeResponse(&buf, resp, tt.cfg); err != nil {
				t.Fatalf("writeResponse() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("writeResponse() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestRun(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create test server: %v", err)
	}
	defer listener.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- string(data)
		io.WriteString(conn, "HTTP/1.1 200 OK\r\nServer: test\r\n\r\nposted")
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	cfg, err := parseArgs([]string{
		"--print-request",
		"-H", "X-Id: 7",
		"POST", "http://127.0.0.1:" + strconv.Itoa(port) + "/submit",
		"a=1", "b=two words",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs() error = %v", err)
	}

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), cfg, &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if want := "HTTP/1.1 200 OK\nServer: test\n\nposted"; stdout.String() != want {
		t.Errorf("run() stdout = %q, want %q", stdout.String(), want)
	}
	if !strings.Contains(stderr.String(), "[*] Sending request:") {
		t.Errorf("run() stderr = %q, want request dump", stderr.String())
	}

	select {
	case req := <-received:
		if !strings.Contains(req, "X-Id: 7\r\n") || !strings.HasSuffix(req, "a=1&b=two+words") {
			t.Errorf("request = %q", req)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive a request")
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
	}{
		{"https", []string{"https://example.com/"}, 1},
		{"malformed", []string{"http://bad host/"}, 3},
		{"bad form arg", []string{"POST", "http://example.com/", "novalue"}, 3},
		{"bad header", []string{"-H", "broken", "http://example.com/"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parseArgs(append([]string{"-q"}, tt.args...), io.Discard)
			if err != nil {
				t.Fatalf("parseArgs() error = %v", err)
			}
			err = run(context.Background(), cfg, io.Discard, io.Discard)
			if got := exitCode(err); got != tt.wantCode {
				t.Errorf("run() exit code = %v, want %v (err %v)", got, tt.wantCode, err)
			}
		})
	}
}
