package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/dtabarie/htget/httpclient"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Exit code for usage errors and invalid flag combinations.
const exitUsage = 1

var errUsage = errors.New("no URL given")

type config struct {
	method       string
	url          string
	args         []string // name=value form arguments
	headers      []string // "Name: value"
	env          bool
	envFile      string
	http10       bool
	timeout      time.Duration
	readTimeout  time.Duration
	settle       time.Duration
	maxBytes     int64
	maxResponse  int64
	unixSocket   string
	printRequest bool
	quiet        bool
	verbose      bool
	headersOnly  bool
	bodyOnly     bool
	noColor      bool
	useColor     bool // Computed: whether to actually use colors
}

// Color helpers
func (cfg *config) colorize(color, text string) string {
	if !cfg.useColor {
		return text
	}
	return color + text + colorReset
}

func (cfg *config) colorStatus(code int) string {
	status := strconv.Itoa(code)
	switch code / 100 {
	case 2:
		return cfg.colorize(colorGreen, status)
	case 3:
		return cfg.colorize(colorCyan, status)
	case 4:
		return cfg.colorize(colorYellow, status)
	case 5:
		return cfg.colorize(colorRed, status)
	}
	return status
}

func (cfg *config) colorHeaderKey(key string) string {
	return cfg.colorize(colorCyan, key)
}

// headerFlags collects repeated -H flags.
type headerFlags []string

func (h *headerFlags) String() string { return strings.Join(*h, ", ") }

func (h *headerFlags) Set(v string) error {
	*h = append(*h, v)
	return nil
}

func main() {
	cfg, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "[!] Error: %v\n", err)
		}
		os.Exit(exitUsage)
	}

	// Use colors if stdout is a terminal and --no-color is not set
	cfg.useColor = !cfg.noColor && term.IsTerminal(int(os.Stdout.Fd()))

	if err := run(context.Background(), cfg, os.Stdout, os.Stderr); err != nil {
		if !cfg.quiet {
			fmt.Fprintf(os.Stderr, "[!] Error: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

func parseArgs(args []string, stderr io.Writer) (*config, error) {
	cfg := &config{}
	var headers headerFlags

	fs := flag.NewFlagSet("htget", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Var(&headers, "H", "Add a request header \"Name: value\" (repeatable)")
	fs.BoolVar(&cfg.env, "env", false, "Expand environment variables ($VAR or ${VAR}) in URL, headers and arguments")
	fs.StringVar(&cfg.envFile, "env-file", "", "Load environment variables from file (enables --env)")
	fs.BoolVar(&cfg.http10, "http1.0", false, "Send an HTTP/1.0 request line")
	fs.DurationVar(&cfg.timeout, "timeout", httpclient.DefaultConnectTimeout, "Connect timeout")
	fs.DurationVar(&cfg.readTimeout, "read-timeout", httpclient.DefaultReadTimeout, "Time allowed to read the whole response")
	fs.DurationVar(&cfg.settle, "settle", 0, "Pause between sending the request and shutting down the write side")
	fs.Int64Var(&cfg.maxBytes, "max-bytes", 0, "Limit body output to N bytes")
	fs.Int64Var(&cfg.maxResponse, "max-response", 0, "Fail when the response exceeds N bytes")
	fs.StringVar(&cfg.unixSocket, "unix-socket", "", "Connect to Unix socket instead of the URL's host")
	fs.BoolVar(&cfg.printRequest, "print-request", false, "Print the request being sent to stderr")
	fs.BoolVar(&cfg.quiet, "q", false, "Suppress stderr messages")
	fs.BoolVar(&cfg.quiet, "quiet", false, "Suppress stderr messages")
	fs.BoolVar(&cfg.verbose, "v", false, "Verbose connection info")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Verbose connection info")
	fs.BoolVar(&cfg.headersOnly, "head", false, "Print only HTTP response status and headers")
	fs.BoolVar(&cfg.bodyOnly, "body", false, "Print only HTTP response body")
	fs.BoolVar(&cfg.noColor, "no-color", false, "Disable colored output")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: htget [options] [GET|POST] URL [name=value ...]\n\n")
		fmt.Fprintf(stderr, "Send a single HTTP/1.x request over a raw TCP socket.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  htget http://localhost:8080/index.html\n")
		fmt.Fprintf(stderr, "  htget POST http://localhost:8080/form a=1 b='two words'\n")
		fmt.Fprintf(stderr, "  htget -H 'Accept: text/html' GET http://example.com/ q=go\n")
		fmt.Fprintf(stderr, "  htget --unix-socket /var/run/docker.sock http://localhost/version\n")
	}

	// Flags may appear anywhere, so parse again after each positional.
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			break
		}
		positional = append(positional, args[0])
		args = args[1:]
	}

	if len(positional) == 0 {
		fs.Usage()
		return nil, errUsage
	}

	cfg.method = httpclient.MethodGet
	if m := strings.ToUpper(positional[0]); m == httpclient.MethodGet || m == httpclient.MethodPost {
		cfg.method = m
		positional = positional[1:]
	}
	if len(positional) == 0 {
		fs.Usage()
		return nil, errUsage
	}
	cfg.url = positional[0]
	cfg.args = positional[1:]
	cfg.headers = headers

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *config) error {
	// Validate mutually exclusive output options
	if cfg.headersOnly && cfg.bodyOnly {
		return fmt.Errorf("cannot use --head and --body together")
	}
	if cfg.quiet && cfg.verbose {
		return fmt.Errorf("cannot use --quiet and --verbose together")
	}

	if cfg.timeout <= 0 {
		return fmt.Errorf("--timeout must be positive")
	}
	if cfg.readTimeout <= 0 {
		return fmt.Errorf("--read-timeout must be positive")
	}
	if cfg.settle < 0 {
		return fmt.Errorf("--settle must not be negative")
	}
	if cfg.maxBytes < 0 || cfg.maxResponse < 0 {
		return fmt.Errorf("--max-bytes and --max-response must not be negative")
	}

	return nil
}

func newLogger(cfg *config, w io.Writer) zerolog.Logger {
	if cfg.quiet {
		return zerolog.Nop()
	}
	level := zerolog.InfoLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{
		Out:          w,
		NoColor:      !cfg.useColor,
		PartsExclude: []string{zerolog.TimestampFieldName},
	}
	return zerolog.New(out).Level(level)
}

func run(ctx context.Context, cfg *config, stdout, stderr io.Writer) error {
	log := newLogger(cfg, stderr)

	// Load environment file if specified
	if cfg.envFile != "" {
		if err := loadEnvFile(cfg.envFile, log); err != nil {
			return err
		}
		cfg.env = true
	}

	rawURL := cfg.url
	if cfg.env {
		rawURL = expandEnvVars(rawURL)
	}
	headers, err := parseHeaderFlags(cfg.headers, cfg.env)
	if err != nil {
		return err
	}
	args, err := parseFormArgs(cfg.args, cfg.env)
	if err != nil {
		return err
	}

	opts := httpclient.Options{
		ConnectTimeout:   cfg.timeout,
		ReadTimeout:      cfg.readTimeout,
		SettleDelay:      cfg.settle,
		MaxResponseBytes: cfg.maxResponse,
		UnixSocket:       cfg.unixSocket,
		Header:           headers,
		Logger:           &log,
	}
	if cfg.http10 {
		opts.Version = "1.0"
	}
	if cfg.printRequest && !cfg.quiet {
		opts.RequestDump = &requestPrinter{w: stderr}
	}

	// Start timing
	startTime := time.Now()
	resp, err := httpclient.New(opts).Do(ctx, cfg.method, rawURL, args)
	if err != nil {
		return err
	}
	log.Info().
		Int("code", resp.Code).
		Dur("elapsed", time.Since(startTime).Round(time.Millisecond)).
		Msg("response received")

	return writeResponse(stdout, resp, cfg)
}

func exitCode(err error) int {
	if kind := httpclient.KindOf(err); kind != 0 {
		return kind.ExitCode()
	}
	return exitUsage
}

// parseHeaderFlags turns "Name: value" strings into request headers.
func parseHeaderFlags(raw []string, expand bool) (httpclient.Fields, error) {
	var headers httpclient.Fields
	for _, h := range raw {
		if expand {
			h = expandEnvVars(h)
		}
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, &httpclient.Error{
				Kind: httpclient.EncodingFailure,
				Msg:  fmt.Sprintf("invalid header %q, want \"Name: value\"", h),
			}
		}
		headers.Add(name, strings.TrimSpace(value))
	}
	return headers, nil
}

// parseFormArgs turns name=value arguments into form fields.
func parseFormArgs(raw []string, expand bool) (httpclient.Fields, error) {
	var args httpclient.Fields
	for _, a := range raw {
		if expand {
			a = expandEnvVars(a)
		}
		name, value, ok := strings.Cut(a, "=")
		if !ok {
			return nil, &httpclient.Error{
				Kind: httpclient.EncodingFailure,
				Msg:  fmt.Sprintf("invalid argument %q, want name=value", a),
			}
		}
		args.Add(name, value)
	}
	return args, nil
}

func loadEnvFile(path string, log zerolog.Logger) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("environment file not found: %s", path)
	}
	defer func() {
		// Close file, error is not actionable here
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			log.Warn().Str("file", path).Int("line", lineNum).Msg("invalid line in environment file")
			continue
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))

		if err := os.Setenv(key, value); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to set environment variable")
		}
	}

	return scanner.Err()
}

func unquote(value string) string {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// Matches $VAR or ${VAR}
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces set variables and leaves unset ones untouched.
func expandEnvVars(data string) string {
	return envVarPattern.ReplaceAllStringFunc(data, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(match, "$"), "{"), "}")
		if val := os.Getenv(name); val != "" {
			return val
		}
		return match
	})
}

// requestPrinter frames the outgoing request on stderr.
type requestPrinter struct {
	w io.Writer
}

func (p *requestPrinter) Write(data []byte) (int, error) {
	fmt.Fprintf(p.w, "[*] Sending request:\n")
	fmt.Fprintf(p.w, "%s\n", strings.Repeat("-", 40))
	n, err := p.w.Write(data)
	fmt.Fprintf(p.w, "\n%s\n", strings.Repeat("-", 40))
	return n, err
}

func writeResponse(w io.Writer, resp *httpclient.Response, cfg *config) error {
	bw := bufio.NewWriter(w)

	if !cfg.bodyOnly {
		statusLine := cfg.colorize(colorGray, resp.Proto) + " " + cfg.colorStatus(resp.Code)
		if resp.Reason != "" {
			statusLine += " " + resp.Reason
		}
		fmt.Fprintf(bw, "%s\n", statusLine)

		names := make([]string, 0, len(resp.Headers))
		for name := range resp.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(bw, "%s: %s\n", cfg.colorHeaderKey(name), resp.Headers[name])
		}
		if !cfg.headersOnly {
			fmt.Fprintln(bw)
		}
	}

	if !cfg.headersOnly {
		body := resp.Body
		if cfg.maxBytes > 0 && int64(len(body)) > cfg.maxBytes {
			body = body[:cfg.maxBytes]
		}
		if _, err := bw.WriteString(body); err != nil {
			return err
		}
	}

	return bw.Flush()
}
