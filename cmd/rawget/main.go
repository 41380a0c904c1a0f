// Command rawget sends one HTTP/1.1 request over a bare TCP socket and prints
// the response. Without flags it asks the Google geocoding API for the
// address of 207 N. Defiance St, Archbold, OH.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	rawhttp "github.com/WhileEndless/go-wirehttp"
	"github.com/WhileEndless/go-wirehttp/pkg/message"
)

type pairList []string

func (l *pairList) String() string     { return strings.Join(*l, ", ") }
func (l *pairList) Set(v string) error { *l = append(*l, v); return nil }

func main() {
	var (
		host    = flag.String("host", "maps.google.com", "target host")
		port    = flag.Int("port", 80, "target port")
		path    = flag.String("path", "/maps/api/geocode/json", "request path (unescaped)")
		method  = flag.String("X", "GET", "request method")
		body    = flag.String("d", "", "request body")
		timeout = flag.Duration("timeout", 10*time.Second, "connect and read timeout")
		asJSON  = flag.Bool("json", false, "print a JSON summary instead of the raw body")
		verbose = flag.Bool("v", false, "log exchange details to stderr")
		queries pairList
		headers pairList
	)
	flag.Var(&queries, "q", "query parameter key=value (repeatable)")
	flag.Var(&headers, "H", "header \"Name: value\" (repeatable)")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()

	if len(queries) == 0 && *path == "/maps/api/geocode/json" {
		queries = pairList{"address=207 N. Defiance St, Archbold, OH", "sensor=false"}
	}

	req, err := buildRequest(message.Method(strings.ToUpper(*method)), *path, queries, headers, *body)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid arguments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := rawhttp.DefaultOptions()
	opts.Logger = logger
	opts.UserAgent = "rawget (go-wirehttp)"

	sender := rawhttp.NewSenderWithOptions(opts)
	if err := exchange(ctx, sender, req, *host, *port, *timeout, *asJSON, os.Stdout); err != nil {
		logger.Fatal().Str("type", rawhttp.GetErrorType(err)).Err(err).Msg("request failed")
	}
}

// exchange sends req and prints the response to out. The response, and any
// body spilled to disk, is released before it returns.
func exchange(ctx context.Context, sender *rawhttp.Sender, req *rawhttp.Request, host string, port int, timeout time.Duration, asJSON bool, out io.Writer) error {
	resp, err := sender.Send(ctx, req, host, port, timeout)
	if err != nil {
		return err
	}
	defer resp.Close()

	if asJSON {
		data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(resp.Summary(), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	w := bufio.NewWriter(out)
	fmt.Fprintln(w, resp.StatusLine)
	for _, f := range resp.Header {
		fmt.Fprintf(w, "%s: %s\n", f.Name, f.Value)
	}
	fmt.Fprintln(w)

	data, err := resp.ReadBody()
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	w.Write(data)
	return w.Flush()
}

func buildRequest(method message.Method, path string, queries, headers pairList, body string) (*message.Request, error) {
	req := message.NewRequest(method, path)
	for _, q := range queries {
		k, v, ok := strings.Cut(q, "=")
		if !ok {
			return nil, fmt.Errorf("query %q is not key=value", q)
		}
		req.WithQuery(k, v)
	}
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("header %q is not \"Name: value\"", h)
		}
		req.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if body != "" {
		req.WithBody([]byte(body))
	}
	return req, nil
}
