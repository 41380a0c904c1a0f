package parser

import (
	"strconv"
	"strings"
	"testing"

	"github.com/dchest/uniuri"
	"github.com/stretchr/testify/require"

	"github.com/WhileEndless/go-wirehttp/pkg/errors"
	"github.com/WhileEndless/go-wirehttp/pkg/message"
)

func feedAll(t *testing.T, p *Parser, pieces ...string) []byte {
	t.Helper()
	var rest []byte
	for _, piece := range pieces {
		var err error
		rest, err = p.Feed([]byte(piece))
		require.NoError(t, err)
	}
	return rest
}

func bodyOf(t *testing.T, resp *message.Response) string {
	t.Helper()
	data, err := resp.ReadBody()
	require.NoError(t, err)
	return string(data)
}

func TestParser(t *testing.T) {
	t.Run("simple response", func(t *testing.T) {
		raw := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello"
		p := New(Options{})
		rest := feedAll(t, p, raw)
		require.Empty(t, rest)
		require.Equal(t, Done, p.State())

		resp := p.Response()
		require.NotNil(t, resp)
		require.Equal(t, "HTTP/1.1", resp.Proto)
		require.Equal(t, 200, resp.StatusCode)
		require.Equal(t, "OK", resp.Reason)
		require.Equal(t, "HTTP/1.1 200 OK", resp.StatusLine)
		require.Equal(t, "text/plain", resp.Header.Get("content-type"))
		require.Equal(t, message.BodyLength, resp.BodyMode)
		require.Equal(t, "hello", bodyOf(t, resp))
		require.EqualValues(t, len(raw), resp.RawBytes)
	})

	t.Run("split body with leftover", func(t *testing.T) {
		p := New(Options{})
		head := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n"
		rest := feedAll(t, p, head+"hel")
		require.Nil(t, rest)
		require.Equal(t, AwaitingBody, p.State())
		require.EqualValues(t, 2, p.Remaining())
		require.Nil(t, p.Response())

		rest = feedAll(t, p, "loEXTRA")
		require.Equal(t, "EXTRA", string(rest))
		require.Equal(t, "hello", bodyOf(t, p.Response()))
		require.EqualValues(t, len(head)+5, p.Response().RawBytes)

		rest = feedAll(t, p, "more")
		require.Equal(t, "more", string(rest))
	})

	t.Run("until close", func(t *testing.T) {
		p := New(Options{})
		feedAll(t, p, "HTTP/1.0 200 OK\r\nServer: test\r\n\r\n", "O", "K")
		require.Equal(t, AwaitingBody, p.State())
		require.Equal(t, message.BodyUntilClose, p.Mode())

		require.NoError(t, p.CloseInput())
		resp := p.Response()
		require.NotNil(t, resp)
		require.Equal(t, "HTTP/1.0", resp.Proto)
		require.Equal(t, message.BodyUntilClose, resp.BodyMode)
		require.Equal(t, "OK", bodyOf(t, resp))

		require.NoError(t, p.CloseInput())
	})

	t.Run("chunked", func(t *testing.T) {
		raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
		for _, split := range []int{1, 20, len(raw) - 30, len(raw) - 9, len(raw) - 3, len(raw)} {
			t.Run(strconv.Itoa(split), func(t *testing.T) {
				p := New(Options{})
				rest := feedAll(t, p, raw[:split], raw[split:])
				require.Empty(t, rest)
				require.Equal(t, Done, p.State())
				resp := p.Response()
				require.Equal(t, message.BodyChunked, resp.BodyMode)
				require.Equal(t, "Wikipedia", bodyOf(t, resp))
			})
		}
	})

	t.Run("chunked with trailer", func(t *testing.T) {
		p := New(Options{})
		rest := feedAll(t, p,
			"HTTP/1.1 200 OK\r\nTransfer-Encoding: gzip, chunked\r\nTrailer: Expires\r\n\r\n",
			"3\r\nabc\r\n0\r\nExpires: never\r\n\r\nNEXT",
		)
		require.Equal(t, "NEXT", string(rest))
		require.Equal(t, "abc", bodyOf(t, p.Response()))
	})

	t.Run("chunked wins over content length", func(t *testing.T) {
		p := New(Options{})
		feedAll(t, p, "HTTP/1.1 200 OK\r\nContent-Length: 100\r\nTransfer-Encoding: chunked\r\n\r\n2\r\nhi\r\n0\r\n\r\n")
		require.Equal(t, "hi", bodyOf(t, p.Response()))
	})

	t.Run("duplicate headers are kept", func(t *testing.T) {
		p := New(Options{})
		feedAll(t, p, "HTTP/1.1 200 OK\r\nSet-Cookie: a=1\r\nset-cookie: b=2\r\nContent-Length: 0\r\n\r\n")
		resp := p.Response()
		require.Equal(t, []string{"a=1", "b=2"}, resp.Header.Values("Set-Cookie"))
		require.Equal(t, message.BodyNone, resp.BodyMode)
	})

	t.Run("byte by byte", func(t *testing.T) {
		raw := "HTTP/1.1 404 Not Found\r\nContent-Length: 3\r\nX-Multi: a b\r\n\r\nnop"
		p := New(Options{})
		for i := 0; i < len(raw); i++ {
			rest, err := p.Feed([]byte{raw[i]})
			require.NoError(t, err)
			require.Empty(t, rest)
		}
		resp := p.Response()
		require.NotNil(t, resp)
		require.Equal(t, 404, resp.StatusCode)
		require.Equal(t, "Not Found", resp.Reason)
		require.Equal(t, "a b", resp.Header.Get("X-Multi"))
		require.Equal(t, "nop", bodyOf(t, resp))
		require.EqualValues(t, len(raw), resp.RawBytes)
	})

	t.Run("bare LF line endings", func(t *testing.T) {
		p := New(Options{})
		feedAll(t, p, "HTTP/1.1 200 OK\nContent-Length: 2\n\nok")
		require.Equal(t, "ok", bodyOf(t, p.Response()))
	})

	t.Run("empty reason", func(t *testing.T) {
		p := New(Options{})
		feedAll(t, p, "HTTP/1.1 200 \r\nContent-Length: 0\r\n\r\n")
		require.Equal(t, "", p.Response().Reason)
	})

	t.Run("value whitespace", func(t *testing.T) {
		p := New(Options{})
		feedAll(t, p, "HTTP/1.1 200 OK\r\nX-Pad:  \t padded value  \r\nX-Empty:\r\nContent-Length: 0\r\n\r\n")
		resp := p.Response()
		require.Equal(t, "padded value  ", resp.Header.Get("X-Pad"))
		v, ok := resp.Header.Lookup("X-Empty")
		require.True(t, ok)
		require.Empty(t, v)
	})

	t.Run("obs-fold", func(t *testing.T) {
		p := New(Options{})
		feedAll(t, p, "HTTP/1.1 200 OK\r\nX-Folded: first\r\n  second\r\n\tthird\r\nContent-Length: 0\r\n\r\n")
		require.Equal(t, "first second third", p.Response().Header.Get("X-Folded"))
	})
}

func TestParserBodyFraming(t *testing.T) {
	t.Run("head response has no body", func(t *testing.T) {
		p := New(Options{Method: message.MethodHead})
		rest := feedAll(t, p, "HTTP/1.1 200 OK\r\nContent-Length: 1024\r\n\r\n")
		require.Empty(t, rest)
		resp := p.Response()
		require.NotNil(t, resp)
		require.Equal(t, message.BodyNone, resp.BodyMode)
		require.Zero(t, resp.BodyBytes())
	})

	for _, code := range []int{204, 304} {
		t.Run(strconv.Itoa(code), func(t *testing.T) {
			p := New(Options{})
			rest := feedAll(t, p, "HTTP/1.1 "+strconv.Itoa(code)+" Whatever\r\nContent-Length: 10\r\n\r\nnext")
			require.Equal(t, "next", string(rest))
			require.Equal(t, message.BodyNone, p.Response().BodyMode)
		})
	}

	t.Run("interim responses are skipped", func(t *testing.T) {
		p := New(Options{})
		feedAll(t, p,
			"HTTP/1.1 100 Continue\r\nX-Interim: yes\r\n\r\n",
			"HTTP/1.1 103 Early Hints\r\nLink: </style.css>\r\n\r\nHTTP/1.1 201 Created\r\nContent-Length: 2\r\n\r\nok",
		)
		resp := p.Response()
		require.NotNil(t, resp)
		require.Equal(t, 201, resp.StatusCode)
		require.Equal(t, "HTTP/1.1 201 Created", resp.StatusLine)
		require.False(t, resp.Header.Has("X-Interim"))
		require.False(t, resp.Header.Has("Link"))
		require.Equal(t, "ok", bodyOf(t, resp))
	})

	t.Run("invalid content length reads until close", func(t *testing.T) {
		p := New(Options{})
		feedAll(t, p, "HTTP/1.1 200 OK\r\nContent-Length: abc\r\n\r\npayload")
		require.Equal(t, message.BodyUntilClose, p.Mode())
		require.NoError(t, p.CloseInput())
		require.Equal(t, "payload", bodyOf(t, p.Response()))
	})

	t.Run("negative content length reads until close", func(t *testing.T) {
		p := New(Options{})
		feedAll(t, p, "HTTP/1.1 200 OK\r\nContent-Length: -1\r\n\r\n")
		require.Equal(t, message.BodyUntilClose, p.Mode())
	})

	t.Run("repeated identical content length", func(t *testing.T) {
		p := New(Options{})
		feedAll(t, p, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\nContent-Length: 2\r\n\r\nok")
		require.Equal(t, "ok", bodyOf(t, p.Response()))
	})

	t.Run("conflicting content length", func(t *testing.T) {
		p := New(Options{})
		_, err := p.Feed([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\nContent-Length: 3\r\n\r\nok"))
		require.ErrorIs(t, err, errors.ErrMalformedBody)
		require.Equal(t, Failed, p.State())
	})

	t.Run("oversized content length", func(t *testing.T) {
		for _, v := range []string{"999999999999999999999", "1099511627777"} {
			p := New(Options{})
			_, err := p.Feed([]byte("HTTP/1.1 200 OK\r\nContent-Length: " + v + "\r\n\r\n"))
			require.ErrorIs(t, err, errors.ErrMalformedBody, "content-length %s", v)
		}
	})

	t.Run("body spills past memory limit", func(t *testing.T) {
		p := New(Options{BodyMemLimit: 4})
		feedAll(t, p, "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\n", "0123456789")
		resp := p.Response()
		defer resp.Close()
		require.True(t, resp.Body.IsSpilled())
		require.Equal(t, "0123456789", bodyOf(t, resp))
	})
}

func TestParserErrors(t *testing.T) {
	t.Run("header without colon", func(t *testing.T) {
		p := New(Options{})
		_, err := p.Feed([]byte("HTTP/1.1 200 OK\r\nBadHeader\r\n\r\n"))
		require.ErrorIs(t, err, errors.ErrMalformedHeader)
		require.Equal(t, Failed, p.State())
		require.Nil(t, p.Response())
		require.Equal(t, err, p.Err())

		rest, again := p.Feed([]byte("more"))
		require.Nil(t, rest)
		require.Equal(t, err, again)
		require.Equal(t, err, p.CloseInput())
	})

	t.Run("invalid header name", func(t *testing.T) {
		p := New(Options{})
		_, err := p.Feed([]byte("HTTP/1.1 200 OK\r\nBad Name: x\r\n\r\n"))
		require.ErrorIs(t, err, errors.ErrMalformedHeader)
	})

	t.Run("whitespace before colon", func(t *testing.T) {
		p := New(Options{})
		_, err := p.Feed([]byte("HTTP/1.1 200 OK\r\nServer : nginx\r\n\r\n"))
		require.ErrorIs(t, err, errors.ErrMalformedHeader)
		require.Nil(t, p.Response())
	})

	t.Run("continuation without header", func(t *testing.T) {
		p := New(Options{})
		_, err := p.Feed([]byte("HTTP/1.1 200 OK\r\n folded\r\n\r\n"))
		require.ErrorIs(t, err, errors.ErrMalformedHeader)
	})

	t.Run("status line", func(t *testing.T) {
		for _, line := range []string{
			"HTTP/1.1 200",
			"HTTP/1.1",
			"garbage",
			"ICY 200 OK",
			"HTTP/1.1 20 OK",
			"HTTP/1.1 2000 OK",
			"HTTP/1.1 abc OK",
			"HTTP/1.1 099 Low",
			"HTTP/1.1 600 High",
			"",
		} {
			p := New(Options{})
			_, err := p.Feed([]byte(line + "\r\n\r\n"))
			require.ErrorIs(t, err, errors.ErrMalformedStatusLine, "line %q", line)
			require.Nil(t, p.Response())
		}
	})

	t.Run("status line too long", func(t *testing.T) {
		p := New(Options{MaxStatusLineBytes: 16})
		_, err := p.Feed([]byte("HTTP/1.1 200 " + strings.Repeat("A", 32)))
		require.ErrorIs(t, err, errors.ErrMalformedStatusLine)
	})

	t.Run("header section too long", func(t *testing.T) {
		p := New(Options{MaxHeaderBytes: 64})
		_, err := p.Feed([]byte("HTTP/1.1 200 OK\r\n"))
		require.NoError(t, err)
		for i := 0; i < 10 && err == nil; i++ {
			_, err = p.Feed([]byte("X-Filler: 0123456789\r\n"))
		}
		require.ErrorIs(t, err, errors.ErrMalformedHeader)
	})

	t.Run("invalid chunk size", func(t *testing.T) {
		p := New(Options{})
		_, err := p.Feed([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n"))
		require.ErrorIs(t, err, errors.ErrMalformedBody)
	})
}

func TestParserCloseInput(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no bytes", ""},
		{"inside status line", "HTTP/1.1 20"},
		{"inside headers", "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n"},
		{"short length body", "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nhello"},
		{"unfinished chunked body", "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhel"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := New(Options{})
			feedAll(t, p, tc.data)
			err := p.CloseInput()
			require.ErrorIs(t, err, errors.ErrTruncatedResponse)
			require.Equal(t, Failed, p.State())
			require.Nil(t, p.Response())
		})
	}

	t.Run("reports progress", func(t *testing.T) {
		p := New(Options{})
		feedAll(t, p, "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nhello")
		require.ErrorContains(t, p.CloseInput(), "5 of 10")
	})
}

func TestParserRandomHeaders(t *testing.T) {
	var (
		sb   strings.Builder
		want message.Header
	)
	sb.WriteString("HTTP/1.1 200 OK\r\n")
	for i := 0; i < 20; i++ {
		name, value := "X-"+uniuri.NewLen(8), uniuri.NewLen(24)
		want.Add(name, value)
		sb.WriteString(name + ": " + value + "\r\n")
	}
	sb.WriteString("Content-Length: 0\r\n\r\n")
	want.Add("Content-Length", "0")

	raw := sb.String()
	for _, size := range []int{1, 7, 64, len(raw)} {
		t.Run(strconv.Itoa(size), func(t *testing.T) {
			p := New(Options{})
			for data := raw; len(data) > 0; {
				n := min(size, len(data))
				rest, err := p.Feed([]byte(data[:n]))
				require.NoError(t, err)
				require.Empty(t, rest)
				data = data[n:]
			}
			require.Equal(t, want, p.Response().Header)
		})
	}
}

func TestStateString(t *testing.T) {
	require.Equal(t, "awaiting-status-line", AwaitingStatusLine.String())
	require.Equal(t, "done", Done.String())
	require.True(t, Failed.Terminal())
	require.False(t, AwaitingBody.Terminal())
}
