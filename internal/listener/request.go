package listener

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Request lines the listener recognizes. Anything else is answered with 404.
const (
	rootRequest  = "GET / HTTP/1.1"
	sleepRequest = "GET /sleep HTTP/1.1"
)

const (
	maxRequestLine = 8 << 10
	maxHeaderBytes = 64 << 10
)

var errLineTooLong = errors.New("request line too long")

// route is the outcome of matching a request line.
type route struct {
	// name labels metrics and logs.
	name   string
	status int
	reason string
	page   string
	sleep  bool
}

var (
	routeRoot     = route{name: "/", status: 200, reason: "OK", page: HelloPage}
	routeSleep    = route{name: "/sleep", status: 200, reason: "OK", page: HelloPage, sleep: true}
	routeNotFound = route{name: "not_found", status: 404, reason: "NOT FOUND", page: NotFoundPage}
)

// match maps an exact request line to a route.
func match(requestLine string) route {
	switch requestLine {
	case rootRequest:
		return routeRoot
	case sleepRequest:
		return routeSleep
	default:
		return routeNotFound
	}
}

// readRequestLine returns the first line of the request without its line
// terminator, then consumes the header block up to the blank line so the
// connection holds no unread input when it is closed.
func readRequestLine(r io.Reader) (string, error) {
	br := bufio.NewReaderSize(io.LimitReader(r, maxHeaderBytes), maxRequestLine+2)
	line, err := readLine(br)
	if err != nil {
		return "", err
	}
	for {
		header, err := readLine(br)
		if err != nil || header == "" {
			// A request without a header block is still answered.
			return line, nil
		}
	}
}

func readLine(br *bufio.Reader) (string, error) {
	raw, err := br.ReadString('\n')
	line := strings.TrimRight(raw, "\r\n")
	if len(line) > maxRequestLine {
		return "", errLineTooLong
	}
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		return "", fmt.Errorf("read request line: %w", err)
	}
	return line, nil
}

// writeResponse writes a minimal HTTP/1.1 response with a Content-Length header.
func writeResponse(w io.Writer, rt route, body []byte) error {
	var b strings.Builder
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(rt.status))
	b.WriteByte(' ')
	b.WriteString(rt.reason)
	b.WriteString("\r\nContent-Type: text/html; charset=utf-8")
	b.WriteString("\r\nContent-Length: ")
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteString("\r\nConnection: close\r\n\r\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write response head: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write response body: %w", err)
	}
	return nil
}
