package pcapfile

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"
)

const maxMessageSize = 64 << 20

var methods = []string{
	"GET ", "POST ", "PUT ", "DELETE ", "HEAD ", "OPTIONS ", "PATCH ", "CONNECT ", "TRACE ",
}

// isHTTPStart reports whether payload begins with a request line or status line.
func isHTTPStart(payload []byte) bool {
	if bytes.HasPrefix(payload, []byte("HTTP/1.")) {
		return true
	}
	for _, m := range methods {
		if bytes.HasPrefix(payload, []byte(m)) {
			return true
		}
	}
	return false
}

// message is a fully received HTTP message.
type message struct {
	isResponse bool
	statusCode int
	fullURI    string
	body       []byte
	length     int // bytes of the buffer the message occupies
}

// headerEnd returns the offset just past the header terminator, or -1.
func headerEnd(buf []byte) int {
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return i + 4
	}
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return i + 2
	}
	return -1
}

// parseMessage tries to complete one message from the start of buf.
// ok is false while more bytes are needed.
func parseMessage(buf []byte) (msg message, ok bool, err error) {
	end := headerEnd(buf)
	if end < 0 {
		return msg, false, nil
	}
	head := bufio.NewReader(bytes.NewReader(buf[:end]))

	var (
		contentLength int64
		chunked       bool
		noBody        bool
	)
	if bytes.HasPrefix(buf, []byte("HTTP/")) {
		resp, err := http.ReadResponse(head, nil)
		if err != nil {
			return msg, false, err
		}
		msg.isResponse = true
		msg.statusCode = resp.StatusCode
		contentLength = resp.ContentLength
		chunked = isChunked(resp.TransferEncoding)
		noBody = resp.StatusCode/100 == 1 || resp.StatusCode == http.StatusNoContent ||
			resp.StatusCode == http.StatusNotModified
	} else {
		req, err := http.ReadRequest(head)
		if err != nil {
			return msg, false, err
		}
		msg.fullURI = fullURI(req)
		contentLength = req.ContentLength
		chunked = isChunked(req.TransferEncoding)
		// requests without a length have no body
		noBody = !chunked && contentLength <= 0
	}

	rest := buf[end:]
	switch {
	case noBody:
		msg.length = end
	case chunked:
		body, n, done := dechunk(rest)
		if !done {
			return msg, false, nil
		}
		msg.body = body
		msg.length = end + n
	case contentLength >= 0:
		if int64(len(rest)) < contentLength {
			return msg, false, nil
		}
		msg.body = rest[:contentLength]
		msg.length = end + int(contentLength)
	default:
		// response delimited by connection close: ends with what we have
		msg.body = rest
		msg.length = len(buf)
	}
	return msg, true, nil
}

func isChunked(te []string) bool {
	for _, v := range te {
		if strings.EqualFold(v, "chunked") {
			return true
		}
	}
	return false
}

// dechunk decodes a complete chunked body and reports how many raw bytes it
// consumed, including any trailer section.
func dechunk(raw []byte) ([]byte, int, bool) {
	src := bytes.NewReader(raw)
	br := bufio.NewReader(src)
	body, err := io.ReadAll(httputil.NewChunkedReader(br))
	if err != nil {
		return nil, 0, false
	}
	consumed := len(raw) - src.Len() - br.Buffered()
	// trailer section ends with an empty line
	tail := raw[consumed:]
	end := headerEnd(tail)
	if bytes.HasPrefix(tail, []byte("\r\n")) {
		end = 2
	} else if bytes.HasPrefix(tail, []byte("\n")) {
		end = 1
	}
	if end < 0 {
		return nil, 0, false
	}
	return body, consumed + end, true
}

func fullURI(req *http.Request) string {
	if req.URL.IsAbs() {
		return req.URL.String()
	}
	return "http://" + req.Host + req.URL.RequestURI()
}
