package actor

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	// PathInit initializes the store then dumps it
	PathInit = "/init"
	// PathDump dumps the store
	PathDump = "/dump"
)

// Request is a request made to an actor
type Request struct {
	Method string
	Path   string
}

// NewRequest creates a GET request for path
func NewRequest(path string) *Request {
	return &Request{Method: http.MethodGet, Path: path}
}

// Response is an actor's reply to a successful request
type Response struct {
	Status int
	Body   []byte
	// Values holds the dumped values in ascending key order
	Values [][]byte
}

func newDumpResponse(values [][]byte) *Response {
	return &Response{
		Status: http.StatusOK,
		Body:   []byte(renderValues(values)),
		Values: values,
	}
}

// renderValues renders values as a list of byte lists,
// e.g. [[0, 0], [0, 0]]
func renderValues(values [][]byte) string {
	var sb strings.Builder
	var buf []byte

	sb.WriteByte('[')

	for i, value := range values {
		if i > 0 {
			sb.WriteString(", ")
		}

		sb.WriteByte('[')

		for j, b := range value {
			if j > 0 {
				sb.WriteString(", ")
			}

			buf = strconv.AppendUint(buf[:0], uint64(b), 10)
			sb.Write(buf)
		}

		sb.WriteByte(']')
	}

	sb.WriteByte(']')

	return sb.String()
}
