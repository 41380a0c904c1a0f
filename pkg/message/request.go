// Package message defines the structured request and response values
// exchanged with an HTTP/1.1 peer.
package message

// Method is an HTTP request method token.
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodConnect Method = "CONNECT"
	MethodOptions Method = "OPTIONS"
	MethodTrace   Method = "TRACE"
)

func (m Method) String() string {
	return string(m)
}

// Pair is one query parameter.
type Pair struct {
	Key   string
	Value string
}

// Query is an ordered list of query parameters. Keys may repeat.
type Query []Pair

// Add appends a parameter.
func (q *Query) Add(key, value string) {
	*q = append(*q, Pair{Key: key, Value: value})
}

// Get returns the first value stored under key.
func (q Query) Get(key string) string {
	for _, p := range q {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Request is a structured HTTP/1.1 request.
//
// Path and the query keys and values hold their decoded form; the encoder
// percent-encodes them exactly once when the request is put on the wire.
type Request struct {
	Method Method
	Path   string
	Query  Query
	Header Header
	Body   []byte
}

// NewRequest returns a request with the given method and path.
func NewRequest(method Method, path string) *Request {
	return &Request{
		Method: method,
		Path:   path,
	}
}

// WithQuery appends a query parameter.
func (r *Request) WithQuery(key, value string) *Request {
	r.Query.Add(key, value)
	return r
}

// WithHeader appends a header field.
func (r *Request) WithHeader(name, value string) *Request {
	r.Header.Add(name, value)
	return r
}

// WithBody sets the request body.
func (r *Request) WithBody(body []byte) *Request {
	r.Body = body
	return r
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	c := *r
	c.Query = append(Query(nil), r.Query...)
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}
