package twitter

import "strings"

// API selects which Twitter host a request is sent to.
type API int

const (
	StandardAPI API = iota
	UploadAPI
)

func (a API) String() string {
	if a == UploadAPI {
		return "upload"
	}
	return "standard"
}

// Endpoints holds the base URLs of both API variants. Bases end with "/".
type Endpoints struct {
	API    string
	Upload string
}

// DefaultEndpoints are the public Twitter v1.1 hosts.
var DefaultEndpoints = Endpoints{
	API:    "https://api.twitter.com/1.1/",
	Upload: "https://upload.twitter.com/1.1/",
}

func (e Endpoints) base(api API) string {
	if api == UploadAPI {
		return withSlash(e.Upload)
	}
	return withSlash(e.API)
}

func withSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// Param is a single query parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered list of query parameters. Order is the order of
// insertion and is preserved on the wire.
type Params []Param

// Query builds Params from alternating keys and values. A trailing key
// without a value is ignored.
func Query(kv ...string) Params {
	p := make(Params, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		p = append(p, Param{Key: kv[i], Value: kv[i+1]})
	}
	return p
}

// Add appends a parameter and returns the extended list.
func (p Params) Add(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// Get returns the first value stored under key.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Encode renders the parameters as "?k=v&k=v" in insertion order.
func (p Params) Encode() string {
	var sb strings.Builder
	for i, kv := range p {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(percentEncode(kv.Key))
		sb.WriteByte('=')
		sb.WriteString(percentEncode(kv.Value))
	}
	return sb.String()
}

// Request describes one outbound Twitter API call.
//
// URL is derived once from the API base and Target. The only later change is
// the query string appended by the signer right before signing.
type Request struct {
	URL         string
	Method      string
	Target      string
	API         API
	Body        []byte
	ContentType string
	Query       Params

	queryApplied bool
}

// NewRequest builds a request for target on the given API variant.
func NewRequest(endpoints Endpoints, api API, method, target string, query Params) *Request {
	return &Request{
		URL:    endpoints.base(api) + strings.TrimPrefix(target, "/"),
		Method: strings.ToUpper(method),
		Target: target,
		API:    api,
		Query:  query,
	}
}

// applyQuery appends Query to URL once.
func (r *Request) applyQuery() {
	if r.queryApplied || len(r.Query) == 0 {
		return
	}
	r.URL += r.Query.Encode()
	r.queryApplied = true
}
