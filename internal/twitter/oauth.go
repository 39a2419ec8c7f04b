package twitter

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	signatureMethod = "HMAC-SHA1"
	oauthVersion    = "1.0"
	nonceLength     = 32
)

// Credentials are the app (consumer) and bot account (access token) keys.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Validate reports which credentials are empty.
func (c Credentials) Validate() error {
	var missing []string
	if c.ConsumerKey == "" {
		missing = append(missing, "consumer key")
	}
	if c.ConsumerSecret == "" {
		missing = append(missing, "consumer secret")
	}
	if c.AccessToken == "" {
		missing = append(missing, "access token")
	}
	if c.AccessTokenSecret == "" {
		missing = append(missing, "access token secret")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

// SignerConfig configures a Signer. Nonce and Now default to crypto/rand and
// time.Now; tests replace them to get reproducible signatures.
type SignerConfig struct {
	Credentials Credentials
	Nonce       func() string
	Now         func() time.Time
}

// Signer produces OAuth 1.0a HMAC-SHA1 Authorization headers.
type Signer struct {
	creds Credentials
	nonce func() string
	now   func() time.Time
}

func NewSigner(cfg SignerConfig) *Signer {
	if cfg.Nonce == nil {
		cfg.Nonce = randomNonce
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Signer{creds: cfg.Credentials, nonce: cfg.Nonce, now: cfg.Now}
}

// AuthHeader appends req.Query to req.URL and returns the Authorization
// header value for the request. Every call uses a new nonce and timestamp.
func (s *Signer) AuthHeader(req *Request) string {
	req.applyQuery()

	oauth := []Param{
		{Key: "oauth_consumer_key", Value: s.creds.ConsumerKey},
		{Key: "oauth_nonce", Value: s.nonce()},
		{Key: "oauth_signature_method", Value: signatureMethod},
		{Key: "oauth_timestamp", Value: strconv.FormatInt(s.now().Unix(), 10)},
		{Key: "oauth_token", Value: s.creds.AccessToken},
		{Key: "oauth_version", Value: oauthVersion},
	}

	baseURL, query := splitURL(req.URL)
	all := append(append([]Param{}, oauth...), query...)
	base := signatureBase(req.Method, baseURL, all)

	oauth = append(oauth, Param{Key: "oauth_signature", Value: s.sign(base)})
	return authorizationHeader(oauth)
}

func (s *Signer) sign(base string) string {
	key := percentEncode(s.creds.ConsumerSecret) + "&" + percentEncode(s.creds.AccessTokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// signatureBase builds METHOD&url&params as defined by RFC 5849 section 3.4.1.
func signatureBase(method, baseURL string, params []Param) string {
	encoded := make([]Param, len(params))
	for i, p := range params {
		encoded[i] = Param{Key: percentEncode(p.Key), Value: percentEncode(p.Value)}
	}
	sort.Slice(encoded, func(i, j int) bool {
		if encoded[i].Key == encoded[j].Key {
			return encoded[i].Value < encoded[j].Value
		}
		return encoded[i].Key < encoded[j].Key
	})

	pairs := make([]string, len(encoded))
	for i, p := range encoded {
		pairs[i] = p.Key + "=" + p.Value
	}

	return strings.ToUpper(method) + "&" +
		percentEncode(baseURL) + "&" +
		percentEncode(strings.Join(pairs, "&"))
}

func authorizationHeader(params []Param) string {
	sorted := append([]Param{}, params...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	parts := make([]string, len(sorted))
	for i, p := range sorted {
		parts[i] = percentEncode(p.Key) + `="` + percentEncode(p.Value) + `"`
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// splitURL separates the normalized base URL from its decoded query
// parameters. Unparseable URLs are signed as-is.
func splitURL(raw string) (string, []Param) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, nil
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (scheme == "http" && strings.HasSuffix(host, ":80")) ||
		(scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	base := scheme + "://" + host + u.EscapedPath()

	var params []Param
	if u.RawQuery != "" {
		for _, pair := range strings.Split(u.RawQuery, "&") {
			if pair == "" {
				continue
			}
			k, v, _ := strings.Cut(pair, "=")
			params = append(params, Param{Key: unescape(k), Value: unescape(v)})
		}
	}
	return base, params
}

func unescape(s string) string {
	if out, err := url.QueryUnescape(s); err == nil {
		return out
	}
	return s
}

// percentEncode implements RFC 3986 encoding: everything except
// ALPHA / DIGIT / "-" / "." / "_" / "~" is escaped with uppercase hex.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0F])
	}
	return sb.String()
}

func randomNonce() string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, nonceLength)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}
