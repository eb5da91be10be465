// Package auth verifies Telegram WebApp initData signatures.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Header carries the initData query string on Mini App requests.
const Header = "X-Telegram-InitData"

// MaxAge is how long a signed initData payload stays valid.
const MaxAge = 24 * time.Hour

// Verification errors.
var (
	ErrMissing     = errors.New("telegram init data is missing")
	ErrInvalidHash = errors.New("telegram init data hash mismatch")
	ErrExpired     = errors.New("telegram init data expired")
	ErrMalformed   = errors.New("telegram init data is malformed")
)

// WebAppUser is the user object embedded in initData.
type WebAppUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// InitData is a verified initData payload.
type InitData struct {
	AuthDate time.Time
	QueryID  string
	User     *WebAppUser
	Fields   map[string]string
}

// Verifier checks initData against a bot token.
type Verifier struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewVerifier creates a Verifier for botToken.
func NewVerifier(botToken string) *Verifier {
	return &Verifier{
		secret: secretKey(botToken),
		maxAge: MaxAge,
		now:    time.Now,
	}
}

// SetClock overrides the time source used for the freshness check.
func (v *Verifier) SetClock(now func() time.Time) {
	v.now = now
}

// Verify validates raw initData and returns its decoded contents.
func (v *Verifier) Verify(raw string) (*InitData, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissing
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, fmt.Errorf("%w: hash is missing", ErrInvalidHash)
	}
	values.Del("hash")

	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}

	want := hex.EncodeToString(sign(v.secret, fields))
	if !hmac.Equal([]byte(hash), []byte(want)) {
		return nil, ErrInvalidHash
	}

	// A signed payload without auth_date counts as issued at the epoch.
	var authDate int64
	if s, ok := fields["auth_date"]; ok {
		authDate, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: auth_date: %v", ErrMalformed, err)
		}
	}
	age := v.now().Unix() - authDate
	if age > int64(v.maxAge/time.Second) {
		return nil, ErrExpired
	}

	data := &InitData{
		AuthDate: time.Unix(authDate, 0).UTC(),
		QueryID:  fields["query_id"],
		Fields:   fields,
	}
	if userJSON := fields["user"]; userJSON != "" {
		var u WebAppUser
		if err := json.Unmarshal([]byte(userJSON), &u); err != nil {
			return nil, fmt.Errorf("%w: user: %v", ErrMalformed, err)
		}
		data.User = &u
	}
	return data, nil
}

// Sign returns the hex hash Telegram would attach to fields for botToken.
func Sign(botToken string, fields map[string]string) string {
	return hex.EncodeToString(sign(secretKey(botToken), fields))
}

// Encode builds a signed initData query string from fields.
func Encode(botToken string, fields map[string]string) string {
	q := url.Values{}
	for k, v := range fields {
		q.Set(k, v)
	}
	q.Set("hash", Sign(botToken, fields))
	return q.Encode()
}

// DataCheckString joins fields as sorted key=value lines.
func DataCheckString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + fields[k]
	}
	return strings.Join(lines, "\n")
}

func secretKey(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

func sign(secret []byte, fields map[string]string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(DataCheckString(fields)))
	return mac.Sum(nil)
}

// ParseUser decodes the user field of raw without checking the hash.
// It is only meant for development mode without a bot token.
func ParseUser(raw string) (*WebAppUser, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	userJSON := values.Get("user")
	if userJSON == "" {
		return nil, fmt.Errorf("%w: user is missing", ErrMalformed)
	}
	var u WebAppUser
	if err := json.Unmarshal([]byte(userJSON), &u); err != nil {
		return nil, fmt.Errorf("%w: user: %v", ErrMalformed, err)
	}
	return &u, nil
}
