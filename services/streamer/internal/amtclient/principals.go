// services/streamer/internal/amtclient/principals.go
package amtclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const principalsFields = "streamerSubscriptionKeys,streamerConnectionInfo"

var tokenTimestampLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(b)
	return nil
}

// Principals is the subset of the user-principals response used to open a
// streaming session.
type Principals struct {
	Accounts []struct {
		AccountID         flexString `json:"accountId"`
		Company           flexString `json:"company"`
		Segment           flexString `json:"segment"`
		AccountCdDomainID flexString `json:"accountCdDomainId"`
	} `json:"accounts"`
	StreamerInfo struct {
		StreamerSocketURL string     `json:"streamerSocketUrl"`
		Token             string     `json:"token"`
		TokenTimestamp    string     `json:"tokenTimestamp"`
		UserGroup         flexString `json:"userGroup"`
		AccessLevel       flexString `json:"accessLevel"`
		ACL               string     `json:"acl"`
		AppID             flexString `json:"appId"`
	} `json:"streamerInfo"`
}

// Credentials is the streaming login credential derived from Principals.
type Credentials struct {
	UserID      string
	Token       string
	Company     string
	Segment     string
	CDDomain    string
	UserGroup   string
	AccessLevel string
	Authorized  string
	Timestamp   int64 // epoch ms, second precision
	AppID       string
	ACL         string
}

// Encode returns the urlencoded credential string in the provider's
// canonical field order.
func (c Credentials) Encode() string {
	pairs := [][2]string{
		{"userid", c.UserID},
		{"token", c.Token},
		{"company", c.Company},
		{"segment", c.Segment},
		{"cddomain", c.CDDomain},
		{"usergroup", c.UserGroup},
		{"accesslevel", c.AccessLevel},
		{"authorized", c.Authorized},
		{"timestamp", strconv.FormatInt(c.Timestamp, 10)},
		{"appid", c.AppID},
		{"acl", c.ACL},
	}
	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p[0]))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p[1]))
	}
	return sb.String()
}

// PrincipalsRetriever fetches the user principals once and serves
// projections of the cached response.
type PrincipalsRetriever struct {
	data Principals
}

// NewPrincipalsRetriever performs the authenticated principals call.
func NewPrincipalsRetriever(ctx context.Context, serviceURL string, exec *Executor) (*PrincipalsRetriever, error) {
	var data Principals
	err := exec.Execute(ctx, Request{
		Method:       http.MethodGet,
		URL:          serviceURL,
		ContentType:  ContentJSON,
		Query:        url.Values{"fields": {principalsFields}},
		RequiresAuth: true,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("principals: %w", err)
	}
	return &PrincipalsRetriever{data: data}, nil
}

// Credentials projects the cached response.
func (p *PrincipalsRetriever) Credentials() (Credentials, error) {
	if len(p.data.Accounts) == 0 {
		return Credentials{}, errors.New("principals: response has no accounts")
	}
	ts, err := parseTokenTimestamp(p.data.StreamerInfo.TokenTimestamp)
	if err != nil {
		return Credentials{}, err
	}
	acc := p.data.Accounts[0]
	info := p.data.StreamerInfo
	return Credentials{
		UserID:      string(acc.AccountID),
		Token:       info.Token,
		Company:     string(acc.Company),
		Segment:     string(acc.Segment),
		CDDomain:    string(acc.AccountCdDomainID),
		UserGroup:   string(info.UserGroup),
		AccessLevel: string(info.AccessLevel),
		Authorized:  "Y",
		Timestamp:   ts.Unix() * 1000,
		AppID:       string(info.AppID),
		ACL:         info.ACL,
	}, nil
}

// SocketURL returns the raw socket host, without scheme or path.
func (p *PrincipalsRetriever) SocketURL() string {
	return p.data.StreamerInfo.StreamerSocketURL
}

func parseTokenTimestamp(s string) (time.Time, error) {
	for _, layout := range tokenTimestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("principals: invalid tokenTimestamp %q", s)
}
