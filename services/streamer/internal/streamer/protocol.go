// services/streamer/internal/streamer/protocol.go
package streamer

import (
	"encoding/json"

	"github.com/YaganovValera/market-stream/services/streamer/internal/amtclient"
)

const protocolVersion = "1.0"

type loginEnvelope struct {
	Requests []loginRequest `json:"requests"`
}

type loginRequest struct {
	Service    string      `json:"service"`
	Command    string      `json:"command"`
	RequestID  int         `json:"requestid"`
	Account    string      `json:"account"`
	Source     string      `json:"source"`
	Parameters loginParams `json:"parameters"`
}

type loginParams struct {
	Credential string `json:"credential"`
	Token      string `json:"token"`
	Version    string `json:"version"`
}

func loginFrame(creds amtclient.Credentials) ([]byte, error) {
	return json.Marshal(loginEnvelope{Requests: []loginRequest{{
		Service:   "ADMIN",
		Command:   "LOGIN",
		RequestID: 0,
		Account:   creds.UserID,
		Source:    creds.AppID,
		Parameters: loginParams{
			Credential: creds.Encode(),
			Token:      creds.Token,
			Version:    protocolVersion,
		},
	}}})
}
