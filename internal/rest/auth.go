package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"tuleapsync/internal/codec"
)

const (
	HeaderAuthToken  = "X-Auth-Token"
	HeaderAuthUserID = "X-Auth-UserId"
)

type Token struct {
	UserID string
	Value  string
}

// Authenticator provides the token attached to requests and renews it.
type Authenticator interface {
	Token() (Token, bool)
	Login(ctx context.Context) error
}

type Credentials struct {
	Username string
	Password string
}

// TokenAuthenticator trades credentials for a token on the tokens
// resource. It is not safe for concurrent use.
type TokenAuthenticator struct {
	Conn        Connector
	Codec       *codec.Registry
	Credentials Credentials

	token *Token
}

func (a *TokenAuthenticator) Token() (Token, bool) {
	if a.token == nil {
		return Token{}, false
	}
	return *a.token, true
}

func (a *TokenAuthenticator) Login(ctx context.Context) error {
	body, err := a.Codec.EncodeCredentials(a.Credentials.Username, a.Credentials.Password)
	if err != nil {
		return err
	}
	req := NewRequest(http.MethodPost, "tokens", Body(body))
	resp, err := a.Conn.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("login %s: %w", a.Credentials.Username, err)
	}
	if !resp.OK() {
		a.token = nil
		return newServerError(req, resp)
	}
	tok, err := a.Codec.DecodeToken(resp.Body)
	if err != nil {
		return err
	}
	a.token = &Token{UserID: strconv.Itoa(tok.UserID), Value: tok.Token}
	return nil
}
