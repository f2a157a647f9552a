// services/identity.go
package services

import (
	"context"
	"fmt"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Identity is what the identity provider vouches for. UID is the profile key.
type Identity struct {
	UID     string
	Name    string
	Email   string
	Picture string
}

// TokenVerifier turns a bearer token into a verified identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// FirebaseVerifier checks Firebase ID tokens with the Admin SDK, which keeps
// Google's signing certificates fresh and checks issuer, audience and expiry.
type FirebaseVerifier struct {
	Client *auth.Client
}

// NewFirebaseVerifier initialises a Firebase app for projectID. Without
// options the app uses application default credentials.
func NewFirebaseVerifier(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirebaseVerifier, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &FirebaseVerifier{Client: client}, nil
}

var (
	firebaseOnce     sync.Once
	firebaseVerifier *FirebaseVerifier
	firebaseErr      error
)

// SharedFirebaseVerifier returns the process-wide verifier, built on first use.
func SharedFirebaseVerifier(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirebaseVerifier, error) {
	firebaseOnce.Do(func() {
		firebaseVerifier, firebaseErr = NewFirebaseVerifier(ctx, projectID, opts...)
	})
	return firebaseVerifier, firebaseErr
}

// Verify validates an ID token and reads the profile claims from it.
func (v *FirebaseVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	token, err := v.Client.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, &Error{Kind: KindUnauthorized, Message: ErrUnauthorized.Message, Err: err}
	}
	return identityFromToken(token), nil
}

func identityFromToken(token *auth.Token) *Identity {
	claim := func(key string) string {
		s, _ := token.Claims[key].(string)
		return s
	}
	return &Identity{
		UID:     token.UID,
		Name:    claim("name"),
		Email:   claim("email"),
		Picture: claim("picture"),
	}
}
