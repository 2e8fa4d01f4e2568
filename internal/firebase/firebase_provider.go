package firebase

import (
	"context"
	"fmt"

	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// New builds an ID token verifier from a service account key file.
func New(ctx context.Context, serviceAccountKeyPath string) (*Firebase, error) {
	sa := option.WithCredentialsFile(serviceAccountKeyPath)
	app, err := fb.NewApp(ctx, nil, sa)
	if err != nil {
		return nil, fmt.Errorf("error initializing app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Auth client: %w", err)
	}

	return &Firebase{auth: client}, nil
}

type Firebase struct {
	auth *auth.Client
}

// used by middleware
func (f *Firebase) VerifyToken(ctx context.Context, token string) (string, error) {
	t, err := f.auth.VerifyIDToken(ctx, token)
	if err != nil {
		return "", err
	}
	return t.UID, nil
}
