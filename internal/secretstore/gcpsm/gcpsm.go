package gcpsm

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Kashuab/openpark/internal/secretstore"
)

// Store implements secretstore.SecretStore using GCP Secret Manager.
// Each secret holds a single string value; the latest version is read.
type Store struct {
	client  *secretmanager.Client
	project string
}

func New(ctx context.Context, project string) (*Store, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return &Store{client: client, project: project}, nil
}

func (s *Store) versionResource(secretName string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.project, secretName)
}

func (s *Store) Read(ctx context.Context, secretName string) (string, error) {
	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.versionResource(secretName),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", secretstore.ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to access secret %q: %w", secretName, err)
	}

	return string(result.Payload.Data), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
