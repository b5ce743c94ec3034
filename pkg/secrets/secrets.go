// Package secrets resolves the source-store connection string. The
// production path reads Secret Manager (authenticated through
// GOOGLE_APPLICATION_CREDENTIALS); local runs fall back to MONGO_URI.
package secrets

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"github.com/carewell-health/datahub-sync/pkg/config"
)

// SourceURI returns the document-store connection string for cfg.
func SourceURI(ctx context.Context, cfg *config.SourceConfig) (string, error) {
	if cfg.SecretProject != "" && cfg.SecretName != "" {
		uri, err := accessSecret(ctx, cfg.SecretProject, cfg.SecretName)
		if err != nil {
			return "", fmt.Errorf("fetch source URI secret: %w", err)
		}
		return uri, nil
	}
	if cfg.URI == "" {
		return "", fmt.Errorf("no source URI: set MONGO_SECRET_PROJECT/MONGO_SECRET_NAME or MONGO_URI")
	}
	return cfg.URI, nil
}

func accessSecret(ctx context.Context, project, name string) (string, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("create secret manager client: %w", err)
	}
	defer client.Close()

	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", project, name),
	})
	if err != nil {
		return "", fmt.Errorf("access secret version: %w", err)
	}
	return string(resp.GetPayload().GetData()), nil
}
