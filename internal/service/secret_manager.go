package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/EisukeHirata/profile-nanobanana/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// secretRefPrefix marks a setting whose value lives in Secret Manager.
const secretRefPrefix = "sm://"

// SecretSource reads the latest version of a named secret.
type SecretSource interface {
	AccessSecret(ctx context.Context, name string) (string, error)
}

type secretManagerSource struct {
	client    *secretmanager.Client
	projectID string
}

func newSecretManagerSource(ctx context.Context, cfg *config.Config) (*secretManagerSource, error) {
	if cfg.SecretManagerProjectID == "" {
		return nil, fmt.Errorf("secret manager project id is not set")
	}

	var opts []option.ClientOption
	if cfg.GoogleCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &secretManagerSource{client: client, projectID: cfg.SecretManagerProjectID}, nil
}

func (s *secretManagerSource) AccessSecret(ctx context.Context, name string) (string, error) {
	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, name),
	}
	result, err := s.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	return string(result.Payload.Data), nil
}

// LoadSecrets resolves sm:// references in cfg from Secret Manager. It is a no-op
// when no Secret Manager project is configured.
func LoadSecrets(ctx context.Context, cfg *config.Config) error {
	if cfg.SecretManagerProjectID == "" {
		return nil
	}
	src, err := newSecretManagerSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = src.client.Close()
	}()
	return ResolveSecretRefs(ctx, cfg, src)
}

// ResolveSecretRefs replaces every sm://<name> value among the secret-bearing settings.
func ResolveSecretRefs(ctx context.Context, cfg *config.Config, src SecretSource) error {
	fields := map[string]*string{
		"DB_CONNECTION_STRING":      &cfg.DBConnectionString,
		"SUPABASE_JWT_SECRET":       &cfg.JWTSecret,
		"SUPABASE_SERVICE_ROLE_KEY": &cfg.SupabaseServiceKey,
		"STRIPE_SECRET_KEY":         &cfg.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET":     &cfg.StripeWebhookSecret,
		"GOOGLE_API_KEY":            &cfg.GeminiAPIKey,
		"SUPABASE_S3_SECRET_KEY":    &cfg.S3SecretKey,
	}
	for env, field := range fields {
		if !strings.HasPrefix(*field, secretRefPrefix) {
			continue
		}
		name := strings.TrimPrefix(*field, secretRefPrefix)
		if name == "" {
			return fmt.Errorf("%s: empty secret reference", env)
		}
		value, err := src.AccessSecret(ctx, name)
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		*field = strings.TrimSpace(value)
	}
	return nil
}
