package server

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// secretEnv lists the environment variables that may be filled from
// Secrets Manager under a prefix.
var secretEnv = []string{"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "WEBHOOK_SECRET"}

// LoadSecrets fetches API keys from Secrets Manager and sets them as env
// vars. Variables already set are left alone; missing secrets are logged
// and skipped. It returns the names that were loaded.
func LoadSecrets(ctx context.Context, client SecretsAPI, prefix string, logger *slog.Logger) []string {
	var loaded []string
	for _, envVar := range secretEnv {
		if os.Getenv(envVar) != "" {
			continue
		}
		secretID := prefix + envVar
		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: &secretID,
		})
		if err != nil {
			logger.Info("Secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil {
			os.Setenv(envVar, *result.SecretString)
			loaded = append(loaded, envVar)
			logger.Info("Loaded secret", "secret_id", secretID)
		}
	}
	return loaded
}
