// Package secrets resolves configuration secrets from AWS SSM Parameter Store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/m3rciful/airbot/core/logger"
)

// ssmAPI is the minimal AWS SSM interface required by ParamStore.
// *ssm.Client satisfies it.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter reads one decrypted parameter.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ParamStore wraps the SSM API for parameter retrieval.
type ParamStore struct {
	api ssmAPI
}

// New creates a ParamStore with the given SSM API implementation.
func New(api ssmAPI) (*ParamStore, error) {
	if api == nil {
		return nil, errors.New("secrets: api must not be nil")
	}
	return &ParamStore{api: api}, nil
}

// GetParameter returns the decrypted value of name.
func (p *ParamStore) GetParameter(ctx context.Context, name string) (string, error) {
	if p == nil || p.api == nil {
		return "", errors.New("secrets: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("secrets: name is required")
	}

	start := time.Now()
	withDecryption := true
	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		logger.Warn(ctx, "app", "secrets.get",
			slog.String("status", "fail"),
			slog.String("key", name),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("secrets: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("secrets: parameter %q missing value", name)
	}
	logger.Debug(ctx, "app", "secrets.get",
		slog.String("status", "ok"),
		slog.String("key", name),
		slog.Duration("duration", logger.Took(start)),
	)
	return *out.Parameter.Value, nil
}

// ResolveToken returns token when set, otherwise reads param through g.
func ResolveToken(ctx context.Context, g Getter, token, param string) (string, error) {
	if strings.TrimSpace(token) != "" {
		return token, nil
	}
	if strings.TrimSpace(param) == "" {
		return "", errors.New("secrets: neither token nor token parameter configured")
	}
	if g == nil {
		return "", errors.New("secrets: no parameter store for token lookup")
	}
	v, err := g.GetParameter(ctx, param)
	if err != nil {
		return "", err
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("secrets: parameter %q is empty", param)
	}
	return v, nil
}
