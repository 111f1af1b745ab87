// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharemac.
//
// go-sharemac is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package keyderiv

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// ErrKMSKeyRequired is returned when a sealer is built without a key id.
var ErrKMSKeyRequired = errors.New("keyderiv: kms key id required")

// KMSClient is the subset of the AWS KMS API used for seed wrapping.
type KMSClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSConfig configures the AWS KMS client.
type KMSConfig struct {
	KeyID           string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// KMSSealer wraps seeds with a symmetric AWS KMS key.
type KMSSealer struct {
	client KMSClient
	keyID  string
}

// NewKMSSealer builds a sealer from the default AWS credential chain,
// overridden by static credentials and endpoint when configured.
func NewKMSSealer(ctx context.Context, cfg KMSConfig) (*KMSSealer, error) {
	if cfg.KeyID == "" {
		return nil, ErrKMSKeyRequired
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("keyderiv: load AWS config: %w", err)
	}

	var clientOpts []func(*kms.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	return NewKMSSealerWithClient(kms.NewFromConfig(awsCfg, clientOpts...), cfg.KeyID)
}

// NewKMSSealerWithClient builds a sealer around an existing client.
func NewKMSSealerWithClient(client KMSClient, keyID string) (*KMSSealer, error) {
	if keyID == "" {
		return nil, ErrKMSKeyRequired
	}
	return &KMSSealer{client: client, keyID: keyID}, nil
}

// Seal encrypts plaintext under the configured key.
func (s *KMSSealer) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	out, err := s.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(s.keyID),
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("keyderiv: kms encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

// Open decrypts a blob produced by Seal.
func (s *KMSSealer) Open(ctx context.Context, ciphertext []byte) ([]byte, error) {
	out, err := s.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(s.keyID),
		CiphertextBlob: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("keyderiv: kms decrypt: %w", err)
	}
	return out.Plaintext, nil
}

// MockKMSClient is a KMSClient whose operations are set per test.
type MockKMSClient struct {
	EncryptFunc func(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	DecryptFunc func(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Encrypt mocks the Encrypt operation.
func (m *MockKMSClient) Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	if m.EncryptFunc != nil {
		return m.EncryptFunc(ctx, params, optFns...)
	}
	return nil, errors.New("mock: Encrypt not implemented")
}

// Decrypt mocks the Decrypt operation.
func (m *MockKMSClient) Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if m.DecryptFunc != nil {
		return m.DecryptFunc(ctx, params, optFns...)
	}
	return nil, errors.New("mock: Decrypt not implemented")
}
