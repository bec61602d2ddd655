package infra

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"

	"benefits-gateway/config"
	"benefits-gateway/pkg/fieldcrypt"
)

// KMSClient はCloud KMSクライアントをラップする。
// フィールド暗号化のパスフレーズを環境変数に平文で置かないために使用する。
type KMSClient struct {
	client  *kms.KeyManagementClient
	keyName string
}

// NewKMSClient は指定したキー名（projects/.../cryptoKeys/...）のKMSClientを生成する。
func NewKMSClient(ctx context.Context, keyName string) (*KMSClient, error) {
	if keyName == "" {
		return nil, errors.New("KMS_KEY_NAME is required")
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}

	return &KMSClient{
		client:  client,
		keyName: keyName,
	}, nil
}

// Encrypt は平文をCloud KMSで暗号化する。
func (c *KMSClient) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	req := &kmspb.EncryptRequest{
		Name:      c.keyName,
		Plaintext: plaintext,
	}
	resp, err := c.client.Encrypt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	return resp.Ciphertext, nil
}

// Decrypt は暗号文をCloud KMSで復号する。
func (c *KMSClient) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	req := &kmspb.DecryptRequest{
		Name:       c.keyName,
		Ciphertext: ciphertext,
	}
	resp, err := c.client.Decrypt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return resp.Plaintext, nil
}

// Close はKMSクライアントを閉じる。
func (c *KMSClient) Close() error {
	return c.client.Close()
}

// WrapPassphrase はパスフレーズをKMSで暗号化し、base64文字列で返す。
// 結果は ENCRYPTION_KEY_KMS_CIPHERTEXT に設定する。
func (c *KMSClient) WrapPassphrase(ctx context.Context, passphrase string) (string, error) {
	ciphertext, err := c.Encrypt(ctx, []byte(passphrase))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// UnwrapPassphrase は WrapPassphrase で得たbase64文字列を復号してパスフレーズを返す。
func (c *KMSClient) UnwrapPassphrase(ctx context.Context, wrapped string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return "", fmt.Errorf("decoding wrapped passphrase: %w", err)
	}
	plaintext, err := c.Decrypt(ctx, ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// NewFieldCodec は設定から鍵を導出してフィールド暗号化のCodecを生成する。
// ENCRYPTION_KEY_KMS_CIPHERTEXT が設定されている場合は、KMSで復号したパスフレーズを使用する。
func NewFieldCodec(ctx context.Context, cfg *config.Config) (*fieldcrypt.Codec, error) {
	passphrase := cfg.Encryption.Passphrase
	if cfg.Encryption.KMSCiphertext != "" {
		client, err := NewKMSClient(ctx, cfg.KMSKeyName)
		if err != nil {
			return nil, err
		}
		defer client.Close()

		passphrase, err = client.UnwrapPassphrase(ctx, cfg.Encryption.KMSCiphertext)
		if err != nil {
			return nil, fmt.Errorf("unwrapping encryption passphrase: %w", err)
		}
	}

	km, err := fieldcrypt.NewKeyMaterial(passphrase, cfg.Encryption.Salt)
	if err != nil {
		return nil, err
	}
	return fieldcrypt.NewCodec(km)
}
