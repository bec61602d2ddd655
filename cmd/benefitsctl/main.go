// Package main はCLIツールのエントリポイント。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"benefits-gateway/config"
	"benefits-gateway/internal/infra"
	"benefits-gateway/pkg/fieldcrypt"
)

const version = "1.0.0"

var output string

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "benefitsctl",
		Short: "Benefits gateway operations CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// 既存の環境変数は上書きしない
			_ = godotenv.Load()
		},
		SilenceUsage: true,
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")

	// サブコマンド登録
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(fieldCmd())
	rootCmd.AddCommand(employeeCmd())
	rootCmd.AddCommand(enrollmentCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(kmsCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("benefitsctl version %s (%s)\n", version, fieldcrypt.Algorithm)
		},
	}
}

// encryptionConfigFromEnv はフィールド暗号化に必要な設定だけを環境変数から読み込む。
func encryptionConfigFromEnv() *config.Config {
	return &config.Config{
		Encryption: config.EncryptionConfig{
			Passphrase:    os.Getenv("ENCRYPTION_KEY"),
			Salt:          os.Getenv("ENCRYPTION_SALT"),
			KMSCiphertext: os.Getenv("ENCRYPTION_KEY_KMS_CIPHERTEXT"),
		},
		KMSKeyName: os.Getenv("KMS_KEY_NAME"),
	}
}

func newCodec(ctx context.Context) (*fieldcrypt.Codec, error) {
	codec, err := infra.NewFieldCodec(ctx, encryptionConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to init field encryption (set ENCRYPTION_KEY and ENCRYPTION_SALT): %w", err)
	}
	return codec, nil
}

func printResult(text string, v any) error {
	return writeResult(os.Stdout, text, v)
}

func writeResult(w io.Writer, text string, v any) error {
	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

// fieldCmd はフィールド値の暗号化・復号・ハッシュ計算コマンド。
func fieldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "field",
		Short: "Encrypt, decrypt or hash a single field value",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "encrypt <plaintext>",
		Short: "Encrypt a value into the stored <hex IV>:<hex ciphertext> format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := newCodec(cmd.Context())
			if err != nil {
				return err
			}
			v, err := codec.Encrypt(args[0])
			if err != nil {
				return err
			}
			return printResult(v, map[string]string{"value": v})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "decrypt <value>",
		Short: "Decrypt a stored value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := newCodec(cmd.Context())
			if err != nil {
				return err
			}
			v, err := codec.Decrypt(args[0])
			if err != nil {
				return err
			}
			return printResult(v, map[string]string{"value": v})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "hash <plaintext>",
		Short: "Compute the searchable hash of a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := newCodec(cmd.Context())
			if err != nil {
				return err
			}
			v := codec.Hash(args[0])
			return printResult(v, map[string]string{"hash": v})
		},
	})

	return cmd
}

// kmsCmd はCloud KMSによるパスフレーズのラップコマンド。
func kmsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kms",
		Short: "Wrap the encryption passphrase with Cloud KMS",
	}

	var keyName string
	wrap := &cobra.Command{
		Use:   "wrap",
		Short: "Wrap ENCRYPTION_KEY and print the value for ENCRYPTION_KEY_KMS_CIPHERTEXT",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if keyName == "" {
				keyName = os.Getenv("KMS_KEY_NAME")
			}
			if keyName == "" {
				return fmt.Errorf("--key-name is required (or set KMS_KEY_NAME)")
			}
			passphrase := os.Getenv("ENCRYPTION_KEY")
			if passphrase == "" {
				return fmt.Errorf("ENCRYPTION_KEY environment variable is required")
			}

			client, err := infra.NewKMSClient(ctx, keyName)
			if err != nil {
				return fmt.Errorf("failed to init KMS client: %w", err)
			}
			defer client.Close()

			wrapped, err := client.WrapPassphrase(ctx, passphrase)
			if err != nil {
				return err
			}
			return printResult(wrapped, map[string]string{"ciphertext": wrapped})
		},
	}
	wrap.Flags().StringVar(&keyName, "key-name", "", "KMS key resource name (or set KMS_KEY_NAME)")
	cmd.AddCommand(wrap)
	return cmd
}
