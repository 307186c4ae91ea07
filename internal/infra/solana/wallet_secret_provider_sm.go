// internal/infra/solana/wallet_secret_provider_sm.go
package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretspb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/blocto/solana-go-sdk/types"
	"google.golang.org/api/option"
)

var (
	ErrWalletSecretNotConfigured = errors.New("wallet_secret_provider: not configured")
	ErrWalletSecretNotFound      = errors.New("wallet_secret_provider: secret not found")
)

// LoadWalletFromSecret は Secret Manager の secret version から署名鍵を復元します。
//
// secretName には
//
//	"projects/<PROJECT_ID>/secrets/<SECRET_ID>/versions/latest"
//
// のようなフルパスを指定する。中身は keypair JSON（[int,...]）か base58 秘密鍵。
// credentialsFile が空なら ADC を使う。
func LoadWalletFromSecret(ctx context.Context, secretName, credentialsFile string) (types.Account, error) {
	name := strings.TrimSpace(secretName)
	if name == "" {
		return types.Account{}, fmt.Errorf("%w: secret name is empty", ErrWalletSecretNotConfigured)
	}

	var opts []option.ClientOption
	if cf := strings.TrimSpace(credentialsFile); cf != "" {
		opts = append(opts, option.WithCredentialsFile(cf))
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return types.Account{}, fmt.Errorf("secretmanager.NewClient: %w", err)
	}
	defer client.Close()

	res, err := client.AccessSecretVersion(ctx, &secretspb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return types.Account{}, fmt.Errorf("%w: %v", ErrWalletSecretNotFound, err)
	}
	if res == nil || res.Payload == nil || len(res.Payload.Data) == 0 {
		return types.Account{}, ErrWalletSecretNotFound
	}

	return AccountFromKeyMaterial(res.Payload.Data)
}
