package shopify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/security"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// LoadStoreToken loads the store record for a shop domain and decrypts its
// offline access token. Returns (plainAccessToken, storeItem, error).
func LoadStoreToken(ctx context.Context, ddb *dynamodb.Client, cfg *config.Config, shopDomain string) (string, *db.StoreItem, error) {
	if strings.TrimSpace(shopDomain) == "" {
		return "", nil, errors.New("missing shop domain")
	}

	store, err := db.GetStore(ctx, ddb, cfg.StoresTable, shopDomain)
	if err != nil {
		return "", nil, err
	}
	if store == nil {
		return "", nil, fmt.Errorf("shop not installed: %s", shopDomain)
	}

	enc := strings.TrimSpace(store.AccessTokenEnc)
	if enc == "" {
		return "", nil, fmt.Errorf("no access token on record for %s", shopDomain)
	}

	key, err := security.LoadKeyFromBase64(cfg.TokenEncKeyB64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid token key: %w", err)
	}

	token, err := security.DecryptAESGCM(key, enc)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decrypt token: %w", err)
	}

	return token, store, nil
}

// AdminClientFor builds a files client from a stored session.
func AdminClientFor(cfg *config.Config, shopDomain, token string) *AdminClient {
	return &AdminClient{
		Shop:       shopDomain,
		APIVersion: cfg.ShopifyAPIVersion,
		Token:      token,
	}
}
