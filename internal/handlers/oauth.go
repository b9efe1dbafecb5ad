package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"backend/internal/alerts"
	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/security"
	"backend/internal/shopify"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// OAuthAPI runs the install flow: connect issues the authorize URL,
// callback exchanges the code, mirrors the shop and finishes setup.
type OAuthAPI struct {
	cfg  *config.Config
	ddb  *dynamodb.Client
	sns  *sns.Client
	http *http.Client
}

func NewOAuthAPI(cfg *config.Config, ddb *dynamodb.Client, snsClient *sns.Client) *OAuthAPI {
	return &OAuthAPI{cfg: cfg, ddb: ddb, sns: snsClient, http: http.DefaultClient}
}

func (a *OAuthAPI) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	switch req.RawPath {
	case "/integrations/shopify/connect":
		return a.connect(ctx, req)
	case "/integrations/shopify/callback":
		return a.callback(ctx, req)
	default:
		return errResp(404, "not found")
	}
}

func (a *OAuthAPI) connect(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	shop := strings.ToLower(strings.TrimSpace(req.QueryStringParameters["shop"]))
	if !isValidShopDomain(shop) {
		return errResp(400, "invalid shop (expected like your-store.myshopify.com)")
	}

	state, err := randomState(24)
	if err != nil {
		return errResp(500, "failed to generate state")
	}

	exp := time.Now().UTC().Add(10 * time.Minute).Unix()
	_, err = a.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.cfg.OAuthStateTable),
		Item: map[string]types.AttributeValue{
			"State":          &types.AttributeValueMemberS{Value: state},
			"Shop":           &types.AttributeValueMemberS{Value: shop},
			"ExpiresAtEpoch": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", exp)},
		},
	})
	if err != nil {
		log.Printf("oauth: store state for %s: %v", shop, err)
		return errResp(500, "failed to store oauth state")
	}

	redirectURI := a.cfg.RedirectBase + "/integrations/shopify/callback"

	authorize := fmt.Sprintf("https://%s/admin/oauth/authorize", shop)
	u, _ := url.Parse(authorize)
	q := u.Query()
	q.Set("client_id", a.cfg.ShopifyAPIKey)
	q.Set("scope", a.cfg.ShopifyScopes)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()

	return jsonResp(200, map[string]any{
		"authorizeUrl": u.String(),
	})
}

func (a *OAuthAPI) callback(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	params := req.QueryStringParameters

	shop := strings.ToLower(strings.TrimSpace(params["shop"]))
	code := strings.TrimSpace(params["code"])
	state := strings.TrimSpace(params["state"])
	hmacParam := strings.TrimSpace(params["hmac"])

	if !isValidShopDomain(shop) || code == "" || state == "" || hmacParam == "" {
		return errResp(400, "missing required oauth params")
	}

	if !verifyShopifyHMAC(params, a.cfg.ShopifyAPISecret, hmacParam) {
		return errResp(400, "invalid hmac")
	}

	// Validate state
	out, err := a.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(a.cfg.OAuthStateTable),
		Key: map[string]types.AttributeValue{
			"State": &types.AttributeValueMemberS{Value: state},
		},
	})
	if err != nil || out.Item == nil {
		return errResp(400, "invalid or expired state")
	}
	shopFromState := attrS(out.Item["Shop"])
	if shopFromState == "" || shopFromState != shop {
		return errResp(400, "state mismatch")
	}

	accessToken, scope, err := a.exchangeCode(ctx, shop, code)
	if err != nil {
		log.Printf("oauth: code exchange for %s: %v", shop, err)
		return errResp(502, "token exchange failed")
	}

	// Mirror the shop into the local store with the sealed offline token.
	info, err := fetchShopInfo(ctx, a.http, a.cfg, shop, accessToken)
	if err != nil {
		log.Printf("oauth: shop info for %s: %v", shop, err)
		return errResp(502, "failed to fetch shop info")
	}

	key, err := security.LoadKeyFromBase64(a.cfg.TokenEncKeyB64)
	if err != nil {
		return errResp(500, "invalid token key")
	}
	encTok, err := security.EncryptAESGCM(key, accessToken)
	if err != nil {
		return errResp(500, "failed to encrypt token")
	}

	item := storeItemFromShopInfo(info)
	item.MyshopifyDomain = shop
	item.Shop = shop
	item.AccessTokenEnc = encTok
	item.Scope = scope

	if err := db.UpsertStore(ctx, a.ddb, a.cfg.StoresTable, item); err != nil {
		log.Printf("oauth: store %s: %v", shop, err)
		return errResp(500, "failed to store integration")
	}

	// Lifecycle webhooks (best effort; install already succeeded).
	_, failed := shopify.SubscribeLifecycleTopics(ctx, shop, a.cfg.ShopifyAPIVersion, accessToken, a.cfg.EventBridgeSourceArn)
	for _, f := range failed {
		log.Printf("oauth: subscribe %s for %s: %s", f["topic"], shop, f["error"])
	}

	// Per-shop alert topic + install note (also best effort).
	if a.sns != nil {
		topicArn, aerr := alerts.EnsureShopAlerts(ctx, a.ddb, a.sns, a.cfg.StoresTable, a.cfg.AlertsStage, shop, item.Email)
		if aerr != nil {
			log.Printf("oauth: ensure alerts for %s: %v", shop, aerr)
		} else if nerr := alerts.Notify(ctx, a.sns, topicArn, "App installed",
			fmt.Sprintf("The app was installed on %s at %s.", shop, item.InstalledAt)); nerr != nil {
			log.Printf("oauth: install notify for %s: %v", shop, nerr)
		}
	}

	// one-time state cleanup
	_, _ = a.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(a.cfg.OAuthStateTable),
		Key: map[string]types.AttributeValue{
			"State": &types.AttributeValueMemberS{Value: state},
		},
	})

	fe := a.cfg.FrontendBaseURL
	if fe == "" {
		fe = "/"
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: 302,
		Headers: map[string]string{
			"location": fe + "/admin/store?connected=1&shop=" + url.QueryEscape(shop),
		},
	}, nil
}

func (a *OAuthAPI) exchangeCode(ctx context.Context, shop, code string) (accessToken, scope string, err error) {
	tokenURL := fmt.Sprintf("https://%s/admin/oauth/access_token", shop)

	body := map[string]string{
		"client_id":     a.cfg.ShopifyAPIKey,
		"client_secret": a.cfg.ShopifyAPISecret,
		"code":          code,
	}
	b, _ := json.Marshal(body)

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(string(b)))
	httpReq.Header.Set("content-type", "application/json")

	httpRes, err := a.http.Do(httpReq)
	if err != nil {
		return "", "", err
	}
	defer httpRes.Body.Close()

	raw, _ := io.ReadAll(httpRes.Body)
	if httpRes.StatusCode < 200 || httpRes.StatusCode >= 300 {
		return "", "", fmt.Errorf("http %d: %s", httpRes.StatusCode, string(raw))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(raw, &tok); err != nil || tok.AccessToken == "" {
		return "", "", fmt.Errorf("invalid token response")
	}
	return tok.AccessToken, tok.Scope, nil
}

func attrS(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}
