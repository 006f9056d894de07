package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hitoshi/murmur/internal/model"
)

// BrokerIdentity はIdentity Brokerが返す正規化済みのユーザー情報。
// UserIDはIdPをまたいで安定したアプリケーション内のユーザーID。
type BrokerIdentity struct {
	UserID      string
	DisplayName string
}

// IdentityBroker はIdPのアクセストークンをアプリケーションの
// ユーザーIDに変換する外部サービスのインターフェース。
type IdentityBroker interface {
	// SignIn はIdPのアクセストークンを検証し、ユーザー情報を返す。
	SignIn(ctx context.Context, brokerID, accessToken string) (*BrokerIdentity, error)
}

// HTTPBroker はsignInWithIdp API形式のIdentity Brokerクライアント。
type HTTPBroker struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPBroker はHTTPBrokerを生成する。
func NewHTTPBroker(client *http.Client, baseURL, apiKey string) *HTTPBroker {
	return &HTTPBroker{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// signInWithIdpRequest はBrokerへのリクエストボディ。
type signInWithIdpRequest struct {
	PostBody            string `json:"postBody"`
	RequestURI          string `json:"requestUri"`
	ReturnIdpCredential bool   `json:"returnIdpCredential"`
	ReturnSecureToken   bool   `json:"returnSecureToken"`
}

// signInWithIdpResponse はBrokerからのレスポンスボディ。
type signInWithIdpResponse struct {
	LocalID     string `json:"localId"`
	DisplayName string `json:"displayName"`
}

// SignIn はIdPのアクセストークンを検証し、ユーザー情報を返す。
// Brokerとの通信失敗および非200応答はUPSTREAM_ERRORとして返す。
func (b *HTTPBroker) SignIn(ctx context.Context, brokerID, accessToken string) (*BrokerIdentity, error) {
	postBody := url.Values{}
	postBody.Set("access_token", accessToken)
	postBody.Set("providerId", brokerID)

	reqBody, err := json.Marshal(signInWithIdpRequest{
		PostBody:            postBody.Encode(),
		RequestURI:          "http://localhost",
		ReturnIdpCredential: true,
		ReturnSecureToken:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal broker request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/accounts:signInWithIdp?key=%s", b.baseURL, url.QueryEscape(b.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create broker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("identity brokerに接続できません")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, model.NewUpstreamError(fmt.Sprintf("identity brokerがステータス%dを返しました", resp.StatusCode))
	}

	var body signInWithIdpResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, model.NewUpstreamError("identity brokerの応答を解析できません")
	}
	if body.LocalID == "" {
		return nil, model.NewUpstreamError("identity brokerの応答にユーザーIDが含まれていません")
	}

	return &BrokerIdentity{
		UserID:      body.LocalID,
		DisplayName: body.DisplayName,
	}, nil
}

// compile-time interface check
var _ IdentityBroker = (*HTTPBroker)(nil)
