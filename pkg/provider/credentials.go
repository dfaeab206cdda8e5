package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Credential 是一次凭证解析的产物，按来源以请求头或查询参数生效。
type Credential struct {
	AuthHeader string // 非空时设置 Authorization 头
	QueryKey   string // 非空时追加查询参数
	QueryValue string
}

// CredentialSource 是凭证解析链中的一个环节：要么产出可用凭证，
// 要么快速失败，由链路尝试下一个来源。
type CredentialSource interface {
	Name() string
	Resolve(ctx context.Context) (Credential, error)
}

// resolveFirst 按顺序尝试凭证来源，第一个成功者生效。
func resolveFirst(ctx context.Context, sources []CredentialSource) (Credential, string, bool) {
	for _, src := range sources {
		cred, err := src.Resolve(ctx)
		if err != nil {
			continue
		}
		return cred, src.Name(), true
	}
	return Credential{}, "", false
}

// defaultMetadataEndpoint 是云平台工作负载身份令牌服务的默认地址。
const defaultMetadataEndpoint = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"

// metadataTokenSource 通过平台元数据服务获取委托凭证（工作负载身份）。
type metadataTokenSource struct {
	endpoint string
	client   *http.Client
}

func newMetadataTokenSource(endpoint string) *metadataTokenSource {
	if endpoint == "" {
		endpoint = defaultMetadataEndpoint
	}
	return &metadataTokenSource{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 2 * time.Second},
	}
}

func (s *metadataTokenSource) Name() string { return "workload-identity" }

func (s *metadataTokenSource) Resolve(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.endpoint, nil)
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := s.client.Do(req)
	if err != nil {
		return Credential{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Credential{}, fmt.Errorf("metadata server returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Credential{}, err
	}
	if body.AccessToken == "" {
		return Credential{}, errors.New("metadata server returned empty token")
	}

	return Credential{AuthHeader: "Bearer " + body.AccessToken}, nil
}

// apiKeySource 使用静态配置的 API key。key 为空时快速失败。
type apiKeySource struct {
	queryKey string
	key      string
}

func (s *apiKeySource) Name() string { return "api-key" }

func (s *apiKeySource) Resolve(ctx context.Context) (Credential, error) {
	if s.key == "" {
		return Credential{}, errors.New("api key not configured")
	}
	return Credential{QueryKey: s.queryKey, QueryValue: s.key}, nil
}
