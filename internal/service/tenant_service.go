// Package service 包含了应用的业务逻辑层。
package service

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gqx-gateway-go/internal/model"
	"gqx-gateway-go/internal/repository"
	"gqx-gateway-go/pkg/log"
	"gqx-gateway-go/pkg/token"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
)

// TenantService 定义了租户管理与凭证解析的接口。
type TenantService interface {
	// Create 创建一个新租户并返回一次性凭证（原始 API key 只此一次）。
	Create(name string) (*model.TenantCredentials, error)
	// Resolve 将 Bearer 凭证（API key 或 JWT）解析为租户标识。
	// 凭证无法解析时返回空串，而不是错误。
	Resolve(credential string) (string, error)
}

type tenantService struct {
	repo       repository.TenantRepository
	jwtManager *token.JWTManager
}

// NewTenantService 创建一个新的 TenantService 实例。
func NewTenantService(repo repository.TenantRepository, jwtManager *token.JWTManager) TenantService {
	return &tenantService{repo: repo, jwtManager: jwtManager}
}

// hashAPIKey 计算凭证的单向摘要。API key 是高熵随机串，确定性摘要
// 足以支撑按摘要的索引查找。
func hashAPIKey(apiKey string) string {
	sum := blake2b.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// Create 创建租户：生成租户标识与 API key，仅持久化凭证摘要，
// 并附带签发一个会话 JWT。
func (s *tenantService) Create(name string) (*model.TenantCredentials, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("租户名称不能为空")
	}

	tenantID := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	apiKey := "gqx_" + uuid.NewString()

	tenant := &model.Tenant{
		TenantID:   tenantID,
		Name:       name,
		APIKeyHash: hashAPIKey(apiKey),
	}
	if err := s.repo.Create(tenant); err != nil {
		return nil, fmt.Errorf("创建租户记录失败: %w", err)
	}

	jwtToken, err := s.jwtManager.GenerateToken(tenantID)
	if err != nil {
		// JWT 只是附加凭证，签发失败不应让创建失败
		log.Warnf("为租户 %s 签发 JWT 失败: %v", tenantID, err)
		jwtToken = ""
	}

	log.Infof("租户创建成功: %s (%s)", tenantID, name)
	return &model.TenantCredentials{
		TenantID: tenantID,
		APIKey:   apiKey,
		JWT:      jwtToken,
	}, nil
}

// Resolve 解析 Bearer 凭证。优先按 JWT 验证，失败后按 API key
// 摘要查找。两者都不中时返回空串。
func (s *tenantService) Resolve(credential string) (string, error) {
	if credential == "" {
		return "", nil
	}

	if claims, err := s.jwtManager.VerifyToken(credential); err == nil && claims.TenantID != "" {
		// 确认租户仍然存在
		if _, err := s.repo.FindByTenantID(claims.TenantID); err == nil {
			return claims.TenantID, nil
		}
		return "", nil
	}

	tenant, err := s.repo.FindByKeyHash(hashAPIKey(credential))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("查询租户凭证失败: %w", err)
	}
	return tenant.TenantID, nil
}
