package services

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/leoygitty/GSR-App/internal/apperr"
	"github.com/leoygitty/GSR-App/internal/cache"
	"github.com/leoygitty/GSR-App/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Параметры проверки токенов.
const (
	jwksFetchTimeout = 8 * time.Second
	tokenLeeway      = 20 * time.Second
	jwksCacheKey     = "jwks"
	maxJWKSBytes     = 1 << 20
	// jwksMinRefetch - минимальный интервал между перечитываниями JWKS
	// из-за неизвестного kid.
	jwksMinRefetch = 30 * time.Second
)

// Ошибки проверки токена.
var (
	ErrAuthNotConfigured = errors.New("CLERK_JWKS_URL не задан")
	ErrMissingKID        = errors.New("jwt missing 'kid' header")
	ErrUnknownKID        = errors.New("no matching JWKS key for token kid")
	ErrMissingSubject    = errors.New("jwt missing 'sub' claim")
	ErrMissingIssuedAt   = errors.New("jwt missing 'iat' claim")
	ErrEmptyJWKS         = errors.New("jwks response missing 'keys'")
)

// AuthService проверяет bearer-токены провайдера идентичности.
type AuthService interface {
	// VerifyToken возвращает subject (id пользователя) проверенного токена.
	VerifyToken(ctx context.Context, token string) (string, error)
}

var _ AuthService = (*jwksAuthService)(nil)

type jwksAuthService struct {
	cfg    config.AuthConfig
	client *http.Client
	keys   *cache.TTL[map[string]*rsa.PublicKey]
	group  singleflight.Group
	now    cache.Clock
	log    logrus.FieldLogger

	mu        sync.Mutex
	lastFetch time.Time
}

// NewAuthService создает проверку RS256-токенов по JWKS с кэшированием ключей.
func NewAuthService(cfg config.AuthConfig, client *http.Client, clock cache.Clock, log logrus.FieldLogger) AuthService {
	if client == nil {
		client = &http.Client{Timeout: jwksFetchTimeout}
	}
	if clock == nil {
		clock = cache.SystemClock
	}
	return &jwksAuthService{
		cfg:    cfg,
		client: client,
		keys:   cache.NewTTL[map[string]*rsa.PublicKey](cfg.JWKSTTL, clock),
		now:    clock,
		log:    log,
	}
}

// VerifyToken проверяет подпись (только RS256), exp/iat/sub и, если заданы,
// issuer и audience. Допуск по времени - 20 секунд.
func (s *jwksAuthService) VerifyToken(ctx context.Context, token string) (string, error) {
	if s.cfg.JWKSURL == "" {
		return "", apperr.Auth("Unauthorized", ErrAuthNotConfigured)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.cfg.Audience))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrMissingKID
		}
		return s.keyFor(ctx, kid)
	}, opts...)
	if err != nil {
		s.log.WithError(err).Debug("[AuthService] Токен отклонен")
		return "", apperr.Auth("Unauthorized", err)
	}
	if claims.IssuedAt == nil {
		return "", apperr.Auth("Unauthorized", ErrMissingIssuedAt)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", apperr.Auth("Unauthorized", ErrMissingSubject)
	}
	return claims.Subject, nil
}

// keyFor ищет ключ по kid; при промахе один раз перечитывает JWKS
// (провайдер мог сменить ключи). Пока кэш жив, перечитывание из-за
// неизвестного kid выполняется не чаще раза в jwksMinRefetch.
func (s *jwksAuthService) keyFor(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if keys, ok := s.keys.Get(jwksCacheKey); ok {
		if key, found := keys[kid]; found {
			return key, nil
		}
		if !s.refetchAllowed() {
			s.log.WithField("kid", kid).Debug("[AuthService] Неизвестный kid, перечитывание JWKS отложено")
			return nil, ErrUnknownKID
		}
	}

	keys, err := s.refresh(ctx)
	if err != nil {
		return nil, err
	}
	key, found := keys[kid]
	if !found {
		return nil, ErrUnknownKID
	}
	return key, nil
}

func (s *jwksAuthService) refresh(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	v, err, _ := s.group.Do(jwksCacheKey, func() (any, error) {
		keys, err := s.fetchJWKS(ctx)
		if err != nil {
			return nil, err
		}
		s.keys.Set(jwksCacheKey, keys)
		s.mu.Lock()
		s.lastFetch = s.now()
		s.mu.Unlock()
		s.log.WithField("keys", len(keys)).Info("[AuthService] Ключи JWKS обновлены")
		return keys, nil
	})
	if err != nil {
		s.log.WithError(err).Warn("[AuthService] Не удалось получить JWKS")
		return nil, err
	}
	keys, _ := v.(map[string]*rsa.PublicKey)
	return keys, nil
}

func (s *jwksAuthService) refetchAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.lastFetch) >= jwksMinRefetch
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (s *jwksAuthService) fetchJWKS(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	ctx, cancel := context.WithTimeout(ctx, jwksFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.JWKSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса JWKS: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS вернул статус %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("ошибка разбора JWKS: %w", err)
	}
	if len(doc.Keys) == 0 {
		return nil, ErrEmptyJWKS
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaPublicKey(k.N, k.E)
		if err != nil {
			s.log.WithError(err).WithField("kid", k.Kid).Warn("[AuthService] Пропущен некорректный ключ JWKS")
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, ErrEmptyJWKS
	}
	return keys, nil
}

// rsaPublicKey собирает открытый ключ из base64url-модуля и экспоненты.
func rsaPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(n, "="))
	if err != nil {
		return nil, fmt.Errorf("некорректный модуль: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(e, "="))
	if err != nil {
		return nil, fmt.Errorf("некорректная экспонента: %w", err)
	}
	exp := new(big.Int).SetBytes(eb)
	if len(nb) == 0 || !exp.IsInt64() || exp.Int64() < 3 {
		return nil, errors.New("некорректные параметры RSA-ключа")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp.Int64())}, nil
}
