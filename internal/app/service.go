package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"sitekeeper/api/internal/auth"
	"sitekeeper/api/internal/authpw"
	"sitekeeper/api/internal/blob"
	"sitekeeper/api/internal/config"
	"sitekeeper/api/internal/email"
	"sitekeeper/api/internal/search"
	"sitekeeper/api/internal/store"
	"sitekeeper/api/internal/tier"
	"sitekeeper/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	DisplayName  string
	Tier         tier.Tier
	IsAdmin      bool
	JTI          string
	ExpiresAt    time.Time
}

// mfaJTIPrefix marks challenge tokens issued between password check and TOTP
// verification. They are not sessions; SessionFromToken rejects them.
const mfaJTIPrefix = "mfa_"

const mfaChallengeTTL = 5 * time.Minute

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	UpdateUserTier(context.Context, string, string) error

	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	ListSites(context.Context, string, store.SiteFilter) ([]store.Site, error)
	GetSite(context.Context, string, string) (store.Site, error)
	FindSiteByNormalizedURL(context.Context, string, string) (store.Site, error)
	InsertSite(context.Context, store.Site) error
	UpdateSite(context.Context, store.Site) error
	DeleteSite(context.Context, string, string) error
	SetFavorite(context.Context, string, string, bool) error
	SetPinned(context.Context, string, string, bool) error
	RecordClick(context.Context, string, string) error
	ListStaleSites(context.Context, string, time.Time, int) ([]store.Site, error)
	CountSites(context.Context, string) (int, error)

	ListCategories(context.Context, string) ([]store.Category, error)
	FindCategoryByName(context.Context, string, string) (store.Category, error)
	InsertCategory(context.Context, store.Category) error
	UpdateCategory(context.Context, string, string, string, string) error
	DeleteCategory(context.Context, string, string) error
	CountCategories(context.Context, string) (int, error)

	ListTags(context.Context, string) ([]store.Tag, error)
	FindTagByName(context.Context, string, string) (store.Tag, error)
	InsertTag(context.Context, store.Tag) error
	UpdateTag(context.Context, string, string, string, string) error
	DeleteTag(context.Context, string, string) error
	CountTags(context.Context, string) (int, error)

	CreateShareLink(context.Context, store.ShareLink) error
	ListShareLinks(context.Context, string) ([]store.ShareLink, error)
	GetShareLinkByToken(context.Context, string) (store.ShareLink, error)
	TouchShareLink(context.Context, string) error
	RevokeShareLink(context.Context, string, string) error

	AccountStats(context.Context, string) (store.AccountStats, error)
	AdminStats(context.Context) (store.AdminStats, error)
	ResetAccount(context.Context, string) error

	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens. Redis when configured, Postgres
// otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// pgSessions adapts the Postgres store to the sessionStore interface.
type pgSessions struct {
	store dataStore
}

func (p pgSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p pgSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p pgSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	email    *email.Service
	search   *search.Service
	blob     *blob.Store
	logger   *zap.Logger
}

func New(cfg config.Config, st dataStore, authSvc *authpw.Service, mail *email.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		store:    st,
		sessions: pgSessions{store: st},
		authpw:   authSvc,
		email:    mail,
		logger:   logger,
	}
}

// UseSessionStore swaps the refresh token backend, normally for Redis.
func (s *Service) UseSessionStore(sessions sessionStore) {
	s.sessions = sessions
}

// UseSearch enables full-text search.
func (s *Service) UseSearch(svc *search.Service) {
	s.search = svc
}

// UseBlob enables export archiving to object storage.
func (s *Service) UseBlob(b *blob.Store) {
	s.blob = b
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SendVerificationEmail mails the signup link when SMTP is configured.
func (s *Service) SendVerificationEmail(to, displayName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := strings.TrimSuffix(s.cfg.CORSOrigin, "/") + "/verify-email?token=" + token
	go func() {
		if err := s.email.SendVerificationEmail(to, displayName, url); err != nil {
			s.logger.Warn("send verification email", zap.Error(err))
		}
	}()
}

// SendPasswordResetEmail mails the reset link when SMTP is configured.
func (s *Service) SendPasswordResetEmail(to, displayName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := strings.TrimSuffix(s.cfg.CORSOrigin, "/") + "/reset-password?token=" + token
	go func() {
		if err := s.email.SendPasswordResetEmail(to, displayName, url); err != nil {
			s.logger.Warn("send password reset email", zap.Error(err))
		}
	}()
}

func (s *Service) resolveTier(user store.User) tier.Tier {
	return tier.Resolve(tier.Metadata{Tier: user.Tier, LegacyPro: user.LegacyPro}, user.IsAdmin)
}

// CreateSession issues an access and refresh token pair for the user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")
	resolved := s.resolveTier(user)

	token, err := auth.IssueToken([]byte(s.cfg.AuthSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Tier:  string(resolved),
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		Tier:         resolved,
		IsAdmin:      user.IsAdmin,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// CreateMFAChallenge issues a short-lived token that only the MFA verify
// endpoint accepts.
func (s *Service) CreateMFAChallenge(userID, userEmail string) (string, error) {
	expiresAt := time.Now().Add(mfaChallengeTTL)
	return auth.IssueToken([]byte(s.cfg.AuthSecret), auth.Claims{
		Sub:   userID,
		Email: userEmail,
		JTI:   mfaJTIPrefix + util.NewID(""),
		Exp:   expiresAt.Unix(),
	})
}

// CompleteMFAChallenge checks the TOTP code against the challenged account and
// issues a full session on success.
func (s *Service) CompleteMFAChallenge(ctx context.Context, challengeToken, code string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.AuthSecret), challengeToken)
	if err != nil {
		return Session{}, err
	}
	if !strings.HasPrefix(claims.JTI, mfaJTIPrefix) {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.authpw.CheckTOTP(ctx, claims.Sub, code)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.AuthSecret), token)
	if err != nil {
		return Session{}, err
	}
	if strings.HasPrefix(claims.JTI, mfaJTIPrefix) {
		return Session{}, auth.ErrInvalidToken
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Tier:        s.resolveTier(user),
		IsAdmin:     user.IsAdmin,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

// Refresh rotates a refresh token: the old one is revoked in the same call
// that issues the replacement.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// Reload so tier or admin changes take effect on rotation.
	if fresh, err := s.store.GetUserByID(ctx, user.ID); err == nil {
		user = fresh
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// ChangeTier sets the account's subscription tier. Only admins may change
// other accounts; users may change their own (billing is out of band).
func (s *Service) ChangeTier(ctx context.Context, session Session, targetUserID, tierName string) error {
	if targetUserID != session.UserID && !session.IsAdmin {
		return domainError(403, "FORBIDDEN", "Forbidden", nil)
	}
	switch tier.Tier(tierName) {
	case tier.Free, tier.Pro, tier.ProMax:
	default:
		return domainError(422, "VALIDATION_ERROR", "unknown tier", map[string]any{"tier": tierName})
	}
	return s.store.UpdateUserTier(ctx, targetUserID, tierName)
}

// TierLimits reports the session's limits and current usage per resource.
func (s *Service) TierLimits(ctx context.Context, session Session) (map[string]any, error) {
	siteCount, err := s.store.CountSites(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	categoryCount, err := s.store.CountCategories(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	tagCount, err := s.store.CountTags(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"tier": session.Tier,
		"sites": map[string]any{
			"used":  siteCount,
			"check": tier.CanAdd(session.Tier, tier.KindSites, siteCount),
		},
		"categories": map[string]any{
			"used":  categoryCount,
			"check": tier.CanAdd(session.Tier, tier.KindCategories, categoryCount),
		},
		"tags": map[string]any{
			"used":  tagCount,
			"check": tier.CanAdd(session.Tier, tier.KindTags, tagCount),
		},
	}, nil
}
