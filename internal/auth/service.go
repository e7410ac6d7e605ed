package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/2beens/notesapp/internal/config"
	"github.com/2beens/notesapp/internal/telemetry/tracing"
	"github.com/2beens/notesapp/pkg"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultTTL       = 24 * 7 * time.Hour
	sessionKeyPrefix = "notesapp-session||"
	tokensSetKey     = "notesapp-sessions"
	tokenLength      = 35

	fieldHandle    = "handle"
	fieldCreatedAt = "created_at"
)

var _ Provider = (*Service)(nil)

type Service struct {
	redisClient *redis.Client
	ttl         time.Duration
	accounts    map[string]config.Account

	// ability to inject random string generator func for tokens (for unit and dev testing)
	RandStringFunc func(s int) (string, error)
	nowFunc        func() time.Time
}

func NewAuthService(
	accounts []config.Account,
	ttl time.Duration,
	redisClient *redis.Client,
) *Service {
	accountsByHandle := make(map[string]config.Account, len(accounts))
	for _, acc := range accounts {
		accountsByHandle[acc.Handle] = acc
	}

	return &Service{
		redisClient:    redisClient,
		ttl:            ttl,
		accounts:       accountsByHandle,
		RandStringFunc: pkg.GenerateRandomString,
		nowFunc:        time.Now,
	}
}

func (s *Service) SignIn(ctx context.Context, credentials Credentials, now time.Time) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "authService.signIn")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	account, ok := s.accounts[credentials.Handle]
	if !ok {
		log.Tracef("[handle] failed sign in attempt for: %s", credentials.Handle)
		return nil, ErrWrongCredentials
	}
	if !passwordMatches(account, credentials.Password) {
		log.Tracef("[password] failed sign in attempt for: %s", credentials.Handle)
		return nil, ErrWrongCredentials
	}

	token, err := s.RandStringFunc(tokenLength)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	sessionKey := sessionKeyPrefix + token
	if err := s.redisClient.HSet(ctx, sessionKey, fieldHandle, account.Handle, fieldCreatedAt, now.Unix()).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	// add token to the set of sessions, used when scanning for expired ones
	if err := s.redisClient.SAdd(ctx, tokensSetKey, token).Err(); err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}

	span.SetAttributes(attribute.String("user.handle", account.Handle))
	return newSession(token, account, time.Unix(now.Unix(), 0)), nil
}

func (s *Service) SignOut(ctx context.Context, token string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "authService.signOut")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	deleted, err := s.redisClient.Del(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	// remove token from the set of sessions
	if err := s.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
		return fmt.Errorf("unregister session: %w", err)
	}

	if deleted == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func (s *Service) CurrentUser(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	fields, err := s.redisClient.HGetAll(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}

	createdAt, err := parseCreatedAt(fields[fieldCreatedAt])
	if err != nil {
		return nil, err
	}
	if s.nowFunc().Sub(createdAt) > s.ttl {
		return nil, ErrSessionExpired
	}

	// account may have been removed from config since the session was created
	account, ok := s.accounts[fields[fieldHandle]]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return newSession(token, account, createdAt), nil
}

// ScanAndClean will run through all sessions, check the TTL, and clean them if old
func (s *Service) ScanAndClean(ctx context.Context) {
	sessionTokens, err := s.redisClient.SMembers(ctx, tokensSetKey).Result()
	if err != nil {
		log.Errorf("!!! auth service, scan and clean, get sessions: %s", err)
		return
	}

	if len(sessionTokens) == 0 {
		log.Debugln("=> auth service, scan and clean abort, no sessions")
		return
	}

	log.Debugf("=> auth service, scan and clean [%d sessions] start ...", len(sessionTokens))
	var toRemove []string
	for _, token := range sessionTokens {
		createdAtStr, err := s.redisClient.HGet(ctx, sessionKeyPrefix+token, fieldCreatedAt).Result()
		if errors.Is(err, redis.Nil) {
			// session hash gone, only the set entry is left
			toRemove = append(toRemove, token)
			continue
		}
		if err != nil {
			log.Errorf("=> auth service, scan and clean token: %s", err)
			continue
		}

		createdAt, err := parseCreatedAt(createdAtStr)
		if err != nil {
			log.Errorf("=> auth service, scan and clean token: %s", err)
			continue
		}

		if s.nowFunc().Sub(createdAt) > s.ttl {
			toRemove = append(toRemove, token)
		}
	}

	for _, token := range toRemove {
		if err := s.redisClient.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
			log.Errorf("=> auth service, clean token: %s", err)
			continue
		}
		if err := s.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
			log.Errorf("=> auth service, clean token: %s", err)
			continue
		}
	}

	log.Debugf("=> auth service, scan and clean done, removed %d sessions", len(toRemove))
}

func parseCreatedAt(raw string) (time.Time, error) {
	createdAtUnix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session created at: %w", err)
	}
	return time.Unix(createdAtUnix, 0), nil
}

func newSession(token string, account config.Account, createdAt time.Time) *Session {
	return &Session{
		Token: token,
		Owner: account.Handle,
		Profile: Profile{
			Name:   account.Name,
			Email:  account.Email,
			Handle: account.Handle,
		},
		CreatedAt: createdAt,
	}
}
