package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer はセッショントークンのissクレーム。
const tokenIssuer = "study-admin"

// Signer はセッションIDをHS256で署名したトークンに変換する。
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner は新しいSignerを生成する。
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("session: 署名用シークレットが空です")
	}
	return &Signer{secret: secret, now: time.Now}, nil
}

// Sign はセッションレコードからトークンを生成する。
// トークンの有効期限はセッションの有効期限と同じにする。
func (s *Signer) Sign(rec Record) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        rec.ID,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(s.now()),
		ExpiresAt: jwt.NewNumericDate(rec.ExpiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("セッショントークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Parse はトークンを検証し、セッションIDを返す。
// 署名・発行者・有効期限のいずれかが不正な場合はErrInvalidTokenを返す。
func (s *Signer) Parse(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" {
		return "", fmt.Errorf("%w: jtiがありません", ErrInvalidToken)
	}
	return claims.ID, nil
}
