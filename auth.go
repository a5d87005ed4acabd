package main

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenIssuer    = "tilefall"
	tokenLifetime  = 7 * 24 * time.Hour
	minPasswordLen = 4
	minUsernameLen = 2
	maxUsernameLen = 16
	secretSetting  = "jwt_secret"
)

// Account errors are shown to the client verbatim.
var (
	ErrBadCredentials = eris.New("invalid username or password")
	ErrUsernameTaken  = eris.New("username already taken")
	ErrRateLimited    = eris.New("too many login attempts, try again later")
	ErrInvalidToken   = eris.New("invalid token")
)

// Account is a signed-in player. Its ID is what match results and the
// leaderboard are keyed on; guests have no Account.
type Account struct {
	ID       int64
	Username string
	Token    string
}

// accountClaims is the token payload. The account id travels as the subject.
type accountClaims struct {
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// Auth owns the account table and the token secret
type Auth struct {
	db         *DB
	secret     []byte
	bcryptCost int
	clock      Clock
}

// NewAuth loads the token secret from the settings table, creating one on
// first start so tokens survive restarts.
func NewAuth(db *DB) *Auth {
	return &Auth{
		db:         db,
		secret:     loadOrCreateSecret(db),
		bcryptCost: bcrypt.DefaultCost + 2,
		clock:      realClock{},
	}
}

func loadOrCreateSecret(db *DB) []byte {
	if h := db.GetSetting(secretSetting); h != "" {
		if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
			return b
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate token secret: " + err.Error())
	}
	if err := db.SetSetting(secretSetting, hex.EncodeToString(secret)); err != nil {
		log.Warn().Err(err).Msg("could not persist token secret, tokens end with this process")
	}
	return secret
}

// cleanUsername trims the name and checks it is fit to show on the scoreboard
func cleanUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < minUsernameLen || n > maxUsernameLen {
		return "", eris.Errorf("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	}
	for _, r := range name {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return "", eris.New("username may not contain spaces or control characters")
		}
	}
	return name, nil
}

// Register creates an account and signs it in
func (a *Auth) Register(username, password string) (Account, error) {
	username, err := cleanUsername(username)
	if err != nil {
		return Account{}, err
	}
	if len(password) < minPasswordLen {
		return Account{}, eris.Errorf("password must be at least %d characters", minPasswordLen)
	}

	exists, err := a.db.UsernameExists(username)
	if err != nil {
		return Account{}, eris.Wrap(err, "register")
	}
	if exists {
		return Account{}, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.bcryptCost)
	if err != nil {
		return Account{}, eris.Wrap(err, "hash password")
	}
	id, err := a.db.CreatePlayer(username, string(hash))
	if err != nil {
		return Account{}, eris.Wrapf(err, "create account %s", username)
	}
	return a.issue(id, username)
}

// Login checks a password. Unknown names and wrong passwords are
// indistinguishable to the caller.
func (a *Auth) Login(username, password string) (Account, error) {
	player, err := a.db.GetPlayerByUsername(strings.TrimSpace(username))
	if err != nil {
		return Account{}, eris.Wrap(err, "login")
	}
	if player == nil || player.PassHash == "" {
		return Account{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(player.PassHash), []byte(password)); err != nil {
		return Account{}, ErrBadCredentials
	}
	return a.issue(player.ID, player.Username)
}

// Resume signs a player back in from a stored token. The token is returned
// unchanged.
func (a *Auth) Resume(token string) (Account, error) {
	claims := &accountClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		return Account{}, eris.Wrap(ErrInvalidToken, err.Error())
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 || claims.Username == "" {
		return Account{}, eris.Wrapf(ErrInvalidToken, "subject %q", claims.Subject)
	}
	return Account{ID: id, Username: claims.Username, Token: token}, nil
}

func (a *Auth) issue(id int64, username string) (Account, error) {
	now := a.clock.Now()
	claims := accountClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(id, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return Account{}, eris.Wrap(err, "sign token")
	}
	return Account{ID: id, Username: username, Token: signed}, nil
}

// GenerateGuestName picks a display name for players without an account
func GenerateGuestName() string {
	b := make([]byte, 3)
	rand.Read(b)
	return "Guest_" + hex.EncodeToString(b)
}
