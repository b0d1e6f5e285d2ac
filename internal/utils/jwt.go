package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"   // secure random number generation
    "encoding/hex"  // hex encoding of random bytes
    "errors"
    "io"
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// IdentityToken is a signed HS256 JWT in the format issued by the identity
// provider: sub carries the user id, email the verified address and role
// the account role ("authenticated" or "service_role").
type IdentityToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// NewIdentityToken signs a token for userID.  The server never issues
// tokens itself; this helper exists for the devtoken command and tests.
func NewIdentityToken(secret, userID, email, role string, ttl time.Duration) (IdentityToken, error) {
    if secret == "" || userID == "" {
        return IdentityToken{}, errors.New("secret and user id are required")
    }
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := jwt.MapClaims{
        "sub":   userID,
        "email": email,
        "role":  role,
        "exp":   exp.Unix(),
        "iat":   now.Unix(),
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return IdentityToken{}, err
    }
    return IdentityToken{Token: signed, Exp: exp}, nil
}

// RandomHex returns a hex string generated from n bytes of
// cryptographically secure random data.
func RandomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}

// codeAlphabet omits characters that are easy to misread (0/O, 1/I/L).
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// codeLimit is the largest multiple of len(codeAlphabet) a byte can hold.
// Bytes at or above it are discarded so every character is equally likely.
const codeLimit = 256 - 256%len(codeAlphabet)

// RandomCode returns a promo code made of groups of four characters
// separated by dashes, e.g. "K7QM-3XPA".
func RandomCode(groups int) (string, error) {
    return randomCode(rand.Reader, groups)
}

func randomCode(src io.Reader, groups int) (string, error) {
    if groups < 1 {
        groups = 1
    }
    n := groups * 4
    out := make([]byte, 0, n+groups-1)
    buf := make([]byte, n)
    for picked := 0; picked < n; {
        if _, err := io.ReadFull(src, buf); err != nil {
            return "", err
        }
        for _, v := range buf {
            if int(v) >= codeLimit || picked == n {
                continue
            }
            if picked > 0 && picked%4 == 0 {
                out = append(out, '-')
            }
            out = append(out, codeAlphabet[int(v)%len(codeAlphabet)])
            picked++
        }
    }
    return string(out), nil
}
