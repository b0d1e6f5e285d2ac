// Command devtoken mints identity tokens for local testing.  The tokens are
// signed with AUTH_JWT_SECRET, the same secret the server verifies with.
//
//	go run ./cmd/devtoken -email buyer@example.com
//	go run ./cmd/devtoken -role service_role -ttl 1h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/iliyamo/limited-seats/internal/utils"
)

func main() {
	_ = godotenv.Load()

	secret := flag.String("secret", os.Getenv("AUTH_JWT_SECRET"), "HMAC secret (defaults to AUTH_JWT_SECRET)")
	userID := flag.String("user", "", "subject user id (random uuid when empty)")
	email := flag.String("email", "", "email claim")
	role := flag.String("role", "authenticated", "role claim")
	ttl := flag.Duration("ttl", 15*time.Minute, "token lifetime")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "devtoken: no secret; set AUTH_JWT_SECRET or pass -secret")
		os.Exit(2)
	}
	if *userID == "" {
		*userID = uuid.NewString()
	}

	tok, err := utils.NewIdentityToken(*secret, *userID, *email, *role, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "sub=%s role=%s expires=%s\n", *userID, *role, tok.Exp.Format(time.RFC3339))
	fmt.Println(tok.Token)
}
