// Command devtoken mints an identity token for local development.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/listening-room-system/internal/config"
	"github.com/listening-room-system/pkg/jwt"
)

func main() {
	_ = godotenv.Load()
	cfg := config.New()

	uid := flag.String("uid", "", "user id (random when empty)")
	username := flag.String("username", "dev", "username claim")
	secret := flag.String("secret", cfg.JWTSecret, "signing secret (defaults to JWT_SECRET)")
	ttl := flag.Duration("ttl", cfg.JWTTTL, "token lifetime")
	flag.Parse()

	id := *uid
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		log.Fatalf("Invalid -uid %q: %v", id, err)
	}

	token, err := jwt.GenerateToken(id, *username, *secret, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "user_id=%s username=%s expires_in=%s\n", id, *username, *ttl)
	fmt.Println(token)
}
