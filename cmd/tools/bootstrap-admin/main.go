// Command bootstrap-admin prepares admin credentials for the registry server.
//
// The server derives the admin principal from environment variables at
// startup. This tool validates or generates a credential pair and prints the
// matching exports, so operators never have to hand-craft them.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func main() {
	var (
		email    string
		password string
		generate bool
	)

	flag.StringVar(&email, "email", "", "Email address for the admin account")
	flag.StringVar(&password, "password", "", "Password for the admin account")
	flag.BoolVar(&generate, "generate", false, "Generate a random password instead of supplying one")
	flag.Parse()

	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		fatalf("--email must be a valid address")
	}

	if generate {
		if password != "" {
			fatalf("--generate and --password are mutually exclusive")
		}
		generated, err := randomPassword(20)
		if err != nil {
			fatalf("generate password: %v", err)
		}
		password = generated
	}
	if len(password) < 8 {
		fatalf("--password must be at least 8 characters")
	}

	// Round-trip through bcrypt so a credential the server cannot hash is
	// caught here rather than at startup.
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fatalf("hash password: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		fatalf("verify password hash: %v", err)
	}

	fmt.Printf("export VEHREG_ADMIN_EMAIL=%q\n", email)
	fmt.Printf("export VEHREG_ADMIN_PASSWORD=%q\n", password)
	fmt.Println("# Remember to rotate this password after the first login.")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func randomPassword(length int) (string, error) {
	var builder strings.Builder
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := 0; i < length; i++ {
		index, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(passwordAlphabet[index.Int64()])
	}
	return builder.String(), nil
}
