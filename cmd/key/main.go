package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"pet-tracker/internal/cli"
)

func main() {
	var (
		subject = flag.String("subject", "", "Owner id or tracker device id (token subject)")
		role    = flag.String("role", "OWNER", "Role: OWNER | DEVICE")
		secret  = flag.String("secret", os.Getenv("PETTRACK_JWT_SECRET"), "JWT HMAC secret (HS256)")
		ttl     = flag.Duration("ttl", 2*time.Hour, "Token lifetime")
	)
	flag.Parse()

	if *subject == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: key --subject=<id> --role=OWNER|DEVICE --secret='<secret>' [--ttl=2h]")
		os.Exit(2)
	}

	token, claims, err := cli.GenerateToken(*secret, *subject, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Println("TOKEN:")
	fmt.Println(token)
	fmt.Println("\nCLAIMS:")
	fmt.Printf("  sub:  %s\n", claims.Subject)
	fmt.Printf("  role: %s\n", claims.Role)
	fmt.Printf("  iat:  %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
	fmt.Printf("  exp:  %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
}
