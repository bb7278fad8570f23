// Interactive client for the AuthGate API. Without arguments it prompts for
// credentials and prints the issued token pair; -refresh and -logout drive
// the other two lifecycle operations.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/authgate/authgate/internal/client"
	"golang.org/x/term"
)

func main() {
	server := flag.String("s", "http://localhost:8080", "server base URL")
	refreshID := flag.String("refresh", "", "session id to refresh (reads the refresh token from stdin)")
	logoutID := flag.String("logout", "", "session id to revoke (reads the access token from stdin)")
	flag.Parse()

	ctx := context.Background()
	api := client.New(*server)
	reader := bufio.NewReader(os.Stdin)

	switch {
	case *refreshID != "":
		token, err := promptSecret("Refresh token: ")
		if err != nil {
			log.Fatalf("%v", err)
		}
		session, err := api.Refresh(ctx, *refreshID, token)
		if err != nil {
			log.Fatalf("%v", err)
		}
		printSession(session)

	case *logoutID != "":
		token, err := promptSecret("Access token: ")
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := api.Revoke(ctx, *logoutID, token); err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println("Session revoked")

	default:
		fmt.Print("Username: ")
		username, err := reader.ReadString('\n')
		if err != nil {
			log.Fatalf("%v", err)
		}
		password, err := promptSecret("Password: ")
		if err != nil {
			log.Fatalf("%v", err)
		}
		session, err := api.Login(ctx, strings.TrimSpace(username), password)
		if err != nil {
			log.Fatalf("%v", err)
		}
		printSession(session)
	}
}

func promptSecret(label string) (string, error) {
	fmt.Print(label)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

func printSession(s *client.Session) {
	fmt.Printf("Session id:    %s\n", s.ID)
	fmt.Printf("Access token:  %s\n", s.AccessToken)
	fmt.Printf("Expires in:    %ds\n", s.ExpiresIn)
	fmt.Printf("Refresh token: %s\n", s.RefreshToken)
}
