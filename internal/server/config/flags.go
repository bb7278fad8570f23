package config

import (
	"flag"
	"os"
	"time"

	"github.com/authgate/authgate/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-rd string  redis address (host:port)
//	-rp string  redis password
//	-rn int     redis database number
//	-s string   JWT HMAC secret key
//	-k string   AES subject seal key
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with the -c/-config stage.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-rd", "-rp", "-rn", "-s", "-k", "-t", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "rd", config.RedisAddr, "redis address")
	fs.StringVar(&config.RedisPassword, "rp", config.RedisPassword, "redis password")
	fs.IntVar(&config.RedisDB, "rn", config.RedisDB, "redis database number")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret key")
	fs.StringVar(&config.SubjectSealKey, "k", config.SubjectSealKey, "subject seal key (16/24/32 bytes)")

	accessTokenTTL := fs.Int("t", int(config.AccessTokenTTL.Minutes()), "access token validity (in minutes)")
	refreshTokenTTL := fs.Int("r", int(config.RefreshTokenTTL.Minutes()), "refresh token validity (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenTTL = time.Duration(*accessTokenTTL) * time.Minute
	config.RefreshTokenTTL = time.Duration(*refreshTokenTTL) * time.Minute
}
