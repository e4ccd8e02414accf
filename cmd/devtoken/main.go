/*
main.go - Development token minting

PURPOSE:
  Prints a signed bearer token for local testing of the API, using the
  same JWT_SECRET the server loads.

COMMAND-LINE FLAGS:
  -id      User id placed in the "id" claim (default: 1)
  -rol     Role: admin | editor | visualizador (default: admin)
  -ttl     Token lifetime (default: 12h)
  -env     dotenv file to load (default: .env)

EXAMPLES:
  curl -H "Authorization: Bearer $(go run ./cmd/devtoken -rol=visualizador -id=3)" \
       localhost:8080/api/reservations/upcoming

SEE ALSO:
  - api/auth.go: Claims and verification
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cafeelangel/mesalista/api"
	"github.com/cafeelangel/mesalista/config"
	"github.com/cafeelangel/mesalista/reservation"
)

func main() {
	id := flag.Int64("id", 1, "user id")
	role := flag.String("rol", string(reservation.RoleAdmin), "role: admin | editor | visualizador")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	envFile := flag.String("env", ".env", "dotenv file to load")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsProduction() {
		log.Fatal().Msg("refusing to mint tokens with a production configuration")
	}
	if !reservation.KnownRole(reservation.Role(*role)) {
		log.Fatal().Str("rol", *role).Msg("unknown role")
	}

	token, err := api.NewToken(cfg.JWTSecret, *id, reservation.Role(*role), *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign token")
	}
	fmt.Println(token)
}
