package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/d60-Lab/payout-engine/config"
	"github.com/d60-Lab/payout-engine/pkg/auth"
)

func main() {
	subject := flag.String("sub", "operator", "token subject")
	role := flag.String("role", auth.RoleOperator, "token role")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	token, err := auth.Issue(cfg.JWT.Secret, cfg.JWT.Issuer, *subject, *role, cfg.JWT.TTL)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
