package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/service"
)

func main() {
	var candidateID int
	var ttl time.Duration
	flag.IntVar(&candidateID, "candidate", 0, "Candidate ID (prompted when omitted)")
	flag.DurationVar(&ttl, "ttl", 4*time.Hour, "Token lifetime")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	authService := service.NewAuthService(cfg)

	// ─── CLI Input ─────────────────────────────────────────────────────
	if candidateID == 0 {
		reader := bufio.NewReader(os.Stdin)
		fmt.Println("=== Issue Candidate Token ===")
		fmt.Print("Enter Candidate ID: ")
		raw, _ := reader.ReadString('\n')

		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			fmt.Println("Error: Candidate ID must be a number")
			os.Exit(1)
		}
		candidateID = id
	}

	if candidateID <= 0 {
		fmt.Println("Error: Candidate ID must be positive")
		os.Exit(1)
	}

	token, err := authService.GenerateCandidateToken(candidateID, ttl)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Candidate %d, valid until %s\n", candidateID, time.Now().Add(ttl).Format(time.RFC3339))
	fmt.Println(token)
}
