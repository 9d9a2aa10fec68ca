package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/Golfwang123/CivicVoicev1/internal/auth"
	"github.com/Golfwang123/CivicVoicev1/internal/store"
	"github.com/Golfwang123/CivicVoicev1/internal/store/postgres"
)

func main() {
	godotenv.Load()

	username := flag.String("username", "admin", "admin username")
	email := flag.String("email", "admin@civicvoice.local", "admin email")
	password := flag.String("password", "", "admin password (required)")
	flag.Parse()

	if *password == "" {
		log.Fatal("-password is required")
	}
	if err := auth.ValidatePassword(*password); err != nil {
		log.Fatalf("Invalid password: %v", err)
	}

	st, err := postgres.New()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	admin, err := st.CreateUser(store.UserInput{
		Username: *username,
		Password: hash,
		Email:    *email,
		Role:     "admin",
	})
	if err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}

	fmt.Println("Admin account created")
	fmt.Printf("ID:       %d\n", admin.ID)
	fmt.Printf("Username: %s\n", admin.Username)
	fmt.Printf("Email:    %s\n", admin.Email)
}
