// Seeds accounts and notification templates.
// cmd/seed/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"grant-review-api/config"
	"grant-review-api/models"
	"grant-review-api/services"
	"grant-review-api/utils"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

type seedUser struct {
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Password        string      `json:"password"`
	Role            models.Role `json:"role"`
	Specialization  string      `json:"specialization"`
	NotifyNewGrants bool        `json:"notify_new_grants"`
}

func main() {
	usersFile := flag.String("users", "", "JSON file with an array of users to create")
	flag.Parse()

	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}
	cfg.DB.AutoMigrate = true

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	inserted, err := services.SeedDefaultTemplates(ctx, db)
	if err != nil {
		log.Fatal("Failed to seed notification templates:", err)
	}
	log.Printf("Seeded %d notification templates\n", inserted)

	if *usersFile != "" {
		raw, err := os.ReadFile(*usersFile)
		if err != nil {
			log.Fatal("Failed to read users file:", err)
		}
		var users []seedUser
		if err := json.Unmarshal(raw, &users); err != nil {
			log.Fatal("Failed to parse users file:", err)
		}
		for _, u := range users {
			createUser(db, u)
		}
	}

	// Hash any passwords that were loaded in plain text (bcrypt hashes start with $2)
	var users []models.User
	if err := db.Find(&users).Error; err != nil {
		log.Fatal("Failed to fetch users:", err)
	}
	for _, user := range users {
		if user.Password == "" || strings.HasPrefix(user.Password, "$2") {
			continue
		}
		hashedPassword, err := utils.HashPassword(user.Password)
		if err != nil {
			log.Printf("Failed to hash password for user %s: %v\n", user.Email, err)
			continue
		}
		if err := db.Model(&user).Update("password", hashedPassword).Error; err != nil {
			log.Printf("Failed to update password for user %s: %v\n", user.Email, err)
			continue
		}
		log.Printf("Successfully hashed password for user %s\n", user.Email)
	}

	log.Println("Seed completed!")
}

func createUser(db *gorm.DB, u seedUser) {
	email := strings.ToLower(utils.SanitizeInput(u.Email))
	if !utils.ValidateEmail(email) || !u.Role.Valid() {
		log.Printf("Skipping user %q: invalid email or role %q\n", u.Email, u.Role)
		return
	}
	if ok, msg := utils.ValidatePassword(u.Password); !ok {
		log.Printf("Skipping user %s: %s\n", email, msg)
		return
	}
	hashedPassword, err := utils.HashPassword(u.Password)
	if err != nil {
		log.Printf("Failed to hash password for user %s: %v\n", email, err)
		return
	}

	user := models.User{
		Name:            strings.TrimSpace(u.Name),
		Email:           email,
		Password:        hashedPassword,
		Role:            u.Role,
		Specialization:  strings.TrimSpace(u.Specialization),
		NotifyNewGrants: u.NotifyNewGrants,
	}
	res := db.Where("email = ?", email).FirstOrCreate(&user)
	if res.Error != nil {
		log.Printf("Failed to create user %s: %v\n", email, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		log.Printf("User %s already exists, skipping\n", email)
		return
	}
	log.Printf("Created %s %s\n", user.Role, email)
}
