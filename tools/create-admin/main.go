package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

func main() {
	username := flag.String("username", "admin", "Username to create or reset")
	password := flag.String("password", "", "Password for the user")
	dbPath := flag.String("db", "./data/minecraft-manager.db", "Path to SQLite database")
	flag.Parse()

	if *password == "" {
		*password = os.Getenv("MSM_ADMIN_PASSWORD")
	}
	if *password == "" {
		log.Fatal("Password is required (use -password or set MSM_ADMIN_PASSWORD)")
	}

	// Open database
	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	// Generate password hash
	hash, err := bcrypt.GenerateFromPassword([]byte(*password), 12)
	if err != nil {
		log.Fatal(err)
	}

	var existingID int64
	err = db.QueryRow("SELECT id FROM users WHERE username = ?", *username).Scan(&existingID)
	if err == nil {
		_, err = db.Exec(`
			UPDATE users SET password_hash = ?, is_active = 1, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, string(hash), existingID)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Password reset for user %s.\n", *username)
		return
	}

	// Insert admin user
	_, err = db.Exec(`
		INSERT INTO users (username, password_hash, is_active)
		VALUES (?, ?, 1)
	`, *username, string(hash))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Admin user created successfully!\n")
	fmt.Printf("Username: %s\n", *username)
	fmt.Printf("\nIMPORTANT: Change this password after first login!\n")
}
