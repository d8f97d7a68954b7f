// Command teleraid-hash prints an argon2id hash for admin.password_hash.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"teleraid/internal/service"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	password := ""
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			logger.Fatal("Failed to read password", zap.Error(err))
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		logger.Fatal("Password must not be empty")
	}

	hash, err := service.HashPassword(password)
	if err != nil {
		logger.Fatal("Failed to hash password", zap.Error(err))
	}
	fmt.Println(hash)
}
