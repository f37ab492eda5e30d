package main

import (
	"fmt"
	"os"
	"os/exec"
)

func main() {
	fmt.Println("🚀 Setting up Localhost Events Development Environment")

	if err := checkDocker(); err != nil {
		fmt.Printf("⚠️  Docker issue detected: %v\n", err)
		fmt.Println("💡 You can still run with KAFKA_MOCK_MODE=true against a local MySQL")
		return
	}

	fmt.Println("✅ Docker is running")

	services := [][]string{
		{"mysql", "-p", "3306:3306", "-e", "MYSQL_ALLOW_EMPTY_PASSWORD=yes", "-e", "MYSQL_DATABASE=localhost_events", "mysql:8"},
		{"redis", "-p", "6379:6379", "redis:7"},
	}

	for _, svc := range services {
		name := svc[0]
		args := append([]string{"run", "-d", "--name", "localhost-events-" + name}, svc[1:]...)
		cmd := exec.Command("docker", args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			fmt.Printf("⚠️  Failed to start %s (may already be running): %v\n", name, err)
			continue
		}
		fmt.Printf("✅ Started %s\n", name)
	}

	fmt.Println("💡 Start Kafka separately or set KAFKA_MOCK_MODE=true")
	fmt.Println("🎉 Development environment ready")
}

func checkDocker() error {
	cmd := exec.Command("docker", "info")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker is not running")
	}
	return nil
}
