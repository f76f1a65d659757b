//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ecocycle/apiserver/config"
	"github.com/ecocycle/apiserver/internal/db"
	"github.com/ecocycle/apiserver/internal/server"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestPickupLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()

	consumerPhone := fmt.Sprintf("0300%d", suffix%10000000)
	collectorPhone := fmt.Sprintf("0301%d", suffix%10000000)

	consumerToken, consumer, err := signup(t, baseURL, "Test Consumer", consumerPhone, "consumer")
	if err != nil {
		t.Fatalf("signup consumer: %v", err)
	}
	if consumer.Points != 0 {
		t.Fatalf("expected new consumer to start at 0 points, got %d", consumer.Points)
	}

	collectorToken, _, err := signup(t, baseURL, "Test Collector", collectorPhone, "collector")
	if err != nil {
		t.Fatalf("signup collector: %v", err)
	}

	created, err := createRequest(t, baseURL, consumerToken, consumerPhone)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if created.Status != "pending" {
		t.Fatalf("expected new request to be pending, got %q", created.Status)
	}
	if created.ID == 0 {
		t.Fatalf("expected request ID to be set")
	}

	listed, err := listRequests(t, baseURL, collectorToken)
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if !containsRequest(listed, created.ID) {
		t.Fatalf("expected request %d in collector listing", created.ID)
	}

	accepted, err := transition(t, baseURL, collectorToken, created.ID, "accept")
	if err != nil {
		t.Fatalf("accept request: %v", err)
	}
	if accepted.Status != "accepted" {
		t.Fatalf("expected accepted status, got %q", accepted.Status)
	}
	if accepted.CollectorID == nil {
		t.Fatalf("expected collector to be recorded on accept")
	}

	if _, err := transition(t, baseURL, collectorToken, created.ID, "complete"); err != nil {
		t.Fatalf("complete request: %v", err)
	}

	fetched, err := getRequest(t, baseURL, consumerToken, created.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if fetched.Status != "completed" {
		t.Fatalf("expected completed status, got %q", fetched.Status)
	}

	me, err := currentUser(t, baseURL, consumerToken)
	if err != nil {
		t.Fatalf("fetch consumer profile: %v", err)
	}
	if me.Points != 10 {
		t.Fatalf("expected consumer to hold 10 points after completion, got %d", me.Points)
	}

	// Completion is terminal: a second attempt must conflict and must not
	// credit the consumer again.
	if err := expectTransitionStatus(t, baseURL, collectorToken, created.ID, "complete", http.StatusConflict); err != nil {
		t.Fatalf("repeat completion: %v", err)
	}
	me, err = currentUser(t, baseURL, consumerToken)
	if err != nil {
		t.Fatalf("refetch consumer profile: %v", err)
	}
	if me.Points != 10 {
		t.Fatalf("expected points unchanged after repeat completion, got %d", me.Points)
	}
}

func TestRejectedRequestStaysRejected(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()

	consumerPhone := fmt.Sprintf("0302%d", suffix%10000000)
	collectorPhone := fmt.Sprintf("0303%d", suffix%10000000)

	consumerToken, _, err := signup(t, baseURL, "Reject Consumer", consumerPhone, "consumer")
	if err != nil {
		t.Fatalf("signup consumer: %v", err)
	}
	collectorToken, _, err := signup(t, baseURL, "Reject Collector", collectorPhone, "collector")
	if err != nil {
		t.Fatalf("signup collector: %v", err)
	}

	created, err := createRequest(t, baseURL, consumerToken, consumerPhone)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	rejected, err := transition(t, baseURL, collectorToken, created.ID, "reject")
	if err != nil {
		t.Fatalf("reject request: %v", err)
	}
	if rejected.Status != "rejected" {
		t.Fatalf("expected rejected status, got %q", rejected.Status)
	}

	if err := expectTransitionStatus(t, baseURL, collectorToken, created.ID, "accept", http.StatusConflict); err != nil {
		t.Fatalf("accept after reject: %v", err)
	}
}

type userResponse struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Role   string `json:"role"`
	Points int    `json:"points"`
}

type requestResponse struct {
	ID          int    `json:"id"`
	Status      string `json:"status"`
	Category    string `json:"category"`
	CollectorID *int   `json:"collector_id"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type requestEnvelope struct {
	Message string          `json:"message"`
	Request requestResponse `json:"request"`
}

type requestListEnvelope struct {
	Requests []requestResponse `json:"requests"`
}

func signup(t *testing.T, baseURL, name, phone, role string) (string, userResponse, error) {
	t.Helper()

	payload := map[string]string{
		"name":     name,
		"phone":    phone,
		"password": "testpass123!",
		"role":     role,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", userResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/auth/signup", bytes.NewReader(body))
	if err != nil {
		return "", userResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", userResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return "", userResponse{}, fmt.Errorf("signup status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", userResponse{}, err
	}
	if parsed.Token == "" {
		return "", userResponse{}, fmt.Errorf("missing token in signup response")
	}
	return parsed.Token, parsed.User, nil
}

func currentUser(t *testing.T, baseURL, token string) (userResponse, error) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/auth/me", nil)
	if err != nil {
		return userResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return userResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return userResponse{}, fmt.Errorf("me status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed userResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return userResponse{}, err
	}
	return parsed, nil
}

func createRequest(t *testing.T, baseURL, token, phone string) (requestResponse, error) {
	t.Helper()

	payload := map[string]string{
		"name":        "Test Consumer",
		"phone":       phone,
		"address":     "12 Harbor Lane",
		"category":    "plastic",
		"description": "Two bags of bottles",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return requestResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/requests", bytes.NewReader(body))
	if err != nil {
		return requestResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return requestResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return requestResponse{}, fmt.Errorf("create request status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed requestEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return requestResponse{}, err
	}
	return parsed.Request, nil
}

func listRequests(t *testing.T, baseURL, token string) ([]requestResponse, error) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/requests", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list requests status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed requestListEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Requests, nil
}

func getRequest(t *testing.T, baseURL, token string, id int) (requestResponse, error) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/requests/%d", baseURL, id), nil)
	if err != nil {
		return requestResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return requestResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return requestResponse{}, fmt.Errorf("get request status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed requestEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return requestResponse{}, err
	}
	return parsed.Request, nil
}

func transition(t *testing.T, baseURL, token string, id int, action string) (requestResponse, error) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/requests/%d/%s", baseURL, id, action), nil)
	if err != nil {
		return requestResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return requestResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return requestResponse{}, fmt.Errorf("%s status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed requestEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return requestResponse{}, err
	}
	return parsed.Request, nil
}

func expectTransitionStatus(t *testing.T, baseURL, token string, id int, action string, want int) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/requests/%d/%s", baseURL, id, action), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("expected %s to return %d, got %d: %s", action, want, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func containsRequest(requests []requestResponse, id int) bool {
	for _, r := range requests {
		if r.ID == id {
			return true
		}
	}
	return false
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.DSN(cfg))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, db.DSN(cfg))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "ecocycle")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "ecocycle_db")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ENDPOINT", "localhost:9000")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "listing-photos")

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
