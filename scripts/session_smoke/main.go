package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
	Meta map[string]interface{} `json:"meta"`
}

type tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type step struct {
	Name     string
	Status   int
	Want     int
	Code     string
	Duration time.Duration
	Error    error
}

func (s step) ok() bool {
	return s.Error == nil && s.Status == s.Want
}

type runner struct {
	client *http.Client
	base   string
	steps  []step
}

func main() {
	var (
		base     string
		email    string
		password string
		timeout  time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&email, "email", "smoke@example.com", "Account used for the run; registered when missing")
	flag.StringVar(&password, "password", "smoke-password", "Account password")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	r := &runner{client: &http.Client{Timeout: timeout}, base: strings.TrimRight(base, "/")}
	if err := r.run(email, password); err != nil {
		log.Printf("smoke run aborted: %v", err)
	}

	printReport(r.steps)

	failed := 0
	for _, s := range r.steps {
		if !s.ok() {
			failed++
		}
	}
	fmt.Printf("Failed steps: %d\n", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// run walks the rotation lifecycle: login, rotate, replay the spent token and
// confirm the replay took the rest of the lineage down with it.
func (r *runner) run(email, password string) error {
	creds := map[string]string{"email": email, "password": password}

	var initial tokens
	if env, status := r.call("register", http.MethodPost, "/auth/register", creds, 0); status != http.StatusCreated {
		env, _ = r.call("login", http.MethodPost, "/auth/login", creds, http.StatusOK)
		if err := decodeData(env, &initial); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	} else if err := decodeData(env, &initial); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	var rotated tokens
	env, _ := r.call("rotate", http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": initial.RefreshToken}, http.StatusOK)
	if err := decodeData(env, &rotated); err != nil {
		return fmt.Errorf("rotate: %w", err)
	}

	r.call("replay spent token", http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": initial.RefreshToken}, http.StatusUnauthorized)
	r.call("successor revoked", http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": rotated.RefreshToken}, http.StatusUnauthorized)
	return nil
}

// call performs one request and records it as a step. A want of zero records
// the step as informational.
func (r *runner) call(name, method, path string, body interface{}, want int) (*envelope, int) {
	s := step{Name: name, Want: want}
	defer func() {
		if want != 0 {
			r.steps = append(r.steps, s)
		}
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		s.Error = err
		return nil, 0
	}
	req, err := http.NewRequest(method, r.base+path, bytes.NewReader(payload))
	if err != nil {
		s.Error = err
		return nil, 0
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	s.Duration = time.Since(start)
	if err != nil {
		s.Error = err
		return nil, 0
	}
	defer resp.Body.Close()

	s.Status = resp.StatusCode
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		s.Error = fmt.Errorf("read body: %w", err)
		return nil, s.Status
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			s.Error = fmt.Errorf("decode body: %w", err)
			return nil, s.Status
		}
	}
	if env.Error != nil {
		s.Code = env.Error.Code
	}
	return &env, s.Status
}

func decodeData(env *envelope, dest interface{}) error {
	if env == nil || len(env.Data) == 0 {
		return errors.New("empty response")
	}
	return json.Unmarshal(env.Data, dest)
}

func printReport(results []step) {
	fmt.Println("Session Smoke Report")
	fmt.Println("====================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.ok() {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s\n", status, res.Name)
		fmt.Printf("  Status: %d, want %d (%s)\n", res.Status, res.Want, res.Duration)
		if res.Code != "" {
			fmt.Printf("  Code: %s\n", res.Code)
		}
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		}
	}
}
