package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// The suite runs against a live server and a seeded hospital admin.
// It is opt-in: set HMS_API_TESTS=1 with the server and worker up.
var (
	serverURL = envOr("HMS_API_URL", "http://localhost:8080")
	baseURL   = serverURL + "/api/v1"

	adminEmail    = envOr("HMS_TEST_EMAIL", "admin@citygeneral.example")
	adminPassword = envOr("HMS_TEST_PASSWORD", "admin-password-1")

	authToken string
	doctorID  string
	patientID string
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// APIResponse mirrors the server's response envelope.
type APIResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// TestResponse wraps a decoded response for assertions.
type TestResponse struct {
	StatusCode int
	Status     string
	Message    string
	Code       string
	Data       map[string]interface{}
	RawData    string
}

func (r TestResponse) IsSuccess() bool {
	return r.Status == "success"
}

func (r TestResponse) GetString(key string) string {
	if r.Data == nil {
		return ""
	}
	if v, ok := r.Data[key].(string); ok {
		return v
	}
	return ""
}

func checkAPIServer() error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(serverURL + "/health/live")
	if err != nil {
		return fmt.Errorf("API server not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("liveness probe answered %d", resp.StatusCode)
	}
	return nil
}

func TestMain(m *testing.M) {
	if os.Getenv("HMS_API_TESTS") != "1" {
		fmt.Println("Skipping API tests; set HMS_API_TESTS=1 with a running server to enable them")
		os.Exit(0)
	}

	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		if err := checkAPIServer(); err != nil {
			if i == maxRetries-1 {
				fmt.Printf("Error: %v\nMake sure the API server is running at %s\n", err, serverURL)
				os.Exit(1)
			}
			fmt.Printf("Waiting for API server (attempt %d/%d)...\n", i+1, maxRetries)
			time.Sleep(2 * time.Second)
			continue
		}
		break
	}

	setupAuth()
	setupTestData()

	os.Exit(m.Run())
}

func setupAuth() {
	loginResp := makeRequest("POST", "/auth/login", map[string]string{
		"email":    adminEmail,
		"password": adminPassword,
	}, "")
	if !loginResp.IsSuccess() {
		fmt.Printf("Failed to login as %s: %s\n", adminEmail, loginResp.Message)
		os.Exit(1)
	}

	authToken = loginResp.GetString("access_token")
	if authToken == "" {
		fmt.Println("Login succeeded but no access token was returned")
		os.Exit(1)
	}
}

func setupTestData() {
	doctorID = createTestDoctor()
	if doctorID == "" {
		fmt.Println("Failed to provision a doctor for the suite")
		os.Exit(1)
	}

	patientID = createTestPatientRaw()
	if patientID == "" {
		fmt.Println("Failed to provision a patient for the suite")
		os.Exit(1)
	}
}

func makeRequest(method, path string, body interface{}, token string) TestResponse {
	var buf io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, baseURL+path, buf)
	if err != nil {
		return TestResponse{Status: "error", Message: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Access-Reason", "integration test")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	response, err := client.Do(req)
	if err != nil {
		return TestResponse{Status: "error", Message: err.Error()}
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return TestResponse{StatusCode: response.StatusCode, Status: "error", Message: err.Error()}
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return TestResponse{
			StatusCode: response.StatusCode,
			Status:     "error",
			Message:    fmt.Sprintf("failed to parse response: %v\nraw: %s", err, string(respBody)),
		}
	}

	testResp := TestResponse{
		StatusCode: response.StatusCode,
		Status:     apiResp.Status,
		Message:    apiResp.Message,
		Code:       apiResp.Code,
		RawData:    string(apiResp.Data),
	}
	if len(apiResp.Data) > 0 {
		var data map[string]interface{}
		if err := json.Unmarshal(apiResp.Data, &data); err == nil {
			testResp.Data = data
		}
	}
	return testResp
}
