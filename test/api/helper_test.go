package api_test

import (
	"encoding/json"
	"fmt"
	"time"
)

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s %d", prefix, time.Now().UnixNano())
}

func jsonUnmarshal(raw string, v interface{}) error {
	return json.Unmarshal([]byte(raw), v)
}

// nextSlot returns a future slot on the 15-minute grid, offset whole
// slots forward so concurrent tests do not collide on the same time.
func nextSlot(slotsAhead int) time.Time {
	t := time.Now().UTC().Add(time.Hour)
	aligned := t.Truncate(15 * time.Minute).Add(15 * time.Minute)
	return aligned.Add(time.Duration(slotsAhead) * 15 * time.Minute)
}

// findRoleID looks a role up by name in the tenant's role list.
func findRoleID(name string) string {
	resp := makeRequest("GET", "/rbac/roles", nil, authToken)
	if !resp.IsSuccess() {
		return ""
	}
	var roles []map[string]interface{}
	if err := jsonUnmarshal(resp.RawData, &roles); err != nil {
		return ""
	}
	for _, r := range roles {
		if r["name"] == name {
			if id, ok := r["id"].(string); ok {
				return id
			}
		}
	}
	return ""
}

// createTestDoctor provisions a staff user holding the DOCTOR role.
func createTestDoctor() string {
	roleID := findRoleID("DOCTOR")
	if roleID == "" {
		return ""
	}

	resp := makeRequest("POST", "/users", map[string]interface{}{
		"email":    fmt.Sprintf("doctor_%d@example.com", time.Now().UnixNano()),
		"name":     uniqueName("Dr Test"),
		"password": "doctor-password-1",
		"role_ids": []string{roleID},
	}, authToken)
	if !resp.IsSuccess() {
		return ""
	}
	return resp.GetString("id")
}

func createTestPatientRaw() string {
	resp := makeRequest("POST", "/patients", map[string]interface{}{
		"first_name": uniqueName("Patient"),
		"last_name":  "Test",
		"gender":     "other",
		"phone":      "+1234567890",
	}, authToken)
	if !resp.IsSuccess() {
		return ""
	}
	return resp.GetString("id")
}
