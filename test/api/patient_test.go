package api_test

import (
	"fmt"
	"net/http"
	"testing"
)

func TestPatientLifecycle(t *testing.T) {
	createResp := makeRequest("POST", "/patients", map[string]interface{}{
		"first_name":  uniqueName("Jane"),
		"last_name":   "Roe",
		"gender":      "female",
		"phone":       "+1555000100",
		"blood_group": "O+",
		"allergies":   "penicillin",
	}, authToken)
	if !createResp.IsSuccess() {
		t.Fatalf("failed to create patient: %s", createResp.Message)
	}

	id := createResp.GetString("id")
	mrn := createResp.GetString("mrn")
	if id == "" || mrn == "" {
		t.Fatalf("patient response missing id or mrn: %s", createResp.RawData)
	}

	getResp := makeRequest("GET", "/patients/"+id, nil, authToken)
	if !getResp.IsSuccess() {
		t.Fatalf("failed to fetch patient: %s", getResp.Message)
	}
	if getResp.GetString("mrn") != mrn {
		t.Errorf("expected mrn %s, got %s", mrn, getResp.GetString("mrn"))
	}

	// The MRN is a stable secondary key.
	mrnResp := makeRequest("GET", "/patients/mrn/"+mrn, nil, authToken)
	if !mrnResp.IsSuccess() {
		t.Fatalf("failed to fetch patient by MRN: %s", mrnResp.Message)
	}
	if mrnResp.GetString("id") != id {
		t.Errorf("MRN lookup returned a different patient")
	}

	updateResp := makeRequest("PUT", "/patients/"+id, map[string]interface{}{
		"phone": "+1555000199",
	}, authToken)
	if !updateResp.IsSuccess() {
		t.Fatalf("failed to update patient: %s", updateResp.Message)
	}
	if updateResp.GetString("phone") != "+1555000199" {
		t.Errorf("update did not persist the phone number")
	}
}

func TestPatientSummary(t *testing.T) {
	resp := makeRequest("GET", fmt.Sprintf("/patients/%s/summary", patientID), nil, authToken)
	if !resp.IsSuccess() {
		t.Fatalf("failed to fetch summary: %s", resp.Message)
	}
	if resp.GetString("mrn") == "" {
		t.Errorf("summary missing mrn: %s", resp.RawData)
	}
}

func TestPatientNotFound(t *testing.T) {
	resp := makeRequest("GET", "/patients/00000000-0000-0000-0000-000000000000", nil, authToken)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown patient, got %d", resp.StatusCode)
	}
}
