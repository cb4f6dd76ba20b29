package api_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

func scheduleAppointment(t *testing.T, slotsAhead int) (string, time.Time) {
	t.Helper()

	slot := nextSlot(slotsAhead)
	resp := makeRequest("POST", "/appointments", map[string]interface{}{
		"patient_id":   patientID,
		"doctor_id":    doctorID,
		"scheduled_at": slot.Format(time.RFC3339),
		"reason":       "routine check-up",
	}, authToken)
	if !resp.IsSuccess() {
		t.Fatalf("failed to schedule appointment: %s", resp.Message)
	}
	return resp.GetString("id"), slot
}

func TestAppointmentScheduling(t *testing.T) {
	id, slot := scheduleAppointment(t, 4)

	getResp := makeRequest("GET", "/appointments/"+id, nil, authToken)
	if !getResp.IsSuccess() {
		t.Fatalf("failed to fetch appointment: %s", getResp.Message)
	}
	if getResp.GetString("status") != "SCHEDULED" {
		t.Errorf("expected SCHEDULED, got %s", getResp.GetString("status"))
	}

	// The same doctor cannot hold the same slot twice.
	dupResp := makeRequest("POST", "/appointments", map[string]interface{}{
		"patient_id":   patientID,
		"doctor_id":    doctorID,
		"scheduled_at": slot.Format(time.RFC3339),
	}, authToken)
	if dupResp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for a taken slot, got %d: %s", dupResp.StatusCode, dupResp.Message)
	}
}

func TestAppointmentRejectsOffGridSlot(t *testing.T) {
	slot := nextSlot(8).Add(7 * time.Minute)
	resp := makeRequest("POST", "/appointments", map[string]interface{}{
		"patient_id":   patientID,
		"doctor_id":    doctorID,
		"scheduled_at": slot.Format(time.RFC3339),
	}, authToken)
	if resp.IsSuccess() {
		t.Fatalf("an off-grid slot must be rejected")
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for an off-grid slot, got %d: %s", resp.StatusCode, resp.Message)
	}
}

func TestAppointmentCancelFlow(t *testing.T) {
	id, _ := scheduleAppointment(t, 12)

	cancelResp := makeRequest("POST", fmt.Sprintf("/appointments/%s/cancel", id), map[string]interface{}{
		"reason": "patient request",
	}, authToken)
	if !cancelResp.IsSuccess() {
		t.Fatalf("failed to cancel appointment: %s", cancelResp.Message)
	}
	if cancelResp.GetString("status") != "CANCELLED" {
		t.Errorf("expected CANCELLED, got %s", cancelResp.GetString("status"))
	}

	// A cancelled appointment is terminal.
	checkinResp := makeRequest("POST", fmt.Sprintf("/appointments/%s/check-in", id), nil, authToken)
	if checkinResp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for a transition out of CANCELLED, got %d", checkinResp.StatusCode)
	}
	if checkinResp.Code != "invalid_transition" {
		t.Errorf("expected invalid_transition code, got %q", checkinResp.Code)
	}

	historyResp := makeRequest("GET", fmt.Sprintf("/appointments/%s/history", id), nil, authToken)
	if !historyResp.IsSuccess() {
		t.Fatalf("failed to fetch history: %s", historyResp.Message)
	}
	var records []map[string]interface{}
	if err := jsonUnmarshal(historyResp.RawData, &records); err != nil {
		t.Fatalf("history is not a list: %s", historyResp.RawData)
	}
	if len(records) == 0 {
		t.Error("cancellation left no history record")
	}
}

func TestAppointmentCheckinWindowEnforced(t *testing.T) {
	// The slot is at least an hour out, beyond the check-in grace.
	id, _ := scheduleAppointment(t, 16)

	resp := makeRequest("POST", fmt.Sprintf("/appointments/%s/check-in", id), nil, authToken)
	if resp.IsSuccess() {
		t.Fatalf("check-in an hour early must be rejected")
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", resp.StatusCode, resp.Message)
	}
	if resp.Code != "checkin_window" {
		t.Errorf("expected checkin_window code, got %q", resp.Code)
	}

	// Clean up so later runs do not trip over the open appointment.
	makeRequest("POST", fmt.Sprintf("/appointments/%s/cancel", id), map[string]interface{}{
		"reason": "test cleanup",
	}, authToken)
}
