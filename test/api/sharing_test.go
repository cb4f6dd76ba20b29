package api_test

import (
	"fmt"
	"net/http"
	"testing"
)

func issueShare(t *testing.T) (grantID, token string) {
	t.Helper()

	resp := makeRequest("POST", "/shares", map[string]interface{}{
		"patient_id":  patientID,
		"mode":        "READ_ONLY",
		"ttl_minutes": 30,
		"purpose":     "referral to external specialist",
	}, authToken)
	if !resp.IsSuccess() {
		t.Fatalf("failed to issue share: %s", resp.Message)
	}

	grantID = resp.GetString("id")
	token = resp.GetString("token")
	if grantID == "" || token == "" {
		t.Fatalf("share response missing id or token: %s", resp.RawData)
	}
	return grantID, token
}

func TestShareIssueAndRedeem(t *testing.T) {
	grantID, token := issueShare(t)

	// Redemption is a public endpoint; possession of the token is the
	// credential.
	redeemResp := makeRequest("POST", "/shared-records/access", map[string]string{
		"token": token,
	}, "")
	if !redeemResp.IsSuccess() {
		t.Fatalf("failed to redeem share: %s", redeemResp.Message)
	}
	if redeemResp.GetString("hospital") == "" {
		t.Errorf("redemption missing issuing hospital name: %s", redeemResp.RawData)
	}
	if _, ok := redeemResp.Data["record"]; !ok {
		t.Errorf("redemption missing record payload: %s", redeemResp.RawData)
	}

	// Every redemption lands in the access log.
	accessResp := makeRequest("GET", fmt.Sprintf("/shares/%s/accesses", grantID), nil, authToken)
	if !accessResp.IsSuccess() {
		t.Fatalf("failed to fetch access log: %s", accessResp.Message)
	}
	var accesses []map[string]interface{}
	if err := jsonUnmarshal(accessResp.RawData, &accesses); err != nil {
		t.Fatalf("access log is not a list: %s", accessResp.RawData)
	}
	if len(accesses) == 0 {
		t.Error("redemption did not record an access")
	}
}

func TestShareRevocation(t *testing.T) {
	grantID, token := issueShare(t)

	revokeResp := makeRequest("POST", fmt.Sprintf("/shares/%s/revoke", grantID), nil, authToken)
	if !revokeResp.IsSuccess() {
		t.Fatalf("failed to revoke share: %s", revokeResp.Message)
	}

	// A revoked token is dead immediately.
	redeemResp := makeRequest("POST", "/shared-records/access", map[string]string{
		"token": token,
	}, "")
	if redeemResp.StatusCode != http.StatusGone {
		t.Errorf("expected 410 for a revoked token, got %d: %s", redeemResp.StatusCode, redeemResp.Message)
	}

	// Revoking twice is also reported as gone.
	secondRevoke := makeRequest("POST", fmt.Sprintf("/shares/%s/revoke", grantID), nil, authToken)
	if secondRevoke.StatusCode != http.StatusGone {
		t.Errorf("expected 410 for a second revoke, got %d", secondRevoke.StatusCode)
	}
}

func TestShareUnknownToken(t *testing.T) {
	resp := makeRequest("POST", "/shared-records/access", map[string]string{
		"token": "this-token-was-never-issued-and-is-long-enough-to-pass-validation",
	}, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown token, got %d", resp.StatusCode)
	}
}

func TestShareSelfTargetRejected(t *testing.T) {
	meResp := makeRequest("GET", "/tenant", nil, authToken)
	if !meResp.IsSuccess() {
		t.Fatalf("failed to fetch own tenant: %s", meResp.Message)
	}
	ownID := meResp.GetString("id")

	resp := makeRequest("POST", "/shares", map[string]interface{}{
		"patient_id":       patientID,
		"target_tenant_id": ownID,
		"mode":             "READ_ONLY",
	}, authToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a self-share, got %d: %s", resp.StatusCode, resp.Message)
	}
}
