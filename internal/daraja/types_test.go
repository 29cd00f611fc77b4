package daraja

import (
	"encoding/json"
	"testing"
	"time"
)

// callbackFixture mirrors the envelope the gateway posts on success.
const callbackFixture = `{
	"Result": {
		"ResultType": 0,
		"ResultCode": 0,
		"ResultDesc": "The service request is processed successfully.",
		"OriginatorConversationID": "12ae-4b2f-9c1d-8f3e7a6b5c4d",
		"ConversationID": "AG_20231107_1010abcdef",
		"TransactionID": "RK711T1GE4",
		"ResultParameters": {
			"ResultParameter": [
				{"Key": "TransactionAmount", "Value": 10},
				{"Key": "TransactionReceipt", "Value": "RK711T1GE4"},
				{"Key": "B2CRecipientIsRegisteredCustomer", "Value": "Y"},
				{"Key": "B2CChargesPaidAccountAvailableFunds", "Value": -451.0},
				{"Key": "ReceiverPartyPublicName", "Value": "254712345678 - John Doe"},
				{"Key": "TransactionCompletedDateTime", "Value": "07.11.2023 11:45:50"},
				{"Key": "B2CUtilityAccountAvailableFunds", "Value": 1138.0},
				{"Key": "B2CWorkingAccountAvailableFunds", "Value": 0.0}
			]
		},
		"ReferenceData": {
			"ReferenceItem": {"Key": "QueueTimeoutURL", "Value": "https://example.com/webhooks/b2c/timeout"}
		}
	}
}`

func TestResultParameterExtraction(t *testing.T) {
	var envelope ResultEnvelope
	if err := json.Unmarshal([]byte(callbackFixture), &envelope); err != nil {
		t.Fatalf("failed to unmarshal callback: %v", err)
	}
	result := envelope.Result

	if result.TransactionID != "RK711T1GE4" {
		t.Errorf("expected transaction id RK711T1GE4, got %q", result.TransactionID)
	}

	amount, err := result.DecimalParameter(ParamTransactionAmount)
	if err != nil {
		t.Fatalf("failed to parse amount: %v", err)
	}
	if amount.String() != "10" {
		t.Errorf("expected amount 10, got %s", amount)
	}

	completedAt, err := result.TimeParameter(ParamTransactionCompletedDateTime)
	if err != nil {
		t.Fatalf("failed to parse completed at: %v", err)
	}
	want := time.Date(2023, time.November, 7, 11, 45, 50, 0, time.UTC)
	if !completedAt.Equal(want) {
		t.Errorf("expected %v, got %v", want, completedAt)
	}

	if got := result.StringParameter(ParamReceiverPartyPublicName); got != "254712345678 - John Doe" {
		t.Errorf("unexpected receiver name %q", got)
	}
	if got := result.StringParameter(ParamB2CRecipientIsRegistered); got != "Y" {
		t.Errorf("unexpected registered flag %q", got)
	}

	// Negative balance snapshots parse too
	charges, err := result.DecimalParameter(ParamB2CChargesPaidFunds)
	if err != nil {
		t.Fatalf("failed to parse charges funds: %v", err)
	}
	if charges.String() != "-451" {
		t.Errorf("expected -451, got %s", charges)
	}
}

func TestResultParameterMissing(t *testing.T) {
	var result Result

	if _, ok := result.Parameter("TransactionAmount"); ok {
		t.Error("expected missing parameter")
	}
	if _, err := result.DecimalParameter("TransactionAmount"); err == nil {
		t.Error("expected error for missing decimal parameter")
	}
	if _, err := result.TimeParameter("TransactionCompletedDateTime"); err == nil {
		t.Error("expected error for missing time parameter")
	}
	if got := result.StringParameter("ReceiverPartyPublicName"); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestExpiresInDuration(t *testing.T) {
	auth := AuthResponse{AccessToken: "abc", ExpiresIn: "3599"}
	d, err := auth.ExpiresInDuration()
	if err != nil {
		t.Fatalf("ExpiresInDuration failed: %v", err)
	}
	if d != 3599*time.Second {
		t.Errorf("expected 3599s, got %v", d)
	}

	bad := AuthResponse{ExpiresIn: "soon"}
	if _, err := bad.ExpiresInDuration(); err == nil {
		t.Error("expected error for non-numeric expiry")
	}
}
