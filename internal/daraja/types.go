package daraja

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// completedAtLayout is the timestamp format the gateway uses in result
// parameters, e.g. "07.11.2023 11:45:50".
const completedAtLayout = "02.01.2006 15:04:05"

// Result parameter keys the gateway reports on success.
const (
	ParamTransactionAmount            = "TransactionAmount"
	ParamTransactionReceipt           = "TransactionReceipt"
	ParamReceiverPartyPublicName      = "ReceiverPartyPublicName"
	ParamTransactionCompletedDateTime = "TransactionCompletedDateTime"
	ParamB2CRecipientIsRegistered     = "B2CRecipientIsRegisteredCustomer"
	ParamB2CChargesPaidFunds          = "B2CChargesPaidAccountAvailableFunds"
	ParamB2CUtilityFunds              = "B2CUtilityAccountAvailableFunds"
	ParamB2CWorkingFunds              = "B2CWorkingAccountAvailableFunds"
)

// AuthResponse is the body of a successful token fetch. The gateway
// reports expires_in as a string of seconds.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// ExpiresInDuration parses the expiry into a duration.
func (r *AuthResponse) ExpiresInDuration() (time.Duration, error) {
	seconds, err := strconv.Atoi(r.ExpiresIn)
	if err != nil {
		return 0, fmt.Errorf("invalid expires_in %q: %w", r.ExpiresIn, err)
	}
	return time.Duration(seconds) * time.Second, nil
}

// PaymentRequest is the JSON payload of a disbursement submission.
type PaymentRequest struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	InitiatorName            string `json:"InitiatorName"`
	SecurityCredential       string `json:"SecurityCredential"`
	CommandID                string `json:"CommandID"`
	Amount                   string `json:"Amount"`
	PartyA                   string `json:"PartyA"`
	PartyB                   string `json:"PartyB"`
	Remarks                  string `json:"Remarks"`
	QueueTimeOutURL          string `json:"QueueTimeOutURL"`
	ResultURL                string `json:"ResultURL"`
	Occassion                string `json:"Occassion"`
}

// PaymentResponse is the synchronous acknowledgment of a submission.
type PaymentResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// ResultParameter is one key/value pair of a result callback.
type ResultParameter struct {
	Key   string      `json:"Key"`
	Value interface{} `json:"Value"`
}

// ResultParameters wraps the flat parameter list.
type ResultParameters struct {
	ResultParameter []ResultParameter `json:"ResultParameter"`
}

// ReferenceItem is one entry of the callback's reference data.
type ReferenceItem struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// ReferenceData wraps the callback's reference list.
type ReferenceData struct {
	ReferenceItem ReferenceItem `json:"ReferenceItem"`
}

// Result is the asynchronous outcome the gateway posts to the results
// callback. ResultType != 0 flags a resend of an earlier notification.
type Result struct {
	ResultType               int              `json:"ResultType"`
	ResultCode               int              `json:"ResultCode"`
	ResultDesc               string           `json:"ResultDesc"`
	OriginatorConversationID string           `json:"OriginatorConversationID"`
	ConversationID           string           `json:"ConversationID"`
	TransactionID            string           `json:"TransactionID"`
	ResultParameters         ResultParameters `json:"ResultParameters"`
	ReferenceData            ReferenceData    `json:"ReferenceData"`
}

// ResultEnvelope is the outer body of a result callback.
type ResultEnvelope struct {
	Result Result `json:"Result"`
}

// Parameter returns the raw value of a result parameter by key.
func (r *Result) Parameter(key string) (interface{}, bool) {
	for _, p := range r.ResultParameters.ResultParameter {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// StringParameter returns a result parameter rendered as a string.
func (r *Result) StringParameter(key string) string {
	v, ok := r.Parameter(key)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

// DecimalParameter parses a numeric result parameter.
func (r *Result) DecimalParameter(key string) (decimal.Decimal, error) {
	v, ok := r.Parameter(key)
	if !ok {
		return decimal.Zero, fmt.Errorf("result parameter %q missing", key)
	}
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), nil
	case string:
		return decimal.NewFromString(n)
	default:
		return decimal.Zero, fmt.Errorf("result parameter %q has unexpected type %T", key, v)
	}
}

// TimeParameter parses a timestamp result parameter in the gateway's
// DD.MM.YYYY HH:MM:SS format.
func (r *Result) TimeParameter(key string) (time.Time, error) {
	v, ok := r.Parameter(key)
	if !ok {
		return time.Time{}, fmt.Errorf("result parameter %q missing", key)
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("result parameter %q is not a string", key)
	}
	return time.Parse(completedAtLayout, s)
}
