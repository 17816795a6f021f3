package mpesa

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Command ids accepted by the disbursement endpoint
const (
	CommandSalaryPayment   = "SalaryPayment"
	CommandBusinessPayment = "BusinessPayment"
	CommandPromotion       = "PromotionPayment"
)

// Merchant validation result codes
const (
	ValidationAccepted       = "0"
	ValidationInvalidAccount = "C2B00012"
	ValidationInvalidAmount  = "C2B00013"
	ValidationOtherError     = "C2B00016"
)

// ResultSuccess is the result code of a successful callback
const ResultSuccess = 0

var gatewayZone = time.FixedZone("EAT", 3*60*60)

// STKPushRequest is what the caller supplies to prompt a payer
type STKPushRequest struct {
	Phone            string
	Amount           decimal.Decimal
	AccountReference string
	Description      string
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is the synchronous acknowledgement of a push request
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Accepted reports whether the gateway took the request
func (r *STKPushResponse) Accepted() bool {
	return r.ResponseCode == "0" && r.CheckoutRequestID != ""
}

type stkQueryBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// STKQueryResponse is the gateway's view of a push request
type STKQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// Completed reports whether the payer has finished, one way or the other
func (r *STKQueryResponse) Completed() bool {
	return r.ResultCode != ""
}

// Succeeded reports whether the payment went through
func (r *STKQueryResponse) Succeeded() bool {
	return r.ResultCode == "0"
}

// B2CRequest is a business-to-customer payout
type B2CRequest struct {
	OriginatorConversationID string
	Phone                    string
	CommandID                string
	Amount                   decimal.Decimal
	Remarks                  string
	Occasion                 string
}

type b2cBody struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	InitiatorName            string `json:"InitiatorName"`
	SecurityCredential       string `json:"SecurityCredential"`
	CommandID                string `json:"CommandID"`
	Amount                   int64  `json:"Amount"`
	PartyA                   string `json:"PartyA"`
	PartyB                   string `json:"PartyB"`
	Remarks                  string `json:"Remarks"`
	QueueTimeOutURL          string `json:"QueueTimeOutURL"`
	ResultURL                string `json:"ResultURL"`
	Occasion                 string `json:"Occasion"`
}

// B2CResponse acknowledges a payout request
type B2CResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// Accepted reports whether the gateway queued the payout
func (r *B2CResponse) Accepted() bool {
	return r.ResponseCode == "0"
}

type registerURLBody struct {
	ShortCode       string `json:"ShortCode"`
	ResponseType    string `json:"ResponseType"`
	ConfirmationURL string `json:"ConfirmationURL"`
	ValidationURL   string `json:"ValidationURL"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// STKCallback is the envelope posted to the push-payment callback URL
type STKCallback struct {
	Body struct {
		STKCallback STKResult `json:"stkCallback" validate:"required"`
	} `json:"Body" validate:"required"`
}

// STKResult is the outcome of one push payment
type STKResult struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID" validate:"required"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata lists the name/value pairs sent with a successful payment
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem values arrive as numbers or strings depending on the field
type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// PaymentDetails is the parsed success metadata of a push payment
type PaymentDetails struct {
	Amount          decimal.Decimal
	ReceiptNumber   string
	Phone           string
	TransactionDate time.Time
}

// Succeeded reports whether the payer authorised the payment
func (r STKResult) Succeeded() bool {
	return r.ResultCode == ResultSuccess
}

// Details parses the callback metadata. Amount and receipt are mandatory.
func (r STKResult) Details() (PaymentDetails, error) {
	var details PaymentDetails
	if r.CallbackMetadata == nil {
		return details, fmt.Errorf("callback %s has no metadata", r.CheckoutRequestID)
	}
	for _, item := range r.CallbackMetadata.Item {
		value := rawString(item.Value)
		switch item.Name {
		case "Amount":
			amount, err := decimal.NewFromString(value)
			if err != nil {
				return details, fmt.Errorf("invalid amount %q: %w", value, err)
			}
			details.Amount = amount
		case "MpesaReceiptNumber":
			details.ReceiptNumber = value
		case "PhoneNumber":
			details.Phone = value
		case "TransactionDate":
			if ts, err := time.ParseInLocation("20060102150405", value, gatewayZone); err == nil {
				details.TransactionDate = ts
			}
		}
	}
	if !details.Amount.IsPositive() {
		return details, fmt.Errorf("callback %s has no positive amount", r.CheckoutRequestID)
	}
	if details.ReceiptNumber == "" {
		return details, fmt.Errorf("callback %s has no receipt number", r.CheckoutRequestID)
	}
	return details, nil
}

// rawString renders a JSON scalar without quotes
func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	return s
}

// C2BPayment is posted to the validation and confirmation URLs for merchant-initiated payments
type C2BPayment struct {
	TransactionType   string `json:"TransactionType"`
	TransID           string `json:"TransID" validate:"required"`
	TransTime         string `json:"TransTime"`
	TransAmount       string `json:"TransAmount" validate:"required"`
	BusinessShortCode string `json:"BusinessShortCode"`
	BillRefNumber     string `json:"BillRefNumber" validate:"required"`
	InvoiceNumber     string `json:"InvoiceNumber"`
	OrgAccountBalance string `json:"OrgAccountBalance"`
	ThirdPartyTransID string `json:"ThirdPartyTransID"`
	MSISDN            string `json:"MSISDN"`
	FirstName         string `json:"FirstName"`
	MiddleName        string `json:"MiddleName"`
	LastName          string `json:"LastName"`
}

// Amount parses TransAmount
func (p C2BPayment) Amount() (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(p.TransAmount))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", p.TransAmount, err)
	}
	return amount, nil
}

// ValidationResponse answers a merchant validation request
type ValidationResponse struct {
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// B2CCallback is posted to the payout result and timeout URLs
type B2CCallback struct {
	Result B2CResult `json:"Result" validate:"required"`
}

// B2CResult is the outcome of one payout
type B2CResult struct {
	ResultType               int               `json:"ResultType"`
	ResultCode               int               `json:"ResultCode"`
	ResultDesc               string            `json:"ResultDesc"`
	OriginatorConversationID string            `json:"OriginatorConversationID" validate:"required"`
	ConversationID           string            `json:"ConversationID"`
	TransactionID            string            `json:"TransactionID"`
	ResultParameters         *ResultParameters `json:"ResultParameters,omitempty"`
}

// ResultParameters lists the key/value pairs of a payout result
type ResultParameters struct {
	ResultParameter []ResultParameter `json:"ResultParameter"`
}

type ResultParameter struct {
	Key   string          `json:"Key"`
	Value json.RawMessage `json:"Value"`
}

// Succeeded reports whether the payout went through
func (r B2CResult) Succeeded() bool {
	return r.ResultCode == ResultSuccess
}

// Parameter returns a result parameter by key
func (r B2CResult) Parameter(key string) (string, bool) {
	if r.ResultParameters == nil {
		return "", false
	}
	for _, p := range r.ResultParameters.ResultParameter {
		if p.Key == key {
			return rawString(p.Value), true
		}
	}
	return "", false
}

// Ack is the body every callback must be answered with
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// Accepted is the standard callback acknowledgement
var Accepted = Ack{ResultCode: 0, ResultDesc: "Accepted"}
