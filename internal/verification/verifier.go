package verification

import (
	"context"
	"errors"
	"strings"
	"time"

	"connectivity/internal/constants"
	"connectivity/pkg/models"
)

// Verifier performs the external check for one kind of WorkItem.
type Verifier interface {
	Verify(ctx context.Context, item *models.WorkItem) (*Response, error)
}

type AffiliationVerifier struct {
	client         *Client
	operatorName   string
	defaultAddress string
}

func NewAffiliationVerifier(client *Client, operatorName, defaultAddress string) *AffiliationVerifier {
	if operatorName == "" {
		operatorName = constants.DefaultOperatorName
	}
	if defaultAddress == "" {
		defaultAddress = constants.DefaultCitizenAddress
	}
	return &AffiliationVerifier{
		client:         client,
		operatorName:   operatorName,
		defaultAddress: defaultAddress,
	}
}

func (v *AffiliationVerifier) Verify(ctx context.Context, item *models.WorkItem) (*Response, error) {
	payload, err := models.DecodeAffiliationPayload(item.Payload)
	if err != nil {
		return nil, invalidRequest(OpRegisterCitizen, "invalid affiliation payload", err)
	}

	req := RegisterCitizenRequest{
		ID:           payload.CitizenID,
		Name:         strings.TrimSpace(payload.Name),
		Address:      payload.Address,
		Email:        payload.Email,
		OperatorName: payload.OperatorName,
	}
	if strings.TrimSpace(req.Address) == "" {
		req.Address = v.defaultAddress
	}
	if strings.TrimSpace(req.OperatorName) == "" {
		req.OperatorName = v.operatorName
	}

	return v.client.RegisterCitizen(ctx, req)
}

type DocumentVerifier struct {
	client *Client
}

func NewDocumentVerifier(client *Client) *DocumentVerifier {
	return &DocumentVerifier{client: client}
}

func (v *DocumentVerifier) Verify(ctx context.Context, item *models.WorkItem) (*Response, error) {
	payload, err := models.DecodeDocumentPayload(item.Payload)
	if err != nil {
		return nil, invalidRequest(OpAuthenticateDocument, "invalid document payload", err)
	}

	return v.client.AuthenticateDocument(ctx, AuthenticateDocumentRequest{
		IDCitizen:     payload.CitizenID,
		URLDocument:   payload.URLDocument,
		DocumentTitle: payload.DocumentTitle,
	})
}

// IsAborted reports whether err came from the caller's context ending
// rather than from the centralizer.
func IsAborted(err error) bool {
	if err == nil || isVerificationError(err) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ToOutcome maps a verification result to the terminal outcome of item.
// Errors that are not *Error are reported as Unavailable.
func ToOutcome(item *models.WorkItem, resp *Response, err error, completedAt time.Time) *models.Outcome {
	outcome := &models.Outcome{
		RequestID:        item.RequestID,
		Kind:             item.Kind,
		SubjectReference: item.SubjectReference,
		CompletedAt:      completedAt.UTC(),
	}

	if err == nil {
		outcome.Status = models.StatusApproved
		outcome.Detail = models.OutcomeDetail{
			StatusCode: resp.StatusCode,
			Message:    "approved by centralizer",
			Response:   resp.Body,
		}
		return outcome
	}

	var verr *Error
	if !errors.As(err, &verr) {
		verr = newError(ClassUnavailable, "", 0, "", err)
	}

	outcome.Detail = models.OutcomeDetail{
		StatusCode: verr.StatusCode,
		Message:    verr.Message,
		ErrorClass: string(verr.Class),
		Response:   verr.Body,
	}
	if verr.Err != nil && verr.Class == ClassInvalidRequest {
		outcome.Detail.Message = verr.Message + ": " + verr.Err.Error()
	}
	outcome.Detail.Message = models.StripNUL(outcome.Detail.Message)

	if verr.Class == ClassRejected {
		outcome.Status = models.StatusRejected
		outcome.Detail.ErrorClass = ""
	} else {
		outcome.Status = models.StatusError
	}
	return outcome
}
