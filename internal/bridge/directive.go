package bridge

import (
	"encoding/json"
	"fmt"

	"camerabridge/internal/domain"
)

// Directive namespaces and names
const (
	NamespaceAlexa          = "Alexa"
	NamespaceDiscovery      = "Alexa.Discovery"
	NamespaceLegacy         = "Alexa.ConnectedHome.Discovery"
	NamespaceRTCSession     = "Alexa.RTCSessionController"
	NamespaceEndpointHealth = "Alexa.EndpointHealth"

	NameDiscover                 = "Discover"
	NameDiscoverResponse         = "Discover.Response"
	NameDiscoverAppliances       = "DiscoverAppliancesRequest"
	NameDiscoverAppliancesResult = "DiscoverAppliancesResponse"
	NameInitiateSession          = "InitiateSessionWithOffer"
	NameAnswerGenerated          = "AnswerGeneratedForSession"
	NameSessionDisconnected      = "SessionDisconnected"
	NameReportState              = "ReportState"
	NameResponse                 = "Response"
	NameErrorResponse            = "ErrorResponse"

	payloadVersion       = "3"
	legacyPayloadVersion = "2"
	formatSDP            = "SDP"
)

// Error types carried in ErrorResponse payloads
const (
	ErrTypeInvalidDirective  = "INVALID_DIRECTIVE"
	ErrTypeInvalidValue      = "INVALID_VALUE"
	ErrTypeNoSuchEndpoint    = "NO_SUCH_ENDPOINT"
	ErrTypeUnreachable       = "ENDPOINT_UNREACHABLE"
	ErrTypeInvalidCredential = "INVALID_AUTHORIZATION_CREDENTIAL"
	ErrTypeInternal          = "INTERNAL_ERROR"
)

// Header is shared by directives and events
type Header struct {
	Namespace        string `json:"namespace"`
	Name             string `json:"name"`
	PayloadVersion   string `json:"payloadVersion,omitempty"`
	MessageID        string `json:"messageId,omitempty"`
	CorrelationToken string `json:"correlationToken,omitempty"`
}

// Endpoint addresses one device
type Endpoint struct {
	EndpointID string `json:"endpointId"`
}

// Directive is one inbound request
type Directive struct {
	Header   Header          `json:"header"`
	Endpoint *Endpoint       `json:"endpoint,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ParseDirective accepts a wrapped {"directive": {...}} body or a bare
// directive
func ParseDirective(body []byte) (Directive, error) {
	var wrapper struct {
		Directive json.RawMessage `json:"directive"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return Directive{}, domain.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	raw := body
	if len(wrapper.Directive) > 0 && string(wrapper.Directive) != "null" {
		raw = wrapper.Directive
	}

	var d Directive
	if err := json.Unmarshal(raw, &d); err != nil {
		return Directive{}, domain.NewValidationError("directive", fmt.Sprintf("malformed directive: %v", err))
	}
	return d, nil
}

// initiatePayload is the payload of InitiateSessionWithOffer
type initiatePayload struct {
	SessionID string `json:"sessionId"`
	Offer     *struct {
		Format string `json:"format"`
		Value  string `json:"value"`
	} `json:"offer"`
}

// Response is either an event (v3) or a legacy header/payload pair
type Response struct {
	Event   *Event  `json:"event,omitempty"`
	Header  *Header `json:"header,omitempty"`
	Payload any     `json:"payload,omitempty"`
}

// IsError reports whether the response is an ErrorResponse
func (r Response) IsError() bool {
	return r.Event != nil && r.Event.Header.Name == NameErrorResponse
}

// Event is an outbound v3 event
type Event struct {
	Header   Header    `json:"header"`
	Endpoint *Endpoint `json:"endpoint,omitempty"`
	Payload  any       `json:"payload"`
}

// ErrorPayload describes a failed directive
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DiscoverPayload lists endpoints
type DiscoverPayload struct {
	Endpoints []EndpointDescriptor `json:"endpoints"`
}

// EndpointDescriptor describes one device to the directive caller
type EndpointDescriptor struct {
	EndpointID        string       `json:"endpointId"`
	ManufacturerName  string       `json:"manufacturerName"`
	FriendlyName      string       `json:"friendlyName"`
	Description       string       `json:"description"`
	DisplayCategories []string     `json:"displayCategories"`
	Capabilities      []Capability `json:"capabilities"`
}

// Capability is one interface an endpoint supports
type Capability struct {
	Type          string          `json:"type"`
	Interface     string          `json:"interface"`
	Version       string          `json:"version"`
	Configuration map[string]any  `json:"configuration,omitempty"`
	Properties    *CapabilityProp `json:"properties,omitempty"`
}

// CapabilityProp lists reportable properties
type CapabilityProp struct {
	Supported           []map[string]string `json:"supported"`
	ProactivelyReported bool                `json:"proactivelyReported"`
	Retrievable         bool                `json:"retrievable"`
}

// LegacyDiscoverPayload lists appliances in the v2 shape
type LegacyDiscoverPayload struct {
	DiscoveredAppliances []Appliance `json:"discoveredAppliances"`
}

// Appliance is a v2 device descriptor
type Appliance struct {
	ApplianceID                string            `json:"applianceId"`
	ManufacturerName           string            `json:"manufacturerName"`
	ModelName                  string            `json:"modelName"`
	Version                    string            `json:"version"`
	FriendlyName               string            `json:"friendlyName"`
	FriendlyDescription        string            `json:"friendlyDescription"`
	IsReachable                bool              `json:"isReachable"`
	Actions                    []string          `json:"actions"`
	AdditionalApplianceDetails map[string]string `json:"additionalApplianceDetails"`
}

// AnswerPayload carries the negotiated SDP answer
type AnswerPayload struct {
	Answer struct {
		Format string `json:"format"`
		Value  string `json:"value"`
	} `json:"answer"`
	SessionID string `json:"sessionId,omitempty"`
}
