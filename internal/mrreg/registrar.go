// Package mrreg implements the X_MS_MediaReceiverRegistrar stub:
// fixed authorized/validated responses, purely for Xbox-360-style
// client compatibility (spec §4.7 MR Registrar).
package mrreg

// Service has no internal state: every action returns a fixed
// authorization response regardless of arguments.
type Service struct{}

// New returns an MR Registrar stub.
func New() *Service { return &Service{} }

// IsAuthorized always reports authorized ("1"), ignoring deviceID.
func (s *Service) IsAuthorized(deviceID string) string { return "1" }

// IsValidated always reports validated ("1"), ignoring deviceID.
func (s *Service) IsValidated(deviceID string) string { return "1" }

// RegisterDevice accepts any device unconditionally and returns an
// opaque (here: empty) registration result.
func (s *Service) RegisterDevice(registrationReqMsg string) (string, error) {
	return "", nil
}

// InitialEventProperties returns the four zeroed update-id state
// variables an MR Registrar subscription's initial event carries
// (spec §4.7 "initial event carries four zeroed update-id properties").
func (s *Service) InitialEventProperties() map[string]string {
	return map[string]string{
		"AuthorizationDeniedUpdateID":  "0",
		"AuthorizationGrantedUpdateID": "0",
		"ValidationRevokedUpdateID":    "0",
		"ValidationSucceededUpdateID":  "0",
	}
}
